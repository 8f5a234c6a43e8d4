package lmpeek

import (
	"time"

	"github.com/samcharles93/lmpeek/internal/protocol"
)

type options struct {
	log      Logger
	timeout  time.Duration
	deps     *Dependencies
	cacheDir string
	ortLib   string

	isolated    bool
	workerPath  string
	workerArgs  []string
	workerEnv   []string
	codec       string
	gracePeriod time.Duration

	loadOpts []LoadOption
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger used by the client and an in-process worker.
func WithLogger(l Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithRequestTimeout bounds every request. Zero waits for the caller's
// context only.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithDependencies replaces the tokenizer loader, artifact store and engine
// factory of an in-process worker.
func WithDependencies(d Dependencies) Option {
	return func(o *options) { o.deps = &d }
}

// WithCacheDir sets where downloaded models and tokenizers are kept.
func WithCacheDir(dir string) Option {
	return func(o *options) { o.cacheDir = dir }
}

// WithRuntimeLibrary sets the path of the onnxruntime shared library.
func WithRuntimeLibrary(path string) Option {
	return func(o *options) { o.ortLib = path }
}

// WithProcess runs the worker in a subprocess started from path with args.
// Empty path runs the current executable; nil args run its "worker" command.
func WithProcess(path string, args ...string) Option {
	return func(o *options) {
		o.isolated = true
		o.workerPath = path
		o.workerArgs = args
	}
}

// WithProcessEnv adds environment variables to the worker subprocess.
func WithProcessEnv(env ...string) Option {
	return func(o *options) { o.workerEnv = append(o.workerEnv, env...) }
}

// WithCodec selects the wire codec used with a subprocess worker.
func WithCodec(name string) Option {
	return func(o *options) { o.codec = name }
}

// WithGracePeriod bounds each step of subprocess teardown.
func WithGracePeriod(d time.Duration) Option {
	return func(o *options) { o.gracePeriod = d }
}

// WithLoadOptions passes load options to the package-level Load.
func WithLoadOptions(opts ...LoadOption) Option {
	return func(o *options) { o.loadOpts = append(o.loadOpts, opts...) }
}

// LoadOption configures a load request.
type LoadOption func(*protocol.LoadRequest)

// WithTokenizer loads the tokenizer from a local path or Hugging Face repo id
// instead of the model's default.
func WithTokenizer(ref string) LoadOption {
	return func(r *protocol.LoadRequest) { r.Tokenizer = ref }
}

// WithModelURL reads the model graph from url or a local file.
func WithModelURL(url string) LoadOption {
	return func(r *protocol.LoadRequest) { r.ModelURL = url }
}

// WithExecutionProviders sets the engine providers in preference order.
func WithExecutionProviders(providers ...string) LoadOption {
	return func(r *protocol.LoadRequest) { r.ExecutionProviders = providers }
}

// WithShape overrides the layer and head counts of the architecture.
func WithShape(layers, heads int) LoadOption {
	return func(r *protocol.LoadRequest) { r.Layers, r.Heads = layers, heads }
}

// WithSessionLogging logs per-step timings of this session at info level.
func WithSessionLogging() LoadOption {
	return func(r *protocol.LoadRequest) { r.Logging = true }
}

// ForwardOption configures a forward request.
type ForwardOption func(*protocol.ForwardRequest)

// WithBOS prefixes every input with the beginning-of-sequence token.
func WithBOS() ForwardOption {
	return func(r *protocol.ForwardRequest) { r.BOSToken = true }
}
