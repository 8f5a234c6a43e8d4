//go:build onnxruntime

package engine

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Available reports whether ONNX support is compiled in.
func Available() bool { return true }

var (
	envOnce sync.Once
	envErr  error
)

// ONNX returns a factory backed by ONNX Runtime. libPath locates the shared
// library; empty probes the usual install locations.
func ONNX(libPath string) Factory {
	return &onnxFactory{libPath: libPath}
}

type onnxFactory struct {
	libPath string
}

func (f *onnxFactory) init() error {
	envOnce.Do(func() {
		lib := f.libPath
		if lib == "" {
			lib = findLibrary()
		}
		if lib == "" {
			envErr = fmt.Errorf("libonnxruntime not found; set LMPEEK_ORT_LIB")
			return
		}
		ort.SetSharedLibraryPath(lib)
		if err := ort.InitializeEnvironment(); err != nil {
			envErr = fmt.Errorf("initialize onnx runtime: %w", err)
		}
	})
	return envErr
}

func findLibrary() string {
	for _, c := range []string{
		"/usr/local/lib/libonnxruntime.so",
		"/usr/lib/libonnxruntime.so",
		"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
		"/opt/homebrew/lib/libonnxruntime.dylib",
		"/usr/local/lib/libonnxruntime.dylib",
	} {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func (f *onnxFactory) Open(ctx context.Context, path string, opts Options) (Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.init(); err != nil {
		return nil, err
	}
	providers, err := NormalizeProviders(opts.ExecutionProviders)
	if err != nil {
		return nil, err
	}

	inInfo, outInfo, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", path, err)
	}
	inputs := make([]string, len(inInfo))
	for i, info := range inInfo {
		inputs[i] = info.Name
	}
	available := make([]string, len(outInfo))
	for i, info := range outInfo {
		available[i] = info.Name
	}
	outputs := available
	if len(opts.Outputs) > 0 {
		// Requested names the graph does not export are skipped.
		outputs = make([]string, 0, len(opts.Outputs))
		for _, name := range opts.Outputs {
			if slices.Contains(available, name) {
				outputs = append(outputs, name)
			}
		}
		if len(outputs) == 0 {
			return nil, fmt.Errorf("%s: none of the requested outputs exist", path)
		}
	}

	so, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer so.Destroy()
	if err := so.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	for _, p := range providers {
		if p != ProviderCUDA {
			continue
		}
		cudaOpts, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return nil, fmt.Errorf("cuda provider: %w", err)
		}
		err = so.AppendExecutionProviderCUDA(cudaOpts)
		cudaOpts.Destroy()
		if err != nil {
			return nil, fmt.Errorf("cuda provider: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(path, inputs, outputs, so)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &onnxEngine{session: session, inputs: inputs, outputs: outputs}, nil
}

type onnxEngine struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	inputs  []string
	outputs []string
}

func (e *onnxEngine) Inputs() []string  { return e.inputs }
func (e *onnxEngine) Outputs() []string { return e.outputs }

func (e *onnxEngine) Run(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	in := make([]ort.Value, len(e.inputs))
	defer destroyAll(in)
	for i, name := range e.inputs {
		t, ok := inputs[name]
		if !ok {
			return nil, fmt.Errorf("missing input %q", name)
		}
		v, err := toValue(t)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", name, err)
		}
		in[i] = v
	}

	out := make([]ort.Value, len(e.outputs))
	defer destroyAll(out)

	e.mu.Lock()
	if e.session == nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine closed")
	}
	err := e.session.Run(in, out)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	res := make(map[string]*Tensor, len(out))
	for i, v := range out {
		t, err := fromValue(v)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", e.outputs[i], err)
		}
		res[e.outputs[i]] = t
	}
	return res, nil
}

func (e *onnxEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	return err
}

func toValue(t *Tensor) (ort.Value, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	shape := ort.NewShape(t.Dims...)
	switch t.DType {
	case Int64:
		return ort.NewTensor(shape, t.Int)
	case Float32:
		return ort.NewTensor(shape, t.Float)
	default:
		return nil, fmt.Errorf("unsupported dtype %q", t.DType)
	}
}

func fromValue(v ort.Value) (*Tensor, error) {
	switch t := v.(type) {
	case *ort.Tensor[float32]:
		data := append([]float32(nil), t.GetData()...)
		return &Tensor{DType: Float32, Dims: append([]int64(nil), t.GetShape()...), Float: data}, nil
	case *ort.Tensor[int64]:
		data := append([]int64(nil), t.GetData()...)
		return &Tensor{DType: Int64, Dims: append([]int64(nil), t.GetShape()...), Int: data}, nil
	default:
		return nil, fmt.Errorf("unsupported output value %T", v)
	}
}

func destroyAll(vs []ort.Value) {
	for _, v := range vs {
		if v != nil {
			_ = v.Destroy()
		}
	}
}
