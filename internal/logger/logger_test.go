package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestJSONLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelWarn)
	log.Info("should not appear")
	log.Debug("also should not appear")
	if buf.Len() > 0 {
		t.Fatalf("expected no output below warn, got: %s", buf.String())
	}

	log.Warn("should appear", "key", "value")
	out := buf.String()
	if !strings.Contains(out, "should appear") || !strings.Contains(out, `"key":"value"`) {
		t.Fatalf("expected warn record with key, got: %s", out)
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format string
		want   string
	}{
		{"json", `"msg":"built"`},
		{"text", "msg=built"},
		{"pretty", "built"},
		{"", "built"},
	}
	for _, tc := range tests {
		var buf bytes.Buffer
		log, err := Build(tc.format, "info", &buf)
		if err != nil {
			t.Fatalf("Build(%q): %v", tc.format, err)
		}
		log.Info("built")
		if !strings.Contains(buf.String(), tc.want) {
			t.Fatalf("Build(%q): expected %q in %q", tc.format, tc.want, buf.String())
		}
	}

	if _, err := Build("xml", "info", &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestBuildHonoursLevel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log, err := Build("text", "error", &buf)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	log.Warn("quiet")
	if buf.Len() != 0 {
		t.Fatalf("expected nothing below error, got %q", buf.String())
	}
}

func TestDiscard(t *testing.T) {
	t.Parallel()
	log := Discard().With("component", "test")
	log.Error("dropped")
	log.WithGroup("g").Info("dropped")
}

func TestWithAndGroup(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	log.With("component", "client").WithGroup("req").Info("sent", "id", 4)

	out := buf.String()
	if !strings.Contains(out, `"component":"client"`) {
		t.Fatalf("expected component attr, got: %s", out)
	}
	if !strings.Contains(out, `"req":{"id":4}`) {
		t.Fatalf("expected grouped id, got: %s", out)
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ctx := WithContext(context.Background(), JSON(&buf, slog.LevelInfo))
	FromContext(ctx).Info("roundtrip test")
	if !strings.Contains(buf.String(), "roundtrip test") {
		t.Fatalf("expected message via context logger, got: %s", buf.String())
	}
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext without a logger returned nil")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{" warning ", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tc := range tests {
		if got := ParseLevel(tc.input); got != tc.expected {
			t.Errorf("ParseLevel(%q): expected %v, got %v", tc.input, tc.expected, got)
		}
	}
}

func TestPrettyHandlerEnabled(t *testing.T) {
	t.Parallel()
	h := NewPrettyHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected info to be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("expected error to be enabled at warn level")
	}
}

func TestPrettyGroupsQualifyLaterAttrsOnly(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, nil).
		WithAttrs([]slog.Attr{slog.String("service", "worker")}).
		WithGroup("a").
		WithAttrs([]slog.Attr{slog.Int("n", 1)}).
		WithGroup("b")
	slog.New(h).Info("nested", "key", "val")

	out := buf.String()
	for _, want := range []string{"service=worker", "a.n=1", "a.b.key=val"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got: %s", want, out)
		}
	}
	if strings.Contains(out, "a.service") || strings.Contains(out, "a.b.a.n") {
		t.Fatalf("attrs were qualified twice: %s", out)
	}
}

func TestPrettyEmptyGroupIsIdentity(t *testing.T) {
	t.Parallel()
	h := NewPrettyHandler(&bytes.Buffer{}, nil)
	if h.WithGroup("") != h {
		t.Fatal("WithGroup empty string should return same handler")
	}
}

func TestPrettyQuoting(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	slog.New(NewPrettyHandler(&buf, nil)).Info("test", "msg", `say "hi"`, "plain", "simple")

	out := buf.String()
	if !strings.Contains(out, `msg="say \"hi\""`) {
		t.Fatalf("expected escaped quoted string, got: %s", out)
	}
	if !strings.Contains(out, "plain=simple") {
		t.Fatalf("expected unquoted simple string, got: %s", out)
	}
}

func TestPrettySource(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	Pretty(&buf, slog.LevelDebug).Debug("where")
	if !strings.Contains(buf.String(), "(logger_test.go:") {
		t.Fatalf("expected source location at debug level, got: %s", buf.String())
	}

	buf.Reset()
	Pretty(&buf, slog.LevelInfo).Info("where")
	if strings.Contains(buf.String(), "logger_test.go") {
		t.Fatalf("expected no source location at info level, got: %s", buf.String())
	}
}

func TestJSONSourceIsCaller(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	JSON(&buf, slog.LevelDebug).With("component", "test").Warn("where")
	if !strings.Contains(buf.String(), "logger_test.go") {
		t.Fatalf("expected caller file in source, got: %s", buf.String())
	}
	if strings.Contains(buf.String(), `logger.go"`) {
		t.Fatalf("source points at the wrapper: %s", buf.String())
	}
}

func TestPrettyDerivedHandlersShareLock(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	base := NewPrettyHandler(&buf, nil)
	loggers := []*slog.Logger{
		slog.New(base),
		slog.New(base.WithAttrs([]slog.Attr{slog.String("side", "a")})),
		slog.New(base.WithGroup("g")),
	}

	var wg sync.WaitGroup
	for _, l := range loggers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				l.Info("line", "i", i)
			}
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 150 {
		t.Fatalf("expected 150 intact lines, got %d", len(lines))
	}
	for _, line := range lines {
		if !strings.Contains(line, "line") {
			t.Fatalf("interleaved output: %q", line)
		}
	}
}
