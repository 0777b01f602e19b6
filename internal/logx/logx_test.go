package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"pkt.systems/companion/schema"
	"pkt.systems/pslog"
)

func TestWithSubmissionAddsField(t *testing.T) {
	capture := &logCapture{}
	logger := newCaptureLogger(capture)
	log := WithSubmission(logger, "sub-1")
	log.Info("hello")

	entry := capture.firstEntry(t)
	if entry["submission"] != "sub-1" {
		t.Fatalf("expected submission field, got %+v", entry)
	}
}

func TestWithSubmissionSkipsEmpty(t *testing.T) {
	capture := &logCapture{}
	logger := newCaptureLogger(capture)
	WithSubmission(logger, "").Info("hello")

	entry := capture.firstEntry(t)
	if _, ok := entry["submission"]; ok {
		t.Fatalf("did not expect submission field, got %+v", entry)
	}
}

func TestWithIntentAddsFlags(t *testing.T) {
	capture := &logCapture{}
	logger := newCaptureLogger(capture)
	WithIntent(logger, schema.Intent{WantsImage: true}).Info("hello")

	entry := capture.firstEntry(t)
	if entry["wants_image"] != true {
		t.Fatalf("expected wants_image=true, got %+v", entry)
	}
	if entry["wants_speech"] != false {
		t.Fatalf("expected wants_speech=false, got %+v", entry)
	}
}

func TestWithUserUsesContextLogger(t *testing.T) {
	capture := &logCapture{}
	logger := newCaptureLogger(capture)
	ctx := pslog.ContextWithLogger(context.Background(), logger)
	WithUser(ctx, "alice").Info("hello")

	entry := capture.firstEntry(t)
	if entry["user"] != "alice" {
		t.Fatalf("expected user field, got %+v", entry)
	}
}

func TestSubmissionContextRoundTrip(t *testing.T) {
	ctx := ContextWithSubmission(context.Background(), "sub-9")
	if got := SubmissionFromContext(ctx); got != "sub-9" {
		t.Fatalf("expected sub-9, got %q", got)
	}
	if got := SubmissionFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty submission, got %q", got)
	}
}

func TestOrPrefersAnnotatedContext(t *testing.T) {
	capture := &logCapture{}
	fallback := &logCapture{}
	ctx := ContextWithSubmissionLogger(context.Background(), WithSubmission(newCaptureLogger(capture), "sub-2"), "sub-2")
	Or(ctx, newCaptureLogger(fallback)).Info("hello")

	if fallback.buf.Len() != 0 {
		t.Fatalf("expected context logger, fallback got %q", fallback.buf.String())
	}
	if entry := capture.firstEntry(t); entry["submission"] != "sub-2" {
		t.Fatalf("expected submission field, got %+v", entry)
	}
}

func TestOrPrefersGivenLoggerWithoutAnnotation(t *testing.T) {
	capture := &logCapture{}
	ctxCapture := &logCapture{}
	ctx := pslog.ContextWithLogger(context.Background(), newCaptureLogger(ctxCapture))
	Or(ctx, newCaptureLogger(capture)).Info("hello")

	if ctxCapture.buf.Len() != 0 || capture.buf.Len() == 0 {
		t.Fatalf("expected the given logger to be used")
	}
}

func TestWithUserSkipsBoundUser(t *testing.T) {
	capture := &logCapture{}
	log := WithUser(pslog.ContextWithLogger(context.Background(), newCaptureLogger(capture)), "alice")
	ctx := ContextWithUserLogger(context.Background(), log, "alice")
	WithUser(ctx, "alice").Info("hello")

	line := capture.buf.String()
	if strings.Count(line, `"user"`) != 1 {
		t.Fatalf("expected a single user field, got %s", line)
	}
}

func newCaptureLogger(capture *logCapture) pslog.Logger {
	return pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.InfoLevel,
		VerboseFields: true,
	})
}

type logCapture struct {
	buf bytes.Buffer
}

func (c *logCapture) Write(p []byte) (int, error) {
	return c.buf.Write(p)
}

func (c *logCapture) firstEntry(t *testing.T) map[string]any {
	t.Helper()
	data := c.buf.Bytes()
	idx := bytes.IndexByte(data, '\n')
	if idx == -1 {
		idx = len(data)
	}
	line := bytes.TrimSpace(data[:idx])
	entry := map[string]any{}
	if err := json.Unmarshal(line, &entry); err != nil {
		t.Fatalf("parse log entry: %v", err)
	}
	return entry
}
