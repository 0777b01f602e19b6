package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pkt.systems/companion/internal/artifact"
	"pkt.systems/companion/internal/chatapi"
	"pkt.systems/companion/internal/chatlog"
	"pkt.systems/companion/internal/logx"
	"pkt.systems/companion/internal/session"
	"pkt.systems/companion/schema"
	"pkt.systems/pslog"
)

var testSession = schema.Session{Token: "tok", DisplayName: "alice"}

type staticSessions struct {
	sess schema.Session
	ok   bool
}

func (s staticSessions) Current() (schema.Session, bool) { return s.sess, s.ok }

type fakeFetcher struct {
	calls atomic.Int32
	fn    func(ctx context.Context, sess schema.Session, msg schema.OutgoingMessage) schema.ChatOutcome
}

func (f *fakeFetcher) SendMessage(ctx context.Context, sess schema.Session, msg schema.OutgoingMessage) schema.ChatOutcome {
	f.calls.Add(1)
	return f.fn(ctx, sess, msg)
}

type fakeImages struct {
	mu   sync.Mutex
	urls []string
	log  *chatlog.Log
}

func (f *fakeImages) Render(_ context.Context, url string) schema.ItemID {
	f.mu.Lock()
	f.urls = append(f.urls, url)
	f.mu.Unlock()
	return f.log.AppendImagePlaceholder()
}

func (f *fakeImages) Wait() {}

func (f *fakeImages) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.urls)
}

type fakeSpeaker struct {
	mu     sync.Mutex
	spoken []string
}

func (f *fakeSpeaker) Speak(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, text)
}

type fakeStats struct {
	visible   bool
	refreshed atomic.Int32
}

func (f *fakeStats) IsVisible() bool             { return f.visible }
func (f *fakeStats) Refresh(ctx context.Context) { f.refreshed.Add(1) }

type harness struct {
	ctrl    *Controller
	log     *chatlog.Log
	fetcher *fakeFetcher
	images  *fakeImages
	speaker *fakeSpeaker
	stats   *fakeStats
}

func newHarness(t *testing.T, sessions Sessions, fn func(ctx context.Context, sess schema.Session, msg schema.OutgoingMessage) schema.ChatOutcome) *harness {
	t.Helper()
	log := chatlog.New(chatlog.Options{})
	h := &harness{
		log:     log,
		fetcher: &fakeFetcher{fn: fn},
		images:  &fakeImages{log: log},
		speaker: &fakeSpeaker{},
		stats:   &fakeStats{},
	}
	ctrl, err := NewController(ControllerDeps{
		Sessions: sessions,
		Fetcher:  h.fetcher,
		Log:      log,
		Images:   h.images,
		Speaker:  h.speaker,
		Stats:    h.stats,
	})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	h.ctrl = ctrl
	return h
}

func reply(text, url string) func(context.Context, schema.Session, schema.OutgoingMessage) schema.ChatOutcome {
	return func(context.Context, schema.Session, schema.OutgoingMessage) schema.ChatOutcome {
		return schema.SuccessOutcome(text, url)
	}
}

func texts(items []chatlog.Item) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item.Kind == chatlog.KindImage {
			out = append(out, "<image>")
			continue
		}
		out = append(out, item.Text)
	}
	return out
}

func TestSubmitPlainReply(t *testing.T) {
	h := newHarness(t, staticSessions{testSession, true}, reply("hello alice", "http://img/1.png"))
	res, err := h.ctrl.Submit(context.Background(), "  hi there  ")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.ID == "" || res.Outcome.Kind != schema.OutcomeSuccess {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Message.Text != "hi there" || res.Message.WantsImage {
		t.Fatalf("unexpected message %+v", res.Message)
	}
	got := texts(h.log.Items())
	if len(got) != 2 || got[0] != "hi there" || got[1] != "hello alice" {
		t.Fatalf("unexpected log %v", got)
	}
	if h.images.count() != 0 {
		t.Fatalf("image url must be ignored without image intent")
	}
	if h.ctrl.Busy() {
		t.Fatalf("expected lock released")
	}
}

func TestSubmitImageAfterReply(t *testing.T) {
	h := newHarness(t, staticSessions{testSession, true}, reply("here is your cat", "http://img/cat.png"))
	res, err := h.ctrl.Submit(context.Background(), "Draw a cat")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Message.WantsImage {
		t.Fatalf("expected image intent")
	}
	got := texts(h.log.Items())
	if len(got) != 3 || got[1] != "here is your cat" || got[2] != "<image>" {
		t.Fatalf("expected reply before placeholder, got %v", got)
	}
	if h.images.urls[0] != "http://img/cat.png" {
		t.Fatalf("unexpected image url %v", h.images.urls)
	}
}

func TestSubmitWithoutImageURL(t *testing.T) {
	h := newHarness(t, staticSessions{testSession, true}, reply("no picture today", ""))
	if _, err := h.ctrl.Submit(context.Background(), "draw a cat"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if h.images.count() != 0 {
		t.Fatalf("expected no image pipeline without url")
	}
}

func TestSubmitSpeaksReply(t *testing.T) {
	h := newHarness(t, staticSessions{testSession, true}, reply("hello", ""))
	if _, err := h.ctrl.Submit(context.Background(), "please speak to me"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(h.speaker.spoken) != 1 || h.speaker.spoken[0] != "hello" {
		t.Fatalf("expected reply spoken, got %v", h.speaker.spoken)
	}
	if _, err := h.ctrl.Submit(context.Background(), "hello"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(h.speaker.spoken) != 1 {
		t.Fatalf("expected no speech without speech intent")
	}
}

func TestSubmitEmptyMessage(t *testing.T) {
	h := newHarness(t, staticSessions{testSession, true}, reply("x", ""))
	if _, err := h.ctrl.Submit(context.Background(), "   "); !errors.Is(err, schema.ErrEmptyMessage) {
		t.Fatalf("expected empty message error, got %v", err)
	}
	if h.log.Len() != 0 || h.fetcher.calls.Load() != 0 {
		t.Fatalf("expected nothing appended and no request")
	}
}

func TestSubmitWithoutSession(t *testing.T) {
	h := newHarness(t, staticSessions{}, reply("x", ""))
	if _, err := h.ctrl.Submit(context.Background(), "hello"); !errors.Is(err, schema.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if h.fetcher.calls.Load() != 0 {
		t.Fatalf("expected no request without session")
	}
	got := texts(h.log.Items())
	if len(got) != 1 || got[0] != NoticeSessionExpired {
		t.Fatalf("expected session notice, got %v", got)
	}
}

func TestSubmitWhileBusyIsDropped(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	h := newHarness(t, staticSessions{testSession, true}, func(context.Context, schema.Session, schema.OutgoingMessage) schema.ChatOutcome {
		close(entered)
		<-release
		return schema.SuccessOutcome("done", "")
	})
	errc := make(chan error, 1)
	go func() {
		_, err := h.ctrl.Submit(context.Background(), "first")
		errc <- err
	}()
	<-entered
	if !h.ctrl.Busy() {
		t.Fatalf("expected controller busy")
	}
	before := h.log.Len()
	if _, err := h.ctrl.Submit(context.Background(), "second"); !errors.Is(err, schema.ErrBusy) {
		t.Fatalf("expected busy, got %v", err)
	}
	if h.log.Len() != before {
		t.Fatalf("busy submission must not append")
	}
	close(release)
	if err := <-errc; err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if h.fetcher.calls.Load() != 1 {
		t.Fatalf("expected one request, got %d", h.fetcher.calls.Load())
	}
	got := texts(h.log.Items())
	if len(got) != 2 || got[0] != "first" || got[1] != "done" {
		t.Fatalf("unexpected log %v", got)
	}
}

func TestFailureNotices(t *testing.T) {
	cases := []struct {
		outcome schema.ChatOutcome
		want    string
	}{
		{schema.ServerErrorOutcome(500, "AI processing failed."), "error: AI processing failed."},
		{schema.NetworkFailureOutcome("dial tcp: refused"), NoticeConnectionLost},
		{schema.AuthExpiredOutcome(), NoticeSessionExpired},
	}
	for _, tc := range cases {
		outcome := tc.outcome
		h := newHarness(t, staticSessions{testSession, true}, func(context.Context, schema.Session, schema.OutgoingMessage) schema.ChatOutcome {
			return outcome
		})
		if _, err := h.ctrl.Submit(context.Background(), "draw a cat"); err != nil {
			t.Fatalf("%s: submit: %v", outcome.Kind, err)
		}
		got := texts(h.log.Items())
		if len(got) != 2 || got[1] != tc.want {
			t.Fatalf("%s: unexpected log %v", outcome.Kind, got)
		}
		if h.images.count() != 0 || len(h.speaker.spoken) != 0 {
			t.Fatalf("%s: failures must not start side channels", outcome.Kind)
		}
		if h.ctrl.Busy() {
			t.Fatalf("%s: expected lock released", outcome.Kind)
		}
	}
}

func TestRenderOutcomeOnce(t *testing.T) {
	h := newHarness(t, staticSessions{testSession, true}, reply("a cat", "http://img/cat.png"))
	res, err := h.ctrl.Submit(context.Background(), "draw a cat and say it out loud")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	before := h.log.Len()
	if h.ctrl.RenderOutcome(context.Background(), res) {
		t.Fatalf("expected repeated render to be skipped")
	}
	if h.log.Len() != before || h.images.count() != 1 || len(h.speaker.spoken) != 1 {
		t.Fatalf("repeated render duplicated side effects: log=%d images=%d speech=%d", h.log.Len(), h.images.count(), len(h.speaker.spoken))
	}
	if h.ctrl.RenderOutcome(context.Background(), schema.SubmitResult{Outcome: res.Outcome}) {
		t.Fatalf("expected render without id to be skipped")
	}
}

func TestStatsRefreshOnlyWhenVisible(t *testing.T) {
	h := newHarness(t, staticSessions{testSession, true}, reply("ok", ""))
	if _, err := h.ctrl.Submit(context.Background(), "hello"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	h.ctrl.Wait()
	if h.stats.refreshed.Load() != 0 {
		t.Fatalf("expected no refresh while hidden")
	}
	h.stats.visible = true
	if _, err := h.ctrl.Submit(context.Background(), "hello again"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	h.ctrl.Wait()
	if h.stats.refreshed.Load() != 1 {
		t.Fatalf("expected one refresh, got %d", h.stats.refreshed.Load())
	}
}

func TestSubmitRecoversFromPanic(t *testing.T) {
	var panicked atomic.Bool
	h := newHarness(t, staticSessions{testSession, true}, func(context.Context, schema.Session, schema.OutgoingMessage) schema.ChatOutcome {
		if panicked.CompareAndSwap(false, true) {
			panic("boom")
		}
		return schema.SuccessOutcome("recovered", "")
	})
	if _, err := h.ctrl.Submit(context.Background(), "hello"); !errors.Is(err, ErrPipelinePanic) {
		t.Fatalf("expected ErrPipelinePanic, got %v", err)
	}
	if h.ctrl.Busy() {
		t.Fatalf("expected lock released after panic")
	}
	got := texts(h.log.Items())
	if len(got) != 2 || got[0] != "hello" || got[1] != NoticeConnectionLost {
		t.Fatalf("expected connection lost notice, got %v", got)
	}
	if _, err := h.ctrl.Submit(context.Background(), "hello"); err != nil {
		t.Fatalf("submit after panic: %v", err)
	}
}

func TestSubmitBindsLoggerForCollaborators(t *testing.T) {
	var buf lockedLog
	base := pslog.NewWithOptions(&buf, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.InfoLevel,
		VerboseFields: true,
	})
	other := pslog.NewWithOptions(io.Discard, pslog.Options{Mode: pslog.ModeStructured, NoColor: true})
	h := newHarness(t, staticSessions{testSession, true}, func(ctx context.Context, _ schema.Session, _ schema.OutgoingMessage) schema.ChatOutcome {
		logx.Or(ctx, other).Info("fetch seen")
		return schema.SuccessOutcome("ok", "")
	})
	ctx := pslog.ContextWithLogger(context.Background(), base)
	res, err := h.ctrl.Submit(ctx, "draw me")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	var entry map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if strings.Contains(line, "fetch seen") {
			if err := json.Unmarshal([]byte(line), &entry); err != nil {
				t.Fatalf("parse log entry: %v", err)
			}
		}
	}
	if entry == nil {
		t.Fatalf("collaborator log did not reach the context logger:\n%s", buf.String())
	}
	if entry["user"] != "alice" || entry["submission"] != string(res.ID) || entry["wants_image"] != true {
		t.Fatalf("missing pipeline fields in %+v", entry)
	}
}

type lockedLog struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (l *lockedLog) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

func (l *lockedLog) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

func TestNewControllerRequiresDeps(t *testing.T) {
	if _, err := NewController(ControllerDeps{}); err == nil {
		t.Fatalf("expected error for missing deps")
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

// End to end through the HTTP client, session store, message log and image renderer.
func TestPipelineAgainstService(t *testing.T) {
	img := pngBytes(t)
	var chatCalls atomic.Int32
	var expire atomic.Bool
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/chat/send":
			chatCalls.Add(1)
			if expire.Load() {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"detail":"Session expired"}`))
				return
			}
			_, _ = w.Write([]byte(`{"response":"a cat for you","image_url":"` + srv.URL + `/images/1.png"}`))
		case "/images/1.png":
			_, _ = w.Write(img)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	store, err := session.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("open session store: %v", err)
	}
	if err := store.Set(testSession); err != nil {
		t.Fatalf("set session: %v", err)
	}
	client, err := chatapi.New(chatapi.Config{BaseURL: srv.URL}, store, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	log := chatlog.New(chatlog.Options{})
	ctrl, err := NewController(ControllerDeps{
		Sessions: store,
		Fetcher:  client,
		Log:      log,
		Images:   artifact.New(artifact.Config{Timeout: 5 * time.Second}, log, nil),
	})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}

	if _, err := ctrl.Submit(context.Background(), "make a picture of a cat"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	ctrl.Wait()
	items := log.Items()
	if len(items) != 3 || items[2].Kind != chatlog.KindImage {
		t.Fatalf("unexpected items %v", texts(items))
	}
	if items[2].Image.Kind != schema.ImageReady || !bytes.Equal(items[2].Image.Data, img) {
		t.Fatalf("expected ready image, got %s", items[2].Image.Kind)
	}

	expire.Store(true)
	res, err := ctrl.Submit(context.Background(), "hello")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Outcome.Kind != schema.OutcomeAuthExpired {
		t.Fatalf("expected auth expired, got %s", res.Outcome.Kind)
	}
	if _, ok := store.Current(); ok {
		t.Fatalf("expected session cleared after 401")
	}
	calls := chatCalls.Load()
	if _, err := ctrl.Submit(context.Background(), "hello?"); !errors.Is(err, schema.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if chatCalls.Load() != calls {
		t.Fatalf("expected no request after session cleared")
	}
}
