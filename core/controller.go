package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"pkt.systems/companion/internal/intent"
	"pkt.systems/companion/internal/logx"
	"pkt.systems/companion/internal/speech"
	"pkt.systems/companion/schema"
	"pkt.systems/pslog"
)

const (
	// NoticeSessionExpired is appended when there is no usable session.
	NoticeSessionExpired = "session expired, please log in again"
	// NoticeConnectionLost is appended when the service cannot be reached.
	NoticeConnectionLost = "connection lost with server"
	// ErrorPrefix precedes the detail of a rejected request.
	ErrorPrefix = "error: "

	maxRenderedIDs = 1024
)

// ErrPipelinePanic is returned when a collaborator panicked during Submit.
var ErrPipelinePanic = errors.New("pipeline submit panicked")

// Controller runs the message pipeline: one submission at a time, classified,
// fetched and rendered into the message log.
type Controller struct {
	sessions   Sessions
	fetcher    Fetcher
	classifier Classifier
	log        MessageLog
	images     ImageRenderer
	speaker    Speaker
	stats      StatsView
	logger     pslog.Logger

	busy atomic.Bool

	mu       sync.Mutex
	rendered map[schema.SubmissionID]struct{}
	order    []schema.SubmissionID

	wg sync.WaitGroup
}

// NewController validates deps and returns a Controller.
func NewController(deps ControllerDeps) (*Controller, error) {
	switch {
	case deps.Sessions == nil:
		return nil, errors.New("controller requires a session store")
	case deps.Fetcher == nil:
		return nil, errors.New("controller requires a fetcher")
	case deps.Log == nil:
		return nil, errors.New("controller requires a message log")
	case deps.Images == nil:
		return nil, errors.New("controller requires an image renderer")
	}
	if deps.Classifier == nil {
		deps.Classifier = intent.Default()
	}
	if deps.Speaker == nil {
		deps.Speaker = speech.Noop{}
	}
	return &Controller{
		sessions:   deps.Sessions,
		fetcher:    deps.Fetcher,
		classifier: deps.Classifier,
		log:        deps.Log,
		images:     deps.Images,
		speaker:    deps.Speaker,
		stats:      deps.Stats,
		logger:     deps.Logger,
		rendered:   make(map[schema.SubmissionID]struct{}),
	}, nil
}

// Busy reports whether a submission is in flight.
func (c *Controller) Busy() bool {
	return c.busy.Load()
}

// Submit sends text through the pipeline. A submission made while another is in
// flight is dropped with ErrBusy; nothing is appended and no request is made.
// Failure outcomes are rendered as notices and are not returned as errors.
func (c *Controller) Submit(ctx context.Context, text string) (result schema.SubmitResult, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !c.busy.CompareAndSwap(false, true) {
		logx.Or(ctx, c.logger).Debug("pipeline submit rejected: busy")
		return schema.SubmitResult{}, schema.ErrBusy
	}
	defer c.busy.Store(false)
	defer func() {
		if p := recover(); p != nil {
			c.log.AppendText(schema.RoleSystem, NoticeConnectionLost)
			logx.Or(ctx, c.logger).Error("pipeline submit panicked", "panic", fmt.Sprint(p))
			result, err = schema.SubmitResult{}, fmt.Errorf("%w: %v", ErrPipelinePanic, p)
		}
	}()

	text, err = schema.NormalizeMessage(text)
	if err != nil {
		return schema.SubmitResult{}, err
	}
	sess, ok := c.sessions.Current()
	if !ok {
		c.log.AppendText(schema.RoleSystem, NoticeSessionExpired)
		logx.Or(ctx, c.logger).Info("pipeline submit rejected: no session")
		return schema.SubmitResult{}, schema.ErrUnauthenticated
	}

	id := newSubmissionID()
	ctx = pslog.ContextWithLogger(ctx, logx.Or(ctx, c.logger))
	log := logx.WithUser(ctx, sess.DisplayName)
	ctx = logx.ContextWithUserLogger(ctx, log, sess.DisplayName)
	log = logx.WithSubmission(log, id)
	ctx = logx.ContextWithSubmissionLogger(ctx, log, id)

	c.log.AppendText(schema.RoleUser, text)
	msg := schema.OutgoingMessage{Text: text, Intent: c.classifier.Classify(text)}
	log = logx.WithIntent(log, msg.Intent)
	ctx = pslog.ContextWithLogger(ctx, log)
	log.Info("pipeline submit start", "text_len", len(text))

	outcome := c.fetcher.SendMessage(ctx, sess, msg)
	result = schema.SubmitResult{ID: id, Message: msg, Outcome: outcome}
	c.RenderOutcome(ctx, result)
	log.Info("pipeline submit done", "outcome", outcome.Kind.String())
	return result, nil
}

// RenderOutcome renders the outcome of a submission into the message log and
// starts its side channels. Each submission renders at most once; repeated calls
// with the same ID return false and do nothing.
func (c *Controller) RenderOutcome(ctx context.Context, result schema.SubmitResult) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	if result.ID == "" {
		logx.Or(ctx, c.logger).Warn("pipeline render skipped: missing submission id")
		return false
	}
	if !c.markRendered(result.ID) {
		logx.Or(ctx, c.logger).Debug("pipeline render skipped: already rendered", "submission", result.ID)
		return false
	}
	outcome := result.Outcome
	switch outcome.Kind {
	case schema.OutcomeSuccess:
		c.log.AppendText(schema.RoleAssistant, outcome.ReplyText)
		if outcome.ImageURL != "" && result.Message.WantsImage {
			c.images.Render(ctx, outcome.ImageURL)
		}
		if result.Message.WantsSpeech {
			c.speaker.Speak(outcome.ReplyText)
		}
		c.refreshStats(ctx)
	case schema.OutcomeAuthExpired:
		c.log.AppendText(schema.RoleSystem, NoticeSessionExpired)
	case schema.OutcomeServerError:
		c.log.AppendText(schema.RoleSystem, ErrorPrefix+outcome.Detail)
	case schema.OutcomeNetworkFailure:
		c.log.AppendText(schema.RoleSystem, NoticeConnectionLost)
	default:
		logx.Or(ctx, c.logger).Warn("pipeline render: unknown outcome", "kind", int(outcome.Kind))
		return false
	}
	return true
}

func (c *Controller) refreshStats(ctx context.Context) {
	if c.stats == nil || !c.stats.IsVisible() {
		return
	}
	refreshCtx := context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.stats.Refresh(refreshCtx)
	}()
}

func (c *Controller) markRendered(id schema.SubmissionID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rendered[id]; ok {
		return false
	}
	c.rendered[id] = struct{}{}
	c.order = append(c.order, id)
	if len(c.order) > maxRenderedIDs {
		delete(c.rendered, c.order[0])
		c.order = c.order[1:]
	}
	return true
}

// Wait blocks until background image fetches and stats refreshes have finished.
func (c *Controller) Wait() {
	c.wg.Wait()
	c.images.Wait()
}
