package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"pkt.systems/companion/core"
	"pkt.systems/companion/internal/appconfig"
	"pkt.systems/companion/internal/artifact"
	"pkt.systems/companion/internal/chatapi"
	"pkt.systems/companion/internal/chatlog"
	"pkt.systems/companion/internal/intent"
	"pkt.systems/companion/internal/moodstats"
	"pkt.systems/companion/internal/session"
	"pkt.systems/companion/internal/speech"
	"pkt.systems/pslog"
)

// clientEnv holds what every client command needs: config, stored session and API client.
type clientEnv struct {
	cfg      appconfig.Config
	sessions *session.Store
	client   *chatapi.Client
	logger   pslog.Logger
}

func openClientEnv(ctx context.Context, cfgPath string) (*clientEnv, error) {
	cfg, err := appconfig.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger := pslog.Ctx(ctx)
	sessions, err := session.Open(cfg.StateDir, logger)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	client, err := chatapi.New(chatapi.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: time.Duration(cfg.API.RequestTimeoutSeconds) * time.Second,
	}, sessions, logger)
	if err != nil {
		return nil, err
	}
	return &clientEnv{cfg: cfg, sessions: sessions, client: client, logger: logger}, nil
}

// chatRuntime wires the pipeline for one chat command.
type chatRuntime struct {
	log      *chatlog.Log
	printer  *chatlog.Printer
	images   *artifact.Renderer
	speaker  speech.Speaker
	stats    *moodstats.View
	ctrl     *core.Controller
	sessions *session.Store
}

func (e *clientEnv) newChatRuntime(out io.Writer) (*chatRuntime, error) {
	userName := ""
	if sess, ok := e.sessions.Current(); ok {
		userName = sess.DisplayName
	}
	printer := chatlog.NewPrinter(out, chatlog.PrinterOptions{UserName: userName, ShowQR: e.cfg.Image.ShowQR})
	msgLog := chatlog.New(chatlog.Options{
		MaxItems: e.cfg.Chat.HistoryLimit,
		SaveDir:  e.cfg.Image.SaveDir,
		Sink:     printer,
		Logger:   e.logger,
	})
	images := artifact.New(artifact.Config{
		Timeout:  time.Duration(e.cfg.Image.TimeoutSeconds) * time.Second,
		MaxBytes: e.cfg.Image.MaxBytes,
	}, msgLog, e.logger)
	speaker := speech.Detect(speech.Config{
		Enabled: e.cfg.Speech.Enabled,
		Command: e.cfg.Speech.Command,
		Args:    e.cfg.Speech.Args,
	}, e.logger)
	stats := moodstats.NewView(e.client, e.sessions, out, e.logger)
	if e.cfg.Chat.ShowStats {
		stats.Show()
	}
	classifier := intent.New(intent.WithExtra(intent.DefaultRules,
		e.cfg.Intent.ExtraGeneration, e.cfg.Intent.ExtraDescriptive, e.cfg.Intent.ExtraSpeech))
	ctrl, err := core.NewController(core.ControllerDeps{
		Sessions:   e.sessions,
		Fetcher:    e.client,
		Classifier: classifier,
		Log:        msgLog,
		Images:     images,
		Speaker:    speaker,
		Stats:      stats,
		Logger:     e.logger,
	})
	if err != nil {
		_ = speaker.Close()
		return nil, err
	}
	return &chatRuntime{
		log:      msgLog,
		printer:  printer,
		images:   images,
		speaker:  speaker,
		stats:    stats,
		ctrl:     ctrl,
		sessions: e.sessions,
	}, nil
}

// Close waits for background fetches and stops speech.
func (r *chatRuntime) Close() error {
	r.ctrl.Wait()
	return r.speaker.Close()
}
