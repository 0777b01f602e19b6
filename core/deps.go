package core

import (
	"context"

	"pkt.systems/companion/schema"
	"pkt.systems/pslog"
)

// Sessions returns the current session snapshot.
type Sessions interface {
	Current() (schema.Session, bool)
}

// Fetcher sends one classified message and reports its outcome.
type Fetcher interface {
	SendMessage(ctx context.Context, sess schema.Session, msg schema.OutgoingMessage) schema.ChatOutcome
}

// Classifier derives the intent of a message.
type Classifier interface {
	Classify(text string) schema.Intent
}

// MessageLog receives user messages, replies and notices.
type MessageLog interface {
	AppendText(role schema.Role, text string) schema.ItemID
}

// ImageRenderer starts the image sub-pipeline for a reply.
type ImageRenderer interface {
	Render(ctx context.Context, url string) schema.ItemID
	Wait()
}

// Speaker speaks replies without blocking.
type Speaker interface {
	Speak(text string)
}

// StatsView is the mood statistics panel.
type StatsView interface {
	IsVisible() bool
	Refresh(ctx context.Context)
}

// ControllerDeps captures the collaborators of a Controller.
// Sessions, Fetcher, Log and Images are required.
type ControllerDeps struct {
	Sessions   Sessions
	Fetcher    Fetcher
	Classifier Classifier
	Log        MessageLog
	Images     ImageRenderer
	Speaker    Speaker
	Stats      StatsView
	// Logger defaults to the logger bound to the Submit context.
	Logger pslog.Logger
}
