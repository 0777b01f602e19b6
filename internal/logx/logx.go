package logx

import (
	"context"

	"pkt.systems/companion/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	userKey contextKey = iota
	submissionKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	if ctx == nil {
		ctx = context.Background()
	}
	return pslog.Ctx(ctx)
}

// Or returns the logger bound to ctx once a user or submission has been attached,
// otherwise logger when set, otherwise the logger bound to ctx.
func Or(ctx context.Context, logger pslog.Logger) pslog.Logger {
	if logger == nil || annotated(ctx) {
		return Ctx(ctx)
	}
	return logger
}

func annotated(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	if SubmissionFromContext(ctx) != "" {
		return true
	}
	_, ok := ctx.Value(userKey).(string)
	return ok
}

// WithUser annotates the logger with the display name if present.
func WithUser(ctx context.Context, displayName string) pslog.Logger {
	log := Ctx(ctx)
	if displayName != "" {
		if current, ok := ctx.Value(userKey).(string); ok && current == displayName {
			return log
		}
		log = log.With("user", displayName)
	}
	return log
}

// WithSubmission annotates the logger with a submission id when available.
func WithSubmission(log pslog.Logger, id schema.SubmissionID) pslog.Logger {
	if id != "" {
		log = log.With("submission", id)
	}
	return log
}

// WithIntent annotates the logger with the classified intent flags.
func WithIntent(log pslog.Logger, intent schema.Intent) pslog.Logger {
	return log.With("wants_image", intent.WantsImage, "wants_speech", intent.WantsSpeech)
}

// ContextWithUser stores the user marker on the context for log de-duplication.
func ContextWithUser(ctx context.Context, displayName string) context.Context {
	if ctx == nil || displayName == "" {
		return ctx
	}
	return context.WithValue(ctx, userKey, displayName)
}

// ContextWithSubmission stores the submission marker on the context.
func ContextWithSubmission(ctx context.Context, id schema.SubmissionID) context.Context {
	if ctx == nil || id == "" {
		return ctx
	}
	return context.WithValue(ctx, submissionKey, id)
}

// SubmissionFromContext returns the submission marker, if any.
func SubmissionFromContext(ctx context.Context) schema.SubmissionID {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(submissionKey).(schema.SubmissionID)
	return id
}

// ContextWithUserLogger attaches the logger and user marker to the context.
func ContextWithUserLogger(ctx context.Context, log pslog.Logger, displayName string) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithUser(ctx, displayName)
}

// ContextWithSubmissionLogger attaches the logger and submission marker to the context.
func ContextWithSubmissionLogger(ctx context.Context, log pslog.Logger, id schema.SubmissionID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithSubmission(ctx, id)
}
