package schema

import "errors"

var (
	// ErrBusy indicates a submission is already in flight.
	ErrBusy = errors.New("submission in flight")
	// ErrEmptyMessage indicates the message was empty after trimming.
	ErrEmptyMessage = errors.New("empty message")
	// ErrUnauthenticated indicates no valid session is available.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrInvalidSession indicates a session missing its token or display name.
	ErrInvalidSession = errors.New("session requires token and display name")
	// ErrImageNotFound indicates the log has no image item with the given id.
	ErrImageNotFound = errors.New("image not found")
	// ErrImagePending indicates the image has not been fetched yet.
	ErrImagePending = errors.New("image not ready")
)
