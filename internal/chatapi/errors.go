package chatapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// GenericDetail is used when a failure response carries no usable detail.
const GenericDetail = "something went wrong"

// APIError is a non-2xx response from the service.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s (%d %s)", e.Detail, e.Status, http.StatusText(e.Status))
}

// Unauthorized reports whether the service rejected the credential.
func (e *APIError) Unauthorized() bool {
	return e != nil && e.Status == http.StatusUnauthorized
}

type errorBody struct {
	Detail json.RawMessage `json:"detail"`
	Error  string          `json:"error"`
}

// extractDetail pulls a human readable message out of an error body.
// detail may be a string, a list of validation errors with "msg" fields, or any other JSON value.
func extractDetail(data []byte) string {
	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil {
		return GenericDetail
	}
	if detail := detailText(body.Detail); detail != "" {
		return detail
	}
	if msg := strings.TrimSpace(body.Error); msg != "" {
		return msg
	}
	return GenericDetail
}

func detailText(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text)
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &items); err == nil && len(items) > 0 {
		msgs := make([]string, 0, len(items))
		for _, item := range items {
			if msg := strings.TrimSpace(item.Msg); msg != "" {
				msgs = append(msgs, msg)
			}
		}
		if len(msgs) == len(items) {
			return strings.Join(msgs, "; ")
		}
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err == nil {
		return compact.String()
	}
	return trimmed
}
