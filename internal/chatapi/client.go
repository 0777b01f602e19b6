// Package chatapi talks to the companion service over HTTP.
package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pkt.systems/companion/internal/logx"
	"pkt.systems/companion/schema"
	"pkt.systems/pslog"
)

const (
	chatPath    = "/chat/send"
	statsPath   = "/chat/history-stats"
	loginPath   = "/auth/login"
	signupPath  = "/auth/register"
	maxBodySize = 4 << 20

	defaultTimeout = 60 * time.Second
)

// ErrUnreachable wraps transport failures on auth and stats calls.
var ErrUnreachable = errors.New("cannot connect to server")

// SessionClearer is the mutation the client performs when the service rejects a credential.
type SessionClearer interface {
	Clear() error
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client issues chat, auth and mood-stats requests.
type Client struct {
	base     *url.URL
	http     *http.Client
	sessions SessionClearer
	log      pslog.Logger
}

// New constructs a Client. sessions may be nil when 401 handling is not needed.
func New(cfg Config, sessions SessionClearer, logger pslog.Logger) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("api base url is required")
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("api base url must include scheme and host: %q", raw)
	}
	base.Path = strings.TrimRight(base.Path, "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger != nil {
		logger = logger.With("api", base.Host)
	}
	return &Client{base: base, http: httpClient, sessions: sessions, log: logger}, nil
}

// BaseURL returns the service base URL.
func (c *Client) BaseURL() string {
	return c.base.String()
}

type chatRequest struct {
	Message        string `json:"message"`
	IsImageRequest bool   `json:"is_image_request"`
}

type chatResponse struct {
	Response string  `json:"response"`
	ImageURL *string `json:"image_url"`
}

// SendMessage issues one chat request and maps the result to a ChatOutcome.
// It never returns transport errors to the caller and never retries.
func (c *Client) SendMessage(ctx context.Context, sess schema.Session, msg schema.OutgoingMessage) schema.ChatOutcome {
	log := logx.Or(ctx, c.log).With("path", chatPath, "wants_image", msg.WantsImage)
	body, err := json.Marshal(chatRequest{Message: msg.Text, IsImageRequest: msg.WantsImage})
	if err != nil {
		return schema.NetworkFailureOutcome(err.Error())
	}
	req, err := c.newRequest(ctx, http.MethodPost, chatPath, body, sess.Token)
	if err != nil {
		log.Warn("chat request build failed", "err", err)
		return schema.NetworkFailureOutcome(err.Error())
	}
	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn("chat request failed", "err", err)
		return schema.NetworkFailureOutcome(err.Error())
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		log.Warn("chat response read failed", "status", resp.StatusCode, "err", err)
		return schema.NetworkFailureOutcome(err.Error())
	}
	log = log.With("status", resp.StatusCode, "duration_ms", time.Since(started).Milliseconds())

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var payload chatResponse
		if err := json.Unmarshal(data, &payload); err != nil {
			log.Warn("chat response decode failed", "err", err)
			return schema.ServerErrorOutcome(resp.StatusCode, "malformed response from server")
		}
		imageURL := ""
		if payload.ImageURL != nil {
			imageURL = strings.TrimSpace(*payload.ImageURL)
		}
		log.Info("chat reply received", "reply_len", len(payload.Response), "image", imageURL != "")
		return schema.SuccessOutcome(payload.Response, imageURL)
	case resp.StatusCode == http.StatusUnauthorized:
		log.Warn("chat credential rejected")
		if c.sessions != nil {
			if err := c.sessions.Clear(); err != nil {
				log.Warn("session clear failed", "err", err)
			}
		}
		return schema.AuthExpiredOutcome()
	default:
		detail := extractDetail(data)
		log.Warn("chat request rejected", "detail", detail)
		return schema.ServerErrorOutcome(resp.StatusCode, detail)
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Username    string `json:"username"`
}

// Login exchanges credentials for a session. It does not store the session.
func (c *Client) Login(ctx context.Context, email, password string) (schema.Session, error) {
	var payload loginResponse
	if err := c.doJSON(ctx, http.MethodPost, loginPath, "", loginRequest{Email: email, Password: password}, &payload); err != nil {
		return schema.Session{}, err
	}
	sess, err := schema.NormalizeSession(payload.AccessToken, payload.Username)
	if err != nil {
		return schema.Session{}, fmt.Errorf("login response: %w", err)
	}
	logx.Or(ctx, c.log).Info("login ok", "user", sess.DisplayName)
	return sess, nil
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterResult is the service acknowledgement of a new account.
type RegisterResult struct {
	Message string `json:"message"`
	UserID  int    `json:"user_id"`
}

// Register creates an account. The user still has to log in afterwards.
func (c *Client) Register(ctx context.Context, username, email, password string) (RegisterResult, error) {
	var result RegisterResult
	err := c.doJSON(ctx, http.MethodPost, signupPath, "", registerRequest{Username: username, Email: email, Password: password}, &result)
	if err != nil {
		return RegisterResult{}, err
	}
	logx.Or(ctx, c.log).Info("register ok", "user", username, "user_id", result.UserID)
	return result, nil
}

// MoodStats fetches the mood history for the session's user.
func (c *Client) MoodStats(ctx context.Context, sess schema.Session) (schema.MoodStats, error) {
	var stats schema.MoodStats
	if err := c.doJSON(ctx, http.MethodGet, statsPath, sess.Token, nil, &stats); err != nil {
		return schema.MoodStats{}, err
	}
	return stats, nil
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, in any, out any) error {
	var body []byte
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = encoded
	}
	req, err := c.newRequest(ctx, method, path, body, token)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		logx.Or(ctx, c.log).Warn("api request failed", "path", path, "err", err)
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Detail: extractDetail(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte, token string) (*http.Request, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	target := *c.base
	target.Path = c.base.Path + path
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}
