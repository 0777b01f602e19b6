// Package artifact renders image artifacts referenced by chat replies.
package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/h2non/filetype"
	_ "golang.org/x/image/webp"

	"pkt.systems/companion/internal/logx"
	"pkt.systems/companion/schema"
	"pkt.systems/pslog"
)

const (
	// DefaultTimeout bounds a single image fetch.
	DefaultTimeout = 90 * time.Second
	// DefaultMaxBytes caps the size of a fetched image body.
	DefaultMaxBytes = 16 << 20
)

// Surface is the message log the renderer places images into.
type Surface interface {
	AppendImagePlaceholder() schema.ItemID
	ResolveImagePlaceholder(id schema.ItemID, result schema.ImageResult) bool
}

// Config configures a Renderer.
type Config struct {
	Timeout    time.Duration
	MaxBytes   int64
	HTTPClient *http.Client
}

// Renderer runs the image sub-pipeline: placeholder, bounded fetch, resolution.
type Renderer struct {
	surface  Surface
	http     *http.Client
	timeout  time.Duration
	maxBytes int64
	log      pslog.Logger
	wg       sync.WaitGroup
}

// New constructs a Renderer bound to surface.
func New(cfg Config, surface Surface, logger pslog.Logger) *Renderer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Renderer{
		surface:  surface,
		http:     client,
		timeout:  timeout,
		maxBytes: maxBytes,
		log:      logger,
	}
}

// Render appends a placeholder and starts fetching url in the background.
// The placeholder is resolved exactly once: with the image, a fetch failure,
// or a timeout, whichever settles first.
func (r *Renderer) Render(ctx context.Context, url string) schema.ItemID {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logx.Or(ctx, r.log).With("image_url", url)
	id := r.surface.AppendImagePlaceholder()
	log = log.With("item", int(id))

	var once sync.Once
	settle := func(result schema.ImageResult) {
		once.Do(func() {
			if !r.surface.ResolveImagePlaceholder(id, result) {
				log.Debug("image placeholder already resolved")
				return
			}
			if result.Failed() {
				log.Warn("image render failed", "result", result.Kind.String(), "reason", result.Reason)
				return
			}
			log.Info("image rendered", "mime", result.MIME, "bytes", len(result.Data), "width", result.Width, "height", result.Height)
		})
	}

	// The fetch outlives the submission that started it; only the timeout bounds it.
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	timer := time.AfterFunc(r.timeout, func() {
		settle(timedOut(url, r.timeout))
	})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		result := Fetch(fetchCtx, r.http, url, r.maxBytes)
		if errors.Is(fetchCtx.Err(), context.DeadlineExceeded) && result.Failed() {
			result = timedOut(url, r.timeout)
		}
		timer.Stop()
		settle(result)
	}()
	log.Debug("image fetch started", "timeout", r.timeout.String())
	return id
}

// Wait blocks until every fetch started by Render has returned.
func (r *Renderer) Wait() {
	r.wg.Wait()
}

func timedOut(url string, timeout time.Duration) schema.ImageResult {
	return schema.ImageResult{
		Kind:      schema.ImageTimedOut,
		SourceURL: url,
		Reason:    fmt.Sprintf("image took longer than %s", timeout),
	}
}

func failed(url, reason string) schema.ImageResult {
	return schema.ImageResult{Kind: schema.ImageFailed, SourceURL: url, Reason: reason}
}

// Fetch downloads url and validates the body as an image. It never returns an error;
// failures are reported as an ImageFailed result carrying url as the fallback link.
func Fetch(ctx context.Context, client *http.Client, url string, maxBytes int64) schema.ImageResult {
	if strings.TrimSpace(url) == "" {
		return failed(url, "empty image url")
	}
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return failed(url, err.Error())
	}
	resp, err := client.Do(req)
	if err != nil {
		return failed(url, err.Error())
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return failed(url, fmt.Sprintf("image request returned %d", resp.StatusCode))
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return failed(url, err.Error())
	}
	if int64(len(data)) > maxBytes {
		return failed(url, fmt.Sprintf("image exceeds %d bytes", maxBytes))
	}
	return Decode(url, data)
}

// Decode validates data as a PNG, JPEG, GIF or WebP image.
func Decode(url string, data []byte) schema.ImageResult {
	if len(data) == 0 {
		return failed(url, "empty image body")
	}
	if !filetype.IsImage(data) {
		return failed(url, "response is not an image")
	}
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return failed(url, "unrecognized image type")
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return failed(url, fmt.Sprintf("decode %s: %v", kind.Extension, err))
	}
	return schema.ImageResult{
		Kind:      schema.ImageReady,
		SourceURL: url,
		Data:      data,
		MIME:      kind.MIME.Value,
		Extension: kind.Extension,
		Width:     cfg.Width,
		Height:    cfg.Height,
	}
}
