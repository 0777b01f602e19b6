// Package moodstats renders the user's mood history as a bar chart.
package moodstats

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"

	"pkt.systems/companion/internal/logx"
	"pkt.systems/companion/schema"
	"pkt.systems/pslog"
)

const (
	// Title heads the rendered chart.
	Title = "Mood Analysis (Last 7 Days)"
	// NoDataLabel is the single bar shown when the history is empty.
	NoDataLabel = "No Data"

	statusSuccess = "success"
	barWidth      = 30
)

// ErrNotReady is returned when the service answers with a non-success status.
var ErrNotReady = errors.New("mood stats not available")

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	barStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("111"))
)

// Fetcher loads mood stats for a session.
type Fetcher interface {
	MoodStats(ctx context.Context, sess schema.Session) (schema.MoodStats, error)
}

// SessionSource returns the current session snapshot.
type SessionSource interface {
	Current() (schema.Session, bool)
}

// Bar is one labelled value of the chart.
type Bar struct {
	Label string
	Value float64
}

// View is the mood statistics panel. Refreshes only render while it is visible.
type View struct {
	fetch    Fetcher
	sessions SessionSource
	w        io.Writer
	log      pslog.Logger

	visible atomic.Bool
	// mu serializes chart writes to w.
	mu sync.Mutex
}

// NewView returns a hidden view.
func NewView(fetch Fetcher, sessions SessionSource, w io.Writer, logger pslog.Logger) *View {
	return &View{fetch: fetch, sessions: sessions, w: w, log: logger}
}

// Show makes the view visible.
func (v *View) Show() { v.visible.Store(true) }

// Hide hides the view.
func (v *View) Hide() { v.visible.Store(false) }

// Toggle flips visibility and returns the new state.
func (v *View) Toggle() bool {
	for {
		cur := v.visible.Load()
		if v.visible.CompareAndSwap(cur, !cur) {
			return !cur
		}
	}
}

// IsVisible reports whether the view is shown.
func (v *View) IsVisible() bool { return v.visible.Load() }

// Load fetches the current stats and converts them to chart bars.
func (v *View) Load(ctx context.Context) ([]Bar, error) {
	sess, ok := v.sessions.Current()
	if !ok {
		return nil, schema.ErrUnauthenticated
	}
	stats, err := v.fetch.MoodStats(ctx, sess)
	if err != nil {
		return nil, err
	}
	if stats.Status != statusSuccess {
		return nil, fmt.Errorf("%w: status %q", ErrNotReady, stats.Status)
	}
	return Chart(stats), nil
}

// Refresh reloads and redraws the chart. Failures are logged and otherwise ignored.
func (v *View) Refresh(ctx context.Context) {
	log := logx.Or(ctx, v.log)
	bars, err := v.Load(ctx)
	if err != nil {
		log.Warn("mood stats refresh failed", "err", err)
		return
	}
	v.mu.Lock()
	if v.w != nil && v.IsVisible() {
		_, _ = io.WriteString(v.w, Render(bars))
	}
	v.mu.Unlock()
	log.Debug("mood stats refreshed", "bars", len(bars))
}

// Chart pairs labels with values. Missing values count as zero and an empty
// history yields the single bar "No Data" with value 0.
func Chart(stats schema.MoodStats) []Bar {
	if len(stats.Labels) == 0 {
		return []Bar{{Label: NoDataLabel, Value: 0}}
	}
	bars := make([]Bar, len(stats.Labels))
	for i, label := range stats.Labels {
		bars[i].Label = label
		if i < len(stats.Values) {
			bars[i].Value = stats.Values[i]
		}
	}
	return bars
}

// Render draws bars as a horizontal text chart.
func Render(bars []Bar) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(Title))
	b.WriteString("\n")
	labelWidth := 0
	maxValue := 0.0
	for _, bar := range bars {
		labelWidth = max(labelWidth, len(bar.Label))
		maxValue = math.Max(maxValue, bar.Value)
	}
	for _, bar := range bars {
		n := 0
		if maxValue > 0 && bar.Value > 0 {
			n = int(math.Round(bar.Value / maxValue * barWidth))
			n = max(n, 1)
		}
		fmt.Fprintf(&b, "%-*s %s %s\n", labelWidth, bar.Label, barStyle.Render(strings.Repeat("█", n)), formatValue(bar.Value))
	}
	return b.String()
}

func formatValue(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.1f", v)
}
