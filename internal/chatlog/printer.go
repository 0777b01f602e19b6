package chatlog

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mdp/qrterminal/v3"

	"pkt.systems/companion/schema"
)

var (
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213"))
	systemStyle    = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("214"))
	imageStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	failStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

// Printer renders log changes as lines on a terminal.
type Printer struct {
	w         io.Writer
	assistant string
	user      string
	showQR    bool
}

// PrinterOptions configures a Printer.
type PrinterOptions struct {
	UserName      string
	AssistantName string
	// ShowQR prints a QR code of the fallback link when an image fails.
	ShowQR bool
}

// NewPrinter returns a Sink writing to w.
func NewPrinter(w io.Writer, opts PrinterOptions) *Printer {
	user := strings.TrimSpace(opts.UserName)
	if user == "" {
		user = "you"
	}
	assistant := strings.TrimSpace(opts.AssistantName)
	if assistant == "" {
		assistant = "companion"
	}
	return &Printer{w: w, user: user, assistant: assistant, showQR: opts.ShowQR}
}

// ItemAppended prints a new entry.
func (p *Printer) ItemAppended(item Item) {
	if item.Kind == KindImage {
		_, _ = fmt.Fprintln(p.w, imageStyle.Render(fmt.Sprintf("[#%d] generating image...", item.ID)))
		return
	}
	switch item.Role {
	case schema.RoleUser:
		_, _ = fmt.Fprintf(p.w, "%s %s\n", userStyle.Render(p.user+":"), item.Text)
	case schema.RoleAssistant:
		_, _ = fmt.Fprintf(p.w, "%s %s\n", assistantStyle.Render(p.assistant+":"), renderInline(item.Text))
	default:
		_, _ = fmt.Fprintln(p.w, systemStyle.Render("* "+item.Text))
	}
}

// ItemResolved prints the outcome of an image placeholder.
func (p *Printer) ItemResolved(item Item) {
	img := item.Image
	switch img.Kind {
	case schema.ImageReady:
		_, _ = fmt.Fprintln(p.w, imageStyle.Render(fmt.Sprintf("[#%d] image ready: %s %dx%d, %d bytes (/save %d to keep it)",
			item.ID, img.Extension, img.Width, img.Height, len(img.Data), item.ID)))
	case schema.ImageTimedOut, schema.ImageFailed:
		reason := "image could not be loaded"
		if img.Kind == schema.ImageTimedOut {
			reason = "image timed out"
		}
		_, _ = fmt.Fprintln(p.w, failStyle.Render(fmt.Sprintf("[#%d] %s, open it directly: %s", item.ID, reason, img.SourceURL)))
		if p.showQR && img.SourceURL != "" {
			qrterminal.GenerateHalfBlock(img.SourceURL, qrterminal.L, p.w)
		}
	}
}
