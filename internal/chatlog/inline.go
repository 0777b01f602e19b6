package chatlog

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// spanStyle is a bit set of inline emphasis markers.
type spanStyle uint8

const (
	styleStrong spanStyle = 1 << iota
	styleEmphasis
	styleCode
)

type span struct {
	text  string
	style spanStyle
}

var codeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("180"))

// splitInline breaks a reply into spans of **strong**, *emphasis* and `code`.
// Markers without a closing partner are kept as literal text.
func splitInline(s string) []span {
	var (
		out   []span
		cur   strings.Builder
		style spanStyle
	)
	emit := func() {
		if cur.Len() == 0 {
			return
		}
		out = append(out, span{text: cur.String(), style: style})
		cur.Reset()
	}
	toggle := func(flag spanStyle, marker, rest string) bool {
		if style&flag != 0 {
			emit()
			style &^= flag
			return true
		}
		if strings.Contains(rest, marker) {
			emit()
			style |= flag
			return true
		}
		return false
	}
	for i := 0; i < len(s); {
		switch {
		case s[i] == '\\' && i+1 < len(s):
			cur.WriteByte(s[i+1])
			i += 2
			continue
		case s[i] == '`':
			if toggle(styleCode, "`", s[i+1:]) {
				i++
				continue
			}
		case style&styleCode == 0 && strings.HasPrefix(s[i:], "**"):
			if !toggle(styleStrong, "**", s[i+2:]) {
				cur.WriteString("**")
			}
			i += 2
			continue
		case style&styleCode == 0 && s[i] == '*':
			if toggle(styleEmphasis, "*", s[i+1:]) {
				i++
				continue
			}
		}
		cur.WriteByte(s[i])
		i++
	}
	emit()
	return out
}

// renderInline styles a reply for the terminal.
func renderInline(s string) string {
	var b strings.Builder
	for _, sp := range splitInline(s) {
		if sp.style == 0 {
			b.WriteString(sp.text)
			continue
		}
		st := lipgloss.NewStyle()
		if sp.style&styleCode != 0 {
			st = codeStyle
		}
		if sp.style&styleStrong != 0 {
			st = st.Bold(true)
		}
		if sp.style&styleEmphasis != 0 {
			st = st.Italic(true)
		}
		b.WriteString(st.Render(sp.text))
	}
	return b.String()
}
