// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"

	"github.com/jeranaias/chatstream/internal/model"
	"github.com/jeranaias/chatstream/internal/ui/styles"
	"github.com/jeranaias/chatstream/internal/util"
)

// =============================================================================
// MARKDOWN RENDERER
// =============================================================================

type renderedTurn struct {
	size int
	out  string
}

// markdownRenderer renders assistant replies through glamour and caches the
// output per turn. A turn only ever grows, so an unchanged length means an
// unchanged turn.
type markdownRenderer struct {
	style   string
	enabled bool
	width   int
	log     *logrus.Entry

	term  *glamour.TermRenderer
	cache map[string]renderedTurn
}

func newMarkdownRenderer(style string, enabled bool, log *logrus.Entry) *markdownRenderer {
	return &markdownRenderer{
		style:   style,
		enabled: enabled,
		log:     log,
		cache:   make(map[string]renderedTurn),
	}
}

// SetWidth changes the wrap width and drops everything rendered at the old
// width.
func (r *markdownRenderer) SetWidth(width int) {
	if width == r.width {
		return
	}
	r.width = width
	r.term = nil
	r.cache = make(map[string]renderedTurn)
}

// Render returns content rendered for the turn with the given ID.
func (r *markdownRenderer) Render(id, content string) string {
	if c, ok := r.cache[id]; ok && c.size == len(content) {
		return c.out
	}
	out := r.render(content)
	r.cache[id] = renderedTurn{size: len(content), out: out}
	return out
}

func (r *markdownRenderer) render(content string) string {
	if !r.enabled || r.width <= 0 {
		return plainWrap(content, r.width)
	}
	if r.term == nil {
		term, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(r.style),
			glamour.WithWordWrap(r.width),
		)
		if err != nil {
			r.log.WithError(err).Warn("Markdown renderer unavailable, falling back to plain text")
			r.enabled = false
			return plainWrap(content, r.width)
		}
		r.term = term
	}
	out, err := r.term.Render(content)
	if err != nil {
		r.log.WithError(err).Debug("Markdown render failed")
		return plainWrap(content, r.width)
	}
	return strings.Trim(out, "\n")
}

// Retain drops cached turns whose IDs are not in keep.
func (r *markdownRenderer) Retain(keep map[string]struct{}) {
	for id := range r.cache {
		if _, ok := keep[id]; !ok {
			delete(r.cache, id)
		}
	}
}

func plainWrap(content string, width int) string {
	if width <= 0 {
		return content
	}
	return lipgloss.NewStyle().Width(width).Render(content)
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

const emptyTranscriptHint = "Type a message and press Enter. /help lists commands."

// renderTranscript draws every turn, oldest first.
func renderTranscript(turns []model.Turn, theme *styles.Theme, md *markdownRenderer, width int) string {
	if len(turns) == 0 {
		md.Retain(nil)
		return theme.Muted.Render(emptyTranscriptHint)
	}

	bodyWidth := width - 2
	if bodyWidth < 1 {
		bodyWidth = 1
	}

	keep := make(map[string]struct{}, len(turns))
	var b strings.Builder
	for i, t := range turns {
		keep[t.ID] = struct{}{}
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(renderTurnHeader(t, theme))
		b.WriteString("\n")
		switch {
		case t.IsError:
			b.WriteString(theme.ErrorText.Width(bodyWidth).Render(t.Content))
		case t.IsUser():
			b.WriteString(theme.UserText.Width(bodyWidth).Render(t.Content))
		default:
			b.WriteString(md.Render(t.ID, t.Content))
		}
	}
	if len(md.cache) > len(keep) {
		md.Retain(keep)
	}
	return b.String()
}

func renderTurnHeader(t model.Turn, theme *styles.Theme) string {
	var label string
	switch {
	case t.IsError:
		label = theme.ErrorLabel.Render("Error")
	case t.IsUser():
		label = theme.UserLabel.Render("You")
	default:
		label = theme.AssistantLabel.Render("Assistant")
	}
	if t.Timestamp.IsZero() {
		return label
	}
	return label + " " + theme.Timestamp.Render(t.Timestamp.Format("15:04"))
}

// =============================================================================
// HEADER
// =============================================================================

func renderHeader(theme *styles.Theme, name, modelName, url string, width int) string {
	const title = "chatstream"
	inner := width - 2
	info := name
	if modelName != "" {
		info += " · " + modelName
	}
	info = util.TruncateWidth(info, inner-util.StringWidth(title)-2)

	line := theme.HeaderTitle.Render(title) + "  " + info
	room := inner - util.StringWidth(title) - util.StringWidth(info) - 4
	if room > 8 && url != "" {
		line += "  " + theme.HeaderURL.Render(util.TruncateMiddle(url, room))
	}
	return theme.Header.Width(width).Render(line)
}
