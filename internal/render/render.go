// ABOUTME: HTML export of a convoy card for rendering collaborators
// ABOUTME: Description rendered as markdown with goldmark, route sorted by waypoint order

// Package render turns a convoy and its chat into a standalone HTML page.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/2389/convoy-coordinator/internal/store"
)

// Card is everything shown on one convoy page.
type Card struct {
	Convoy   store.Convoy
	Messages []store.ChatMessage
}

type cardData struct {
	Convoy      store.Convoy
	Description template.HTML
	Route       []store.Waypoint
	Capacity    string
	Messages    []store.ChatMessage
}

// Renderer renders convoy cards. It is safe for concurrent use.
type Renderer struct {
	md   goldmark.Markdown
	tmpl *template.Template
}

var funcs = template.FuncMap{
	"date":    func(t time.Time) string { return t.Format("02.01.2006") },
	"clock":   func(t time.Time) string { return t.Format("02.01.2006 15:04") },
	"isoDate": func(t time.Time) string { return t.Format(time.RFC3339) },
	"coords":  func(lat, lng float64) string { return fmt.Sprintf("%.4f, %.4f", lat, lng) },
	"deref":   func(n *int) int { return *n },
}

// New creates a Renderer. Raw HTML in descriptions is escaped.
func New() *Renderer {
	return &Renderer{
		md:   goldmark.New(goldmark.WithExtensions(extension.Linkify, extension.Strikethrough)),
		tmpl: template.Must(template.New("convoy.html").Funcs(funcs).ParseFS(templateFS, "templates/convoy.html")),
	}
}

// Markdown converts a convoy description to HTML.
func (r *Renderer) Markdown(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("converting markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// Convoy writes the HTML page for card to w.
func (r *Renderer) Convoy(w io.Writer, card Card) error {
	desc, err := r.Markdown(card.Convoy.Description)
	if err != nil {
		return err
	}
	data := cardData{
		Convoy:      card.Convoy,
		Description: desc,
		Route:       card.Convoy.SortedWaypoints(),
		Capacity:    Capacity(card.Convoy),
		Messages:    card.Messages,
	}
	if err := r.tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("rendering convoy %s: %w", card.Convoy.ID, err)
	}
	return nil
}

// Capacity describes how many seats are left, or "" when unbounded.
func Capacity(c store.Convoy) string {
	if c.MaxParticipants == nil {
		return ""
	}
	left := max(*c.MaxParticipants-len(c.Participants), 0)
	switch left {
	case 0:
		return "Convoy full"
	case 1:
		return "1 spot left"
	default:
		return fmt.Sprintf("%d spots left", left)
	}
}
