package notify

import (
	"fmt"
	"io"
	"sync"
)

// Alert is a one-shot notification, separate from the persistent one.
type Alert struct {
	Title string
	Body  string
}

// Surface draws notifications. Implementations must be safe for concurrent use.
type Surface interface {
	Render(r Rendering) error
	Alert(a Alert) error
}

// TextSurface writes each rendering as one line, for terminals and logs.
type TextSurface struct {
	mu sync.Mutex
	w  io.Writer
}

func NewTextSurface(w io.Writer) *TextSurface {
	return &TextSurface{w: w}
}

func (s *TextSurface) Render(r Rendering) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.w, r.String())
	return err
}

func (s *TextSurface) Alert(a Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.Body == "" {
		_, err := fmt.Fprintf(s.w, "(!) %s\n", a.Title)
		return err
	}
	_, err := fmt.Fprintf(s.w, "(!) %s: %s\n", a.Title, a.Body)
	return err
}
