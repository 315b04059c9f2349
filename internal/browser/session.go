package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-jobpilot/utils"
)

var ErrElementNotFound = errors.New("element not found")

// Strategy is one way of finding an element. Strategies are tried in priority
// order so a renamed class or id falls back to the next candidate instead of
// failing the step.
type Strategy struct {
	CSS    string `yaml:"css,omitempty"`
	Text   string `yaml:"text,omitempty"`   // visible text the element must contain
	Within string `yaml:"within,omitempty"` // selector scoping a text strategy
}

const defaultTextScope = `button, a, [role="button"], input[type="submit"], label`

func CSS(selector string) Strategy { return Strategy{CSS: selector} }

func ByText(within, text string) Strategy { return Strategy{Text: text, Within: within} }

// Scope is the selector a text strategy searches in.
func (s Strategy) Scope() string {
	if s.Within != "" {
		return s.Within
	}
	return defaultTextScope
}

func (s Strategy) String() string {
	if s.Text != "" {
		return fmt.Sprintf("text(%q in %s)", s.Text, s.Scope())
	}
	return "css(" + s.CSS + ")"
}

// Describe renders a strategy list for logs.
func Describe(strategies []Strategy) string {
	parts := make([]string, len(strategies))
	for i, s := range strategies {
		parts[i] = s.String()
	}
	return strings.Join(parts, " | ")
}

// Element is a handle on one page element.
type Element interface {
	Text() (string, error)
	Attr(name string) (string, error)
	Visible() bool
	Enabled() bool
	// Find returns the first descendant matching selector, or nil.
	Find(selector string) Element
	FindAll(selector string) []Element
}

// Candidate is one control reported by a diagnostic dump.
type Candidate struct {
	Tag     string `json:"tag"`
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Type    string `json:"type,omitempty"`
	Text    string `json:"text,omitempty"`
	Visible bool   `json:"visible"`
	Enabled bool   `json:"enabled"`
}

func (c Candidate) String() string {
	return fmt.Sprintf("<%s id=%q name=%q type=%q visible=%t enabled=%t> %q", c.Tag, c.ID, c.Name, c.Type, c.Visible, c.Enabled, c.Text)
}

// Session is the browser capability a site automation drives. Every blocking
// operation is bounded by its context and an explicit timeout.
type Session interface {
	ID() string
	// Navigate tries urls in order; a not-found response moves on to the next one.
	Navigate(ctx context.Context, urls []string, timeout time.Duration) (string, error)
	// Locate returns the first present and visible element, or ErrElementNotFound.
	Locate(ctx context.Context, strategies []Strategy, timeout time.Duration) (Element, error)
	LocateAll(ctx context.Context, selector string) ([]Element, error)
	// Type enters text one character at a time at a human pace.
	Type(ctx context.Context, el Element, text string) error
	// Click moves the pointer near el, settles briefly, then clicks.
	Click(ctx context.Context, el Element, timeout time.Duration) error
	// Screenshot stores a capture and returns its reference.
	Screenshot(ctx context.Context, tag string) (string, error)
	URL() string
	Title(ctx context.Context) string
	BodyText(ctx context.Context) string
	// Diagnose lists every control matching selector with its visibility and state.
	Diagnose(ctx context.Context, selector string) []Candidate
	// Scroll wheels through the page the way a reader would, loading lazy content.
	Scroll(ctx context.Context) error
	// Pause waits for a duration drawn from b, stretched in visible mode.
	Pause(ctx context.Context, b utils.Band) error
	Close() error
}
