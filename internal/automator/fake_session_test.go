package automator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go-jobpilot/internal/browser"
	"go-jobpilot/internal/models"
	"go-jobpilot/utils"
)

// fakeElement is a scripted page element. visibleFor > 0 makes it disappear
// after that many lookups.
type fakeElement struct {
	text       string
	attrs      map[string]string
	hidden     bool
	disabled   bool
	visibleFor int
	children   map[string][]*fakeElement
	onClick    func(s *fakeSession)
	value      string
}

func (e *fakeElement) Text() (string, error) { return e.text, nil }

func (e *fakeElement) Attr(name string) (string, error) { return e.attrs[name], nil }

func (e *fakeElement) Visible() bool { return !e.hidden }

func (e *fakeElement) Enabled() bool { return !e.disabled }

func (e *fakeElement) Find(selector string) browser.Element {
	if els := e.children[selector]; len(els) > 0 {
		return els[0]
	}
	return nil
}

func (e *fakeElement) FindAll(selector string) []browser.Element {
	out := make([]browser.Element, 0, len(e.children[selector]))
	for _, c := range e.children[selector] {
		out = append(out, c)
	}
	return out
}

type fakePage struct {
	title    string
	body     string
	elements map[string][]*fakeElement
}

type fakeSession struct {
	mu          sync.Mutex
	pages       map[string]*fakePage
	url         string
	current     *fakePage
	navigations []string
	clicks      []string
	typed       map[string]string
	screenshots []string
	diagnosed   int
	pauses      int
	scrolls     int
	closed      int
}

func newFakeSession() *fakeSession {
	return &fakeSession{pages: make(map[string]*fakePage), typed: make(map[string]string)}
}

func (s *fakeSession) page(url string, p *fakePage) *fakeSession {
	if p.elements == nil {
		p.elements = map[string][]*fakeElement{}
	}
	s.pages[url] = p
	return s
}

// goTo switches the current page the way a redirect would.
func (s *fakeSession) goTo(url string) {
	s.url = url
	s.current = s.pages[url]
}

func (s *fakeSession) ID() string { return "fake" }

func (s *fakeSession) Navigate(ctx context.Context, urls []string, _ time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	for _, u := range urls {
		s.navigations = append(s.navigations, u)
		if _, ok := s.pages[u]; ok {
			s.goTo(u)
			return u, nil
		}
	}
	return "", &models.NavigationError{URLs: urls, Err: fmt.Errorf("404")}
}

func (s *fakeSession) Locate(ctx context.Context, strategies []browser.Strategy, _ time.Duration) (browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.current != nil {
		for _, st := range strategies {
			if el := s.firstVisible(st); el != nil {
				return el, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", browser.ErrElementNotFound, browser.Describe(strategies))
}

func (s *fakeSession) firstVisible(st browser.Strategy) *fakeElement {
	key := st.CSS
	if st.Text != "" {
		key = st.Scope()
	}
	for _, el := range s.current.elements[key] {
		if el.hidden {
			continue
		}
		if st.Text != "" && !strings.Contains(strings.ToLower(el.text), strings.ToLower(st.Text)) {
			continue
		}
		if el.visibleFor > 0 {
			el.visibleFor--
			if el.visibleFor == 0 {
				el.hidden = true
			}
		}
		return el
	}
	return nil
}

func (s *fakeSession) LocateAll(_ context.Context, selector string) ([]browser.Element, error) {
	if s.current == nil {
		return nil, nil
	}
	out := make([]browser.Element, 0)
	for _, el := range s.current.elements[selector] {
		out = append(out, el)
	}
	return out, nil
}

func (s *fakeSession) Type(ctx context.Context, el browser.Element, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fe := el.(*fakeElement)
	fe.value = text
	s.typed[fe.attrs["name"]] = text
	return nil
}

func (s *fakeSession) Click(ctx context.Context, el browser.Element, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fe := el.(*fakeElement)
	label := fe.attrs["id"]
	if label == "" {
		label = fe.text
	}
	s.clicks = append(s.clicks, label)
	if fe.onClick != nil {
		fe.onClick(s)
	}
	return nil
}

func (s *fakeSession) Screenshot(_ context.Context, tag string) (string, error) {
	s.screenshots = append(s.screenshots, tag)
	return "shots/" + tag + ".png", nil
}

func (s *fakeSession) URL() string { return s.url }

func (s *fakeSession) Title(context.Context) string {
	if s.current == nil {
		return ""
	}
	return s.current.title
}

func (s *fakeSession) BodyText(context.Context) string {
	if s.current == nil {
		return ""
	}
	return s.current.body
}

func (s *fakeSession) Diagnose(context.Context, string) []browser.Candidate {
	s.diagnosed++
	return []browser.Candidate{{Tag: "input", Name: "login", Visible: true, Enabled: true}}
}

func (s *fakeSession) Scroll(ctx context.Context) error {
	s.scrolls++
	return ctx.Err()
}

func (s *fakeSession) Pause(ctx context.Context, _ utils.Band) error {
	s.pauses++
	return ctx.Err()
}

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

func el(text string, attrs ...string) *fakeElement {
	e := &fakeElement{text: text, attrs: map[string]string{}}
	for i := 0; i+1 < len(attrs); i += 2 {
		e.attrs[attrs[i]] = attrs[i+1]
	}
	return e
}

func (e *fakeElement) click(fn func(s *fakeSession)) *fakeElement {
	e.onClick = fn
	return e
}

func (e *fakeElement) with(selector string, children ...*fakeElement) *fakeElement {
	if e.children == nil {
		e.children = map[string][]*fakeElement{}
	}
	e.children[selector] = append(e.children[selector], children...)
	return e
}
