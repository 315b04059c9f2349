package browser

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"go-jobpilot/internal/models"
	"go-jobpilot/utils"
)

const (
	locatePollInterval = 250 * time.Millisecond
	diagnoseTextLimit  = 80
)

// PageSession is a Session backed by one playwright page.
type PageSession struct {
	id          string
	page        playwright.Page
	store       *utils.ScreenshotStore
	opts        Options
	closers     []func() error
	untilJiggle int
}

var _ Session = (*PageSession)(nil)

func newPageSession(id string, page playwright.Page, store *utils.ScreenshotStore, opts Options) *PageSession {
	s := &PageSession{id: id, page: page, store: store, opts: opts}
	s.resetJiggle()
	return s
}

func (s *PageSession) ID() string { return s.id }

func (s *PageSession) URL() string { return s.page.URL() }

func (s *PageSession) Navigate(ctx context.Context, urls []string, timeout time.Duration) (string, error) {
	var lastErr error
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		resp, err := s.page.Goto(u, playwright.PageGotoOptions{
			Timeout:   playwright.Float(ms(timeout)),
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		})
		if err != nil {
			lastErr = err
			continue
		}
		if resp != nil && (resp.Status() == 404 || resp.Status() == 410) {
			lastErr = fmt.Errorf("%s returned %d", u, resp.Status())
			continue
		}
		return s.page.URL(), nil
	}
	return "", &models.NavigationError{URLs: urls, Err: lastErr}
}

func (s *PageSession) Locate(ctx context.Context, strategies []Strategy, timeout time.Duration) (Element, error) {
	deadline := time.Now().Add(timeout)
	for {
		for _, st := range strategies {
			if el := s.firstVisible(st); el != nil {
				return el, nil
			}
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrElementNotFound, Describe(strategies))
		}
		if err := utils.Sleep(ctx, locatePollInterval); err != nil {
			return nil, err
		}
	}
}

func (s *PageSession) firstVisible(st Strategy) Element {
	var loc playwright.Locator
	switch {
	case st.Text != "":
		loc = s.page.Locator(st.Scope(), playwright.PageLocatorOptions{HasText: st.Text})
	case st.CSS != "":
		loc = s.page.Locator(st.CSS)
	default:
		return nil
	}
	count, err := loc.Count()
	if err != nil {
		return nil
	}
	for i := 0; i < count; i++ {
		nth := loc.Nth(i)
		if ok, _ := nth.IsVisible(); ok {
			return &pwElement{loc: nth}
		}
	}
	return nil
}

func (s *PageSession) LocateAll(ctx context.Context, selector string) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	locs, err := s.page.Locator(selector).All()
	if err != nil {
		return nil, err
	}
	out := make([]Element, 0, len(locs))
	for _, l := range locs {
		out = append(out, &pwElement{loc: l})
	}
	return out, nil
}

func (s *PageSession) Type(ctx context.Context, el Element, text string) error {
	pe, ok := el.(*pwElement)
	if !ok {
		return fmt.Errorf("type: foreign element %T", el)
	}
	if err := pe.loc.Fill(""); err != nil {
		return fmt.Errorf("clear field: %w", err)
	}
	if err := pe.loc.Focus(); err != nil {
		return fmt.Errorf("focus field: %w", err)
	}
	keystroke := s.scaled(s.opts.Keystroke)
	for _, r := range text {
		if err := s.page.Keyboard().Type(string(r)); err != nil {
			return fmt.Errorf("type: %w", err)
		}
		if err := utils.RandomDelay(ctx, keystroke); err != nil {
			return err
		}
		s.untilJiggle--
		if s.untilJiggle <= 0 {
			_ = jiggle(s.page)
			s.resetJiggle()
		}
	}
	return nil
}

func (s *PageSession) Click(ctx context.Context, el Element, timeout time.Duration) error {
	pe, ok := el.(*pwElement)
	if !ok {
		return fmt.Errorf("click: foreign element %T", el)
	}
	if box, err := pe.loc.BoundingBox(); err == nil {
		_ = moveNear(s.page, box)
	}
	if err := s.Pause(ctx, s.opts.Settle); err != nil {
		return err
	}
	if err := pe.loc.Click(playwright.LocatorClickOptions{Timeout: playwright.Float(ms(timeout))}); err != nil {
		return fmt.Errorf("click: %w", err)
	}
	return nil
}

func (s *PageSession) Screenshot(ctx context.Context, tag string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.store == nil {
		return "", errors.New("no screenshot store")
	}
	return s.store.Capture(s.page, s.id, tag, s.opts.ScreenshotTimeout)
}

func (s *PageSession) Title(ctx context.Context) string {
	if ctx.Err() != nil {
		return ""
	}
	title, _ := s.page.Title()
	return title
}

func (s *PageSession) BodyText(ctx context.Context) string {
	if ctx.Err() != nil {
		return ""
	}
	text, _ := s.page.Locator("body").InnerText(playwright.LocatorInnerTextOptions{Timeout: playwright.Float(5000)})
	return text
}

func (s *PageSession) Diagnose(ctx context.Context, selector string) []Candidate {
	locs, err := s.page.Locator(selector).All()
	if err != nil {
		return nil
	}
	out := make([]Candidate, 0, len(locs))
	for _, l := range locs {
		if ctx.Err() != nil {
			break
		}
		c := Candidate{}
		if tag, err := l.Evaluate("el => el.tagName.toLowerCase()", nil); err == nil {
			c.Tag, _ = tag.(string)
		}
		c.ID, _ = l.GetAttribute("id")
		c.Name, _ = l.GetAttribute("name")
		c.Type, _ = l.GetAttribute("type")
		c.Visible, _ = l.IsVisible()
		c.Enabled, _ = l.IsEnabled()
		text, _ := l.InnerText(playwright.LocatorInnerTextOptions{Timeout: playwright.Float(1000)})
		c.Text = truncate(strings.Join(strings.Fields(text), " "), diagnoseTextLimit)
		out = append(out, c)
	}
	return out
}

func (s *PageSession) Scroll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return humanScroll(s.page)
}

func (s *PageSession) Pause(ctx context.Context, b utils.Band) error {
	return utils.RandomDelay(ctx, s.scaled(b))
}

// Close releases the page, then its context and owner, in that order.
func (s *PageSession) Close() error {
	var errs []error
	if err := s.page.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close page: %w", err))
	}
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (s *PageSession) scaled(b utils.Band) utils.Band {
	if s.opts.Headless || s.opts.VisiblePacingFactor <= 1 {
		return b
	}
	return b.Scale(s.opts.VisiblePacingFactor)
}

func (s *PageSession) resetJiggle() {
	every := s.opts.JitterEvery
	if every <= 0 {
		every = 8
	}
	s.untilJiggle = every + rand.IntN(8)
}

type pwElement struct {
	loc playwright.Locator
}

func (e *pwElement) Text() (string, error) {
	return e.loc.InnerText(playwright.LocatorInnerTextOptions{Timeout: playwright.Float(5000)})
}

func (e *pwElement) Attr(name string) (string, error) {
	return e.loc.GetAttribute(name)
}

func (e *pwElement) Visible() bool {
	ok, _ := e.loc.IsVisible()
	return ok
}

func (e *pwElement) Enabled() bool {
	ok, _ := e.loc.IsEnabled()
	return ok
}

func (e *pwElement) Find(selector string) Element {
	loc := e.loc.Locator(selector).First()
	if n, err := loc.Count(); err != nil || n == 0 {
		return nil
	}
	return &pwElement{loc: loc}
}

func (e *pwElement) FindAll(selector string) []Element {
	locs, err := e.loc.Locator(selector).All()
	if err != nil {
		return nil
	}
	out := make([]Element, 0, len(locs))
	for _, l := range locs {
		out = append(out, &pwElement{loc: l})
	}
	return out
}

func ms(d time.Duration) float64 {
	if d <= 0 {
		d = 30 * time.Second
	}
	return float64(d.Milliseconds())
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
