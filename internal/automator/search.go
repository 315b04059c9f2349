package automator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"go-jobpilot/internal/browser"
	"go-jobpilot/internal/filter"
	"go-jobpilot/internal/models"
)

// Criteria is what a run searches for, built from the configuration's preferences.
type Criteria struct {
	Keywords []string
	Location string
}

// Search runs one query per keyword, up to the configured maximum, and merges
// the results by external id in first-seen order.
func (a *Automator) Search(ctx context.Context, c Criteria) ([]models.JobListing, error) {
	keywords := make([]string, 0, len(c.Keywords))
	for _, k := range c.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	if limit := a.opts.Search.MaxKeywords; limit > 0 && len(keywords) > limit {
		keywords = keywords[:limit]
	}
	if len(keywords) == 0 {
		return nil, errors.New("search: no keywords")
	}

	var (
		merged   []models.JobListing
		seen     = make(map[string]bool)
		failures int
		lastErr  error
	)
	for i, kw := range keywords {
		if i > 0 {
			if err := a.session.Pause(ctx, a.opts.Pacing.InterQuery); err != nil {
				return merged, err
			}
		}
		a.log.Info("🔍 Searching", zap.String("keyword", kw), zap.String("location", c.Location))
		found, err := a.searchKeyword(ctx, kw, c.Location, seen)
		if ctx.Err() != nil {
			return merged, ctx.Err()
		}
		if err != nil {
			failures++
			lastErr = err
			a.log.Warn("⚠️ Search query failed", zap.String("keyword", kw), zap.Error(err))
			a.audit.Error("search.query", err, map[string]any{"keyword": kw})
		}
		merged = append(merged, found...)
	}

	a.audit.Info("search.done", map[string]any{"keywords": keywords, "unique": len(merged)})
	a.log.Info("📦 Search finished", zap.Int("unique_jobs", len(merged)))
	if failures == len(keywords) {
		return merged, fmt.Errorf("search: every query failed: %w", lastErr)
	}
	return merged, nil
}

// searchKeyword walks result pages until the page cap, a missing next-page
// control, or a page that brings no new ids.
func (a *Automator) searchKeyword(ctx context.Context, keyword, location string, seen map[string]bool) ([]models.JobListing, error) {
	site := a.opts.Site
	if _, err := a.session.Navigate(ctx, []string{site.SearchPageURL(keyword, location, 1)}, a.opts.Timeouts.Navigation); err != nil {
		return nil, err
	}

	maxPages := a.opts.Search.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}

	var out []models.JobListing
	for page := 1; page <= maxPages; page++ {
		if err := a.session.Pause(ctx, a.opts.Pacing.PageLoad); err != nil {
			return out, err
		}
		if err := a.session.Scroll(ctx); err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			a.log.Debug("scroll failed", zap.Error(err))
		}
		cards, err := a.session.LocateAll(ctx, site.JobCard)
		if err != nil {
			return out, err
		}

		fresh := 0
		for _, card := range cards {
			job, ok := a.parseCard(card)
			if !ok || seen[job.ExternalID] {
				continue
			}
			seen[job.ExternalID] = true
			out = append(out, job)
			fresh++
		}
		a.audit.Info("search.page", map[string]any{"keyword": keyword, "page": page, "cards": len(cards), "new": fresh})
		a.log.Info("📄 Result page", zap.String("keyword", keyword), zap.Int("page", page), zap.Int("cards", len(cards)), zap.Int("new", fresh))

		if fresh == 0 || page == maxPages {
			break
		}
		next, err := a.optional(ctx, site.NextPage)
		if err != nil {
			return out, err
		}
		if next == nil {
			break
		}
		if err := a.session.Click(ctx, next, a.opts.Timeouts.Action); err != nil {
			a.log.Warn("⚠️ Next page click failed", zap.Error(err))
			break
		}
	}
	return out, nil
}

func (a *Automator) parseCard(card browser.Element) (models.JobListing, bool) {
	site := a.opts.Site
	job := models.JobListing{Source: site.Name}

	var href, linkText string
	if link := card.Find(site.CardLink); link != nil {
		href, _ = link.Attr("href")
		linkText, _ = link.Text()
		linkText = strings.Join(strings.Fields(linkText), " ")
	}
	if href == "" {
		href, _ = card.Attr("href")
	}
	job.URL = canonicalURL(site.Absolute(strings.TrimSpace(href)))

	job.Title = firstText(card, site.CardTitle, linkText)
	job.Company = firstText(card, site.CardCompany, "")
	job.Location = firstText(card, site.CardLocation, "")
	job.SalaryText = firstText(card, site.CardSalary, "")
	job.PostedLabel = firstText(card, site.CardDate, "")
	if site.CardDate != "" {
		if el := card.Find(site.CardDate); el != nil {
			if dt, _ := el.Attr("datetime"); dt != "" {
				job.PostedLabel = dt
			}
		}
	}
	if site.CardTags != "" {
		for _, t := range card.FindAll(site.CardTags) {
			if text, _ := t.Text(); strings.TrimSpace(text) != "" {
				job.Tags = append(job.Tags, strings.TrimSpace(text))
			}
		}
	}
	job.Description, _ = card.Text()
	job.Description = strings.TrimSpace(job.Description)

	if site.CardIDAttr != "" {
		job.ExternalID, _ = card.Attr(site.CardIDAttr)
		job.ExternalID = strings.TrimSpace(job.ExternalID)
	}
	if job.ExternalID == "" {
		job.ExternalID = job.URL
	}

	if t, ok := filter.ParsePostedDate(job.PostedLabel, a.now()); ok {
		job.PostedAt = &t
	}
	job.SalaryMin, job.SalaryMax = parseSalary(job.SalaryText)
	_, job.Remote = filter.ContainsAny(job.Location+" "+strings.Join(job.Tags, " "), remoteSignals)

	if job.URL == "" || job.Title == "" || job.ExternalID == "" {
		return job, false
	}
	return job, true
}

var remoteSignals = []string{"remote", "teletravail", "full remote", "100% remote"}

func firstText(card browser.Element, selector, fallback string) string {
	if selector == "" {
		return fallback
	}
	el := card.Find(selector)
	if el == nil {
		return fallback
	}
	text, err := el.Text()
	if err != nil {
		return fallback
	}
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return fallback
	}
	return text
}

// canonicalURL drops query and fragment so tracking parameters do not split one job into two.
func canonicalURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimSuffix(u.String(), "/")
}

var salaryNumber = regexp.MustCompile(`(\d{1,3}(?:[\s\x{00a0}\x{202f}.,]\d{3})+|\d+)\s*(k|K)?`)

// parseSalary reads "45k - 55k €" or "45 000 € - 55 000 €" into yearly bounds.
func parseSalary(text string) (int, int) {
	var values []int
	for _, m := range salaryNumber.FindAllStringSubmatch(text, -1) {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, m[1])
		n, err := strconv.Atoi(digits)
		if err != nil {
			continue
		}
		if m[2] != "" {
			n *= 1000
		}
		if n < 1000 {
			continue
		}
		values = append(values, n)
	}
	switch len(values) {
	case 0:
		return 0, 0
	case 1:
		return values[0], values[0]
	}
	lo, hi := values[0], values[1]
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo, hi
}
