package automator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-jobpilot/internal/models"
)

func searchURL(kw string, page int) string {
	return testOptions().Site.SearchPageURL(kw, "Paris", page)
}

func card(id, title, href string) *fakeElement {
	c := el(title+" Acme Paris", "data-id", id).
		with("a", el(title, "href", href)).
		with("h2", el(title)).
		with(".company", el("Acme")).
		with(".location", el("Paris (Télétravail)")).
		with(".salary", el("45k - 55k €")).
		with(".tag", el("Go"), el("Docker"))
	return c.with("time", el("il y a 2 jours", "datetime", "2026-03-08"))
}

func resultsPage(next func(s *fakeSession), cards ...*fakeElement) *fakePage {
	p := &fakePage{elements: map[string][]*fakeElement{"li.job": cards}}
	if next != nil {
		p.elements[`a[rel="next"]`] = []*fakeElement{el("Suivant", "id", "next").click(next)}
	}
	return p
}

func ids(jobs []models.JobListing) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.ExternalID
	}
	return out
}

func TestSearch_ParsesCards(t *testing.T) {
	s := newFakeSession().page(searchURL("golang", 1), resultsPage(nil,
		card("1", "Développeur Go", "/jobs/1?utm_source=list"),
		el("no link card", "data-id", "x"),
	))
	a, _ := newTestAutomator(s)

	jobs, err := a.Search(context.Background(), Criteria{Keywords: []string{"golang"}, Location: "Paris"})
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	job := jobs[0]
	assert.Equal(t, "1", job.ExternalID)
	assert.Equal(t, "Développeur Go", job.Title)
	assert.Equal(t, "Acme", job.Company)
	assert.Equal(t, "https://board.test/jobs/1", job.URL)
	assert.Equal(t, []string{"Go", "Docker"}, job.Tags)
	assert.Equal(t, 45000, job.SalaryMin)
	assert.Equal(t, 55000, job.SalaryMax)
	assert.True(t, job.Remote)
	assert.Equal(t, "board", job.Source)
	require.NotNil(t, job.PostedAt)
	assert.Equal(t, "2026-03-08", job.PostedAt.Format("2006-01-02"))
}

func TestSearch_IDFallsBackToURL(t *testing.T) {
	c := card("", "Go Dev", "https://board.test/jobs/9?ref=1")
	s := newFakeSession().page(searchURL("golang", 1), resultsPage(nil, c))
	a, _ := newTestAutomator(s)

	jobs, err := a.Search(context.Background(), Criteria{Keywords: []string{"golang"}, Location: "Paris"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://board.test/jobs/9"}, ids(jobs))
}

// a page that yields no new ids ends pagination even when a next control exists
func TestSearch_PaginationStopsOnNoNewIDs(t *testing.T) {
	p2, p3 := "https://board.test/p2", "https://board.test/p3"
	s := newFakeSession()
	s.page(searchURL("golang", 1), resultsPage(func(s *fakeSession) { s.goTo(p2) },
		card("1", "Go A", "/jobs/1"), card("2", "Go B", "/jobs/2")))
	s.page(p2, resultsPage(func(s *fakeSession) { s.goTo(p3) },
		card("2", "Go B", "/jobs/2"), card("3", "Go C", "/jobs/3")))
	s.page(p3, resultsPage(func(s *fakeSession) { t.Fatal("page 4 must not be requested") },
		card("1", "Go A", "/jobs/1"), card("3", "Go C", "/jobs/3")))
	a, _ := newTestAutomator(s)

	jobs, err := a.Search(context.Background(), Criteria{Keywords: []string{"golang"}, Location: "Paris"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, ids(jobs))
	assert.Equal(t, []string{"next", "next"}, s.clicks)
}

func TestSearch_PageCap(t *testing.T) {
	p2 := "https://board.test/p2"
	s := newFakeSession()
	s.page(searchURL("golang", 1), resultsPage(func(s *fakeSession) { s.goTo(p2) }, card("1", "Go A", "/jobs/1")))
	s.page(p2, resultsPage(func(s *fakeSession) { t.Fatal("page cap exceeded") }, card("2", "Go B", "/jobs/2")))
	a, _ := newTestAutomator(s)
	a.opts.Search.MaxPages = 2

	jobs, err := a.Search(context.Background(), Criteria{Keywords: []string{"golang"}, Location: "Paris"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids(jobs))
	assert.Equal(t, 2, s.scrolls)
}

func TestSearch_MultiKeywordMerge(t *testing.T) {
	s := newFakeSession()
	s.page(searchURL("golang", 1), resultsPage(nil, card("1", "Go A", "/jobs/1"), card("2", "Go B", "/jobs/2")))
	s.page(searchURL("react", 1), resultsPage(nil, card("2", "Go B", "/jobs/2"), card("4", "React D", "/jobs/4")))
	s.page(searchURL("vue", 1), resultsPage(nil, card("5", "Vue E", "/jobs/5")))
	a, log := newTestAutomator(s)

	jobs, err := a.Search(context.Background(), Criteria{Keywords: []string{"golang", " ", "react", "vue"}, Location: "Paris"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "4"}, ids(jobs), "bounded to the first two keywords, merged in first-seen order")
	assert.NotContains(t, s.navigations, searchURL("vue", 1))
	assert.Contains(t, actions(log), "search.done")
}

func TestSearch_Failures(t *testing.T) {
	t.Run("one query fails", func(t *testing.T) {
		s := newFakeSession().page(searchURL("react", 1), resultsPage(nil, card("4", "React D", "/jobs/4")))
		a, log := newTestAutomator(s)

		jobs, err := a.Search(context.Background(), Criteria{Keywords: []string{"golang", "react"}, Location: "Paris"})
		require.NoError(t, err)
		assert.Equal(t, []string{"4"}, ids(jobs))
		assert.Len(t, log.Summary().Errors, 1)
	})

	t.Run("every query fails", func(t *testing.T) {
		a, _ := newTestAutomator(newFakeSession())
		_, err := a.Search(context.Background(), Criteria{Keywords: []string{"golang"}})
		var navErr *models.NavigationError
		assert.ErrorAs(t, err, &navErr)
	})

	t.Run("no keywords", func(t *testing.T) {
		a, _ := newTestAutomator(newFakeSession())
		_, err := a.Search(context.Background(), Criteria{})
		assert.Error(t, err)
	})
}

const (
	jobURL     = "https://board.test/jobs/1"
	formURL    = "https://board.test/jobs/1/apply"
	doneURL    = "https://board.test/jobs/1/done"
	confirmURL = "https://board.test/jobs/1/confirmation"
)

var testJob = models.JobListing{ExternalID: "1", Title: "Go Dev", Company: "Acme", URL: jobURL}

func detailPage(apply *fakeElement) *fakePage {
	p := &fakePage{title: "Go Dev", elements: map[string][]*fakeElement{}}
	if apply != nil {
		p.elements[`[data-testid="apply-button"]`] = []*fakeElement{apply}
	}
	return p
}

func formFields() map[string][]*fakeElement {
	return map[string][]*fakeElement{
		`input[type="tel"]`:       {el("", "name", "phone")},
		`input[name*="postal"]`:   {el("", "name", "postal")},
		`input[name*="city"]`:     {el("", "name", "city")},
		`textarea[name*="cover"]`: {el("", "name", "cover")},
	}
}

// formPage builds the application form. With withContinue the fields only
// appear after the continue button is clicked.
func formPage(withContinue bool, onSubmit func(s *fakeSession)) *fakePage {
	p := &fakePage{elements: map[string][]*fakeElement{
		`form button[type="submit"]`: {el("Envoyer ma candidature", "id", "submit").click(onSubmit)},
	}}
	if !withContinue {
		for k, v := range formFields() {
			p.elements[k] = v
		}
		return p
	}
	p.elements["form button"] = []*fakeElement{el("Continuer", "id", "continue").click(func(s *fakeSession) {
		for k, v := range formFields() {
			s.current.elements[k] = v
		}
	})}
	return p
}

func applySession(withContinue bool, onSubmit func(s *fakeSession)) *fakeSession {
	return newFakeSession().
		page(jobURL, detailPage(el("Postuler", "id", "apply", "href", "/jobs/1/apply").click(func(s *fakeSession) { s.goTo(formURL) }))).
		page(formURL, formPage(withContinue, onSubmit)).
		page(doneURL, &fakePage{body: "Merci ! Votre candidature a bien été envoyée."}).
		page(confirmURL, &fakePage{})
}

var contact = models.ContactDetails{Phone: "0600000000", PostalCode: "75011"}

func TestApplyToJob_Confirmed(t *testing.T) {
	s := applySession(true, func(s *fakeSession) { s.goTo(doneURL) })
	a, log := newTestAutomator(s)

	res, err := a.ApplyToJob(context.Background(), Application{Job: testJob, Contact: contact, CoverLetter: "Bonjour", Submit: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.True(t, res.Success())
	assert.Equal(t, "text: candidature a bien ete envoyee", res.Signal)
	assert.Equal(t, "shots/confirmation.png", res.ScreenshotRef)

	assert.Equal(t, []string{"apply", "continue", "submit"}, s.clicks)
	assert.Equal(t, map[string]string{"phone": "0600000000", "postal": "75011", "cover": "Bonjour"}, s.typed)
	assert.Contains(t, actions(log), "apply.OptionalContinueStep")
	assert.Contains(t, actions(log), "apply.Applied")
}

func TestApplyToJob_NoContinueStep(t *testing.T) {
	s := applySession(false, func(s *fakeSession) { s.goTo(confirmURL) })
	a, log := newTestAutomator(s)

	res, err := a.ApplyToJob(context.Background(), Application{Job: testJob, Contact: contact, Submit: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, "url", res.Signal)
	assert.Equal(t, []string{"apply", "submit"}, s.clicks)
	assert.NotContains(t, actions(log), "apply.OptionalContinueStep")
}

func TestApplyToJob_ConfirmationMarker(t *testing.T) {
	s := applySession(false, func(s *fakeSession) {
		s.current.elements[`[data-testid="application-confirmation"]`] = []*fakeElement{el("OK")}
	})
	a, _ := newTestAutomator(s)

	res, err := a.ApplyToJob(context.Background(), Application{Job: testJob, Submit: true})
	require.NoError(t, err)
	assert.Equal(t, "marker", res.Signal)
}

func TestApplyToJob_ExternalRedirect(t *testing.T) {
	tests := []struct {
		name  string
		apply *fakeElement
	}{
		{"off-site href", el("Postuler", "id", "apply", "href", "https://careers.acme.test/jobs/1", "target", "_blank")},
		{"label", el("Postuler sur le site du recruteur", "id", "apply")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFakeSession().page(jobURL, detailPage(tt.apply))
			a, _ := newTestAutomator(s)

			res, err := a.ApplyToJob(context.Background(), Application{Job: testJob, Submit: true})
			require.NoError(t, err)
			assert.False(t, res.Success())
			assert.Equal(t, models.ReasonExternalRedirect, res.Reason)
			assert.Empty(t, s.clicks, "external postings are never clicked through")

			reason, ok := models.ReasonOf(res.Err)
			assert.True(t, ok)
			assert.Equal(t, models.ReasonExternalRedirect, reason)
		})
	}

	t.Run("redirect after click", func(t *testing.T) {
		const offsite = "https://careers.acme.test/apply"
		s := newFakeSession().
			page(jobURL, detailPage(el("Postuler", "id", "apply").click(func(s *fakeSession) { s.goTo(offsite) }))).
			page(offsite, &fakePage{})
		a, _ := newTestAutomator(s)

		res, err := a.ApplyToJob(context.Background(), Application{Job: testJob, Submit: true})
		require.NoError(t, err)
		assert.Equal(t, models.ReasonExternalRedirect, res.Reason)
	})
}

func TestApplyToJob_Rehearsal(t *testing.T) {
	s := applySession(true, func(s *fakeSession) { t.Fatal("rehearsal must not submit") })
	a, _ := newTestAutomator(s)

	res, err := a.ApplyToJob(context.Background(), Application{Job: testJob, Contact: contact, Submit: false})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRehearsed, res.Outcome)
	assert.True(t, res.Success())
	assert.Equal(t, []string{"apply", "continue"}, s.clicks)
	assert.Equal(t, "0600000000", s.typed["phone"])
}

func TestApplyToJob_SubmissionUncertain(t *testing.T) {
	s := applySession(false, nil)
	a, log := newTestAutomator(s)

	res, err := a.ApplyToJob(context.Background(), Application{Job: testJob, Submit: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUncertain, res.Outcome)
	assert.Equal(t, models.ReasonSubmissionUncertain, res.Reason)
	assert.False(t, res.Success())
	assert.Contains(t, actions(log), "apply.uncertain")
}

func TestApplyToJob_FormNotFound(t *testing.T) {
	t.Run("no apply button", func(t *testing.T) {
		s := newFakeSession().page(jobURL, detailPage(nil))
		a, _ := newTestAutomator(s)

		res, err := a.ApplyToJob(context.Background(), Application{Job: testJob, Submit: true})
		require.NoError(t, err)
		assert.Equal(t, models.ReasonFormNotFound, res.Reason)
		assert.Equal(t, "shots/apply-failed.png", res.ScreenshotRef)
	})

	t.Run("no submit button", func(t *testing.T) {
		s := newFakeSession().
			page(jobURL, detailPage(el("Postuler", "id", "apply").click(func(s *fakeSession) { s.goTo(formURL) }))).
			page(formURL, &fakePage{})
		a, _ := newTestAutomator(s)

		res, err := a.ApplyToJob(context.Background(), Application{Job: testJob, Submit: true})
		require.NoError(t, err)
		assert.Equal(t, models.ReasonFormNotFound, res.Reason)
		assert.Equal(t, 1, s.diagnosed)
	})
}

func TestApplyToJob_Unreachable(t *testing.T) {
	a, _ := newTestAutomator(newFakeSession())

	res, err := a.ApplyToJob(context.Background(), Application{Job: testJob, Submit: true})
	require.NoError(t, err)
	assert.Equal(t, models.ReasonNetwork, res.Reason)
	assert.True(t, res.Reason.Retryable())
}

func TestApplyToJob_Cancelled(t *testing.T) {
	s := applySession(false, nil)
	a, _ := newTestAutomator(s)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.ApplyToJob(ctx, Application{Job: testJob, Submit: true})
	assert.ErrorIs(t, err, context.Canceled)
}
