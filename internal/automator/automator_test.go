package automator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-jobpilot/internal/audit"
	"go-jobpilot/internal/config"
	"go-jobpilot/internal/models"
)

const (
	loginURL = "https://board.test/login"
	homeURL  = "https://board.test/home"
)

func testOptions() Options {
	site := config.DefaultSiteProfile()
	site.Name = "board"
	site.BaseURL = "https://board.test"
	site.LoginURLs = []string{loginURL}
	site.SearchURL = "https://board.test/search?k={keyword}&l={location}&p={page}"
	site.LogoutURL = "https://board.test/logout"
	site.JobCard = "li.job"
	site.CardIDAttr = "data-id"
	site.CardLink = "a"
	site.CardTitle = "h2"
	site.CardCompany = ".company"
	site.CardLocation = ".location"
	site.CardSalary = ".salary"
	site.CardDate = "time"
	site.CardTags = ".tag"

	return Options{
		Site:   site,
		Pacing: config.Default().Pacing,
		Timeouts: config.TimeoutConfig{
			Navigation:   time.Second,
			Element:      time.Second,
			Confirmation: 20 * time.Millisecond,
			CaptchaGrace: time.Millisecond,
			Action:       time.Second,
		},
		Search: config.SearchConfig{MaxKeywords: 2, MaxPages: 5},
	}
}

func newTestAutomator(s *fakeSession) (*Automator, *audit.Log) {
	log := audit.New("run-test", nil)
	a := New(s, testOptions(), log, nil)
	a.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	return a, log
}

func loginPage(onSubmit func(s *fakeSession)) *fakePage {
	return &fakePage{title: "Connexion", elements: map[string][]*fakeElement{
		`input[type="email"]`:        {el("", "name", "email")},
		`input[type="password"]`:     {el("", "name", "password")},
		`form button[type="submit"]`: {el("Se connecter", "id", "login").click(onSubmit)},
	}}
}

func homePage() *fakePage {
	return &fakePage{title: "Mon espace", elements: map[string][]*fakeElement{
		`a[href*="logout"]`: {el("Déconnexion")},
	}}
}

func authReason(t *testing.T, err error) models.FailureReason {
	t.Helper()
	var authErr *models.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	return authErr.Reason
}

func actions(l *audit.Log) []string {
	var out []string
	for _, e := range l.Entries() {
		out = append(out, e.Action)
	}
	return out
}

var creds = Credentials{Email: "me@example.com", Password: "secret"}

func TestLogin_Success(t *testing.T) {
	s := newFakeSession().
		page(loginURL, loginPage(func(s *fakeSession) { s.goTo(homeURL) })).
		page(homeURL, homePage())
	a, log := newTestAutomator(s)

	require.NoError(t, a.Login(context.Background(), creds))
	assert.Equal(t, "me@example.com", s.typed["email"])
	assert.Equal(t, "secret", s.typed["password"])
	assert.Equal(t, []string{"login"}, s.clicks)
	assert.Contains(t, s.screenshots, "logged-in")
	assert.Equal(t, []string{
		"login.Init", "login.NavigateLogin", "login.HandleConsent", "login.FillCredentials",
		"login.PreSubmitCaptchaCheck", "login.Submit", "login.PostSubmitCaptchaCheck", "login.LoggedIn",
	}, actions(log))
}

func TestLogin_DeclinesConsentFirst(t *testing.T) {
	page := loginPage(func(s *fakeSession) { s.goTo(homeURL) })
	decline := el("Continuer sans accepter", "id", "decline")
	accept := el("Accepter", "id", "accept")
	decline.onClick = func(*fakeSession) { decline.hidden, accept.hidden = true, true }
	page.elements["#didomi-notice-disagree-button"] = []*fakeElement{decline}
	page.elements["#didomi-notice-agree-button"] = []*fakeElement{accept}

	s := newFakeSession().page(loginURL, page).page(homeURL, homePage())
	a, _ := newTestAutomator(s)

	require.NoError(t, a.Login(context.Background(), creds))
	assert.Equal(t, []string{"decline", "login"}, s.clicks)
}

func TestLogin_ReusesCookieSession(t *testing.T) {
	page := loginPage(nil)
	page.elements[`a[href*="logout"]`] = []*fakeElement{el("Déconnexion")}
	s := newFakeSession().page(loginURL, page)
	a, _ := newTestAutomator(s)

	require.NoError(t, a.Login(context.Background(), creds))
	assert.Empty(t, s.typed)
	assert.Empty(t, s.clicks)
}

// bot verification still present after the grace wait fails the login
func TestLogin_CaptchaPersists(t *testing.T) {
	const challengeURL = "https://board.test/challenge"
	s := newFakeSession().
		page(loginURL, loginPage(func(s *fakeSession) { s.goTo(challengeURL) })).
		page(challengeURL, &fakePage{title: "Vérification", elements: map[string][]*fakeElement{
			".g-recaptcha": {el("")},
		}})
	a, log := newTestAutomator(s)

	err := a.Login(context.Background(), creds)
	require.Error(t, err)
	assert.Equal(t, models.ReasonBotVerification, authReason(t, err))

	var authErr *models.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "shots/login-failed.png", authErr.ScreenshotRef)
	assert.Contains(t, actions(log), "login.captcha")
	assert.Contains(t, actions(log), "login.LoginFailed")
	assert.Contains(t, s.screenshots, "captcha-post-submit")
}

func TestLogin_CaptchaClearsWithinGrace(t *testing.T) {
	const challengeURL = "https://board.test/challenge"
	challenge := homePage()
	challenge.elements[".g-recaptcha"] = []*fakeElement{{attrs: map[string]string{}, visibleFor: 1}}
	s := newFakeSession().
		page(loginURL, loginPage(func(s *fakeSession) { s.goTo(challengeURL) })).
		page(challengeURL, challenge)
	a, _ := newTestAutomator(s)

	require.NoError(t, a.Login(context.Background(), creds))
}

func TestLogin_CaptchaByTitleText(t *testing.T) {
	s := newFakeSession().
		page(loginURL, loginPage(func(s *fakeSession) { s.goTo(homeURL) })).
		page(homeURL, &fakePage{title: "Just a moment..."})
	a, _ := newTestAutomator(s)

	err := a.Login(context.Background(), creds)
	assert.Equal(t, models.ReasonBotVerification, authReason(t, err))
}

func TestLogin_BadCredentials(t *testing.T) {
	t.Run("error marker", func(t *testing.T) {
		s := newFakeSession()
		s.page(loginURL, loginPage(func(s *fakeSession) {
			s.current.elements[`[role="alert"]`] = []*fakeElement{el("Identifiants incorrects")}
		}))
		a, _ := newTestAutomator(s)

		err := a.Login(context.Background(), creds)
		assert.Equal(t, models.ReasonCredentials, authReason(t, err))
		assert.ErrorContains(t, err, "Identifiants incorrects")
	})

	t.Run("still on login page", func(t *testing.T) {
		s := newFakeSession().page(loginURL, loginPage(nil))
		a, _ := newTestAutomator(s)

		err := a.Login(context.Background(), creds)
		assert.Equal(t, models.ReasonCredentials, authReason(t, err))
	})
}

func TestLogin_MissingFormDumpsDiagnostics(t *testing.T) {
	s := newFakeSession().page(loginURL, &fakePage{title: "Connexion"})
	a, log := newTestAutomator(s)

	err := a.Login(context.Background(), creds)
	assert.Equal(t, models.ReasonFormNotFound, authReason(t, err))
	assert.Equal(t, 1, s.diagnosed)
	assert.Contains(t, actions(log), "login.email-field.diagnostic")
}

func TestLogin_NavigationFailure(t *testing.T) {
	s := newFakeSession()
	a, _ := newTestAutomator(s)

	err := a.Login(context.Background(), creds)
	var navErr *models.NavigationError
	assert.ErrorAs(t, err, &navErr)
}

func TestLogin_Cancelled(t *testing.T) {
	s := newFakeSession().page(loginURL, loginPage(nil))
	a, _ := newTestAutomator(s)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, a.Login(ctx, creds), context.Canceled)
}

func TestLogout_ClosesOnce(t *testing.T) {
	s := newFakeSession()
	a, _ := newTestAutomator(s)

	require.NoError(t, a.Logout(context.Background()))
	require.NoError(t, a.Logout(context.Background()))
	assert.Equal(t, 1, s.closed)
	assert.Equal(t, []string{"https://board.test/logout"}, s.navigations)
}

func TestParseSalary(t *testing.T) {
	tests := []struct {
		text     string
		min, max int
	}{
		{"45k - 55k €", 45000, 55000},
		{"45 000 € - 55 000 € par an", 45000, 55000},
		{"60K", 60000, 60000},
		{"Selon profil", 0, 0},
		{"Bac +5, 3 ans", 0, 0},
		{"55 000 - 45 000", 45000, 55000},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			lo, hi := parseSalary(tt.text)
			assert.Equal(t, tt.min, lo)
			assert.Equal(t, tt.max, hi)
		})
	}
}

func TestCanonicalURL(t *testing.T) {
	assert.Equal(t, "https://board.test/jobs/1", canonicalURL("https://board.test/jobs/1/?utm_source=x#apply"))
	assert.Equal(t, "", canonicalURL(""))
}
