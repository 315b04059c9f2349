package config

import (
	"errors"
	"net/url"
	"strconv"
	"strings"

	"go-jobpilot/internal/browser"
)

// SiteProfile describes one job board: where its pages live and how to find
// each control. Every control is an ordered list of strategies so a markup
// change on the site is a YAML change here.
type SiteProfile struct {
	Name      string   `yaml:"name"`
	BaseURL   string   `yaml:"base_url"`
	LoginURLs []string `yaml:"login_urls"`
	// SearchURL may use {keyword}, {location} and {page}.
	SearchURL string `yaml:"search_url"`
	LogoutURL string `yaml:"logout_url"`

	ConsentDecline []browser.Strategy `yaml:"consent_decline"`
	ConsentAccept  []browser.Strategy `yaml:"consent_accept"`

	EmailField     []browser.Strategy `yaml:"email_field"`
	PasswordField  []browser.Strategy `yaml:"password_field"`
	LoginSubmit    []browser.Strategy `yaml:"login_submit"`
	LoginError     []browser.Strategy `yaml:"login_error"`
	LoggedInMarker []browser.Strategy `yaml:"logged_in_marker"`

	CaptchaSelectors []string `yaml:"captcha_selectors"`
	CaptchaTexts     []string `yaml:"captcha_texts"`

	JobCard      string             `yaml:"job_card"`
	CardIDAttr   string             `yaml:"card_id_attr"`
	CardLink     string             `yaml:"card_link"`
	CardTitle    string             `yaml:"card_title"`
	CardCompany  string             `yaml:"card_company"`
	CardLocation string             `yaml:"card_location"`
	CardSalary   string             `yaml:"card_salary"`
	CardDate     string             `yaml:"card_date"`
	CardTags     string             `yaml:"card_tags"`
	NextPage     []browser.Strategy `yaml:"next_page"`

	Description []browser.Strategy `yaml:"description"`
	ApplyButton []browser.Strategy `yaml:"apply_button"`
	// ExternalApplyTexts flag an apply control that hands off to the recruiter's own site.
	ExternalApplyTexts []string `yaml:"external_apply_texts"`

	ContinueButton   []browser.Strategy `yaml:"continue_button"`
	PhoneField       []browser.Strategy `yaml:"phone_field"`
	PostalCodeField  []browser.Strategy `yaml:"postal_code_field"`
	CityField        []browser.Strategy `yaml:"city_field"`
	CoverLetterField []browser.Strategy `yaml:"cover_letter_field"`
	SubmitButton     []browser.Strategy `yaml:"submit_button"`

	ConfirmationMarker      []browser.Strategy `yaml:"confirmation_marker"`
	ConfirmationTexts       []string           `yaml:"confirmation_texts"`
	ConfirmationURLPatterns []string           `yaml:"confirmation_url_patterns"`

	// DiagnoseSelector lists the controls dumped when a login step cannot find its target.
	DiagnoseSelector string `yaml:"diagnose_selector"`
}

// SearchPageURL expands the search template for one query page.
func (s SiteProfile) SearchPageURL(keyword, location string, page int) string {
	r := strings.NewReplacer(
		"{keyword}", url.QueryEscape(keyword),
		"{location}", url.QueryEscape(location),
		"{page}", strconv.Itoa(page),
	)
	return r.Replace(s.SearchURL)
}

// Absolute resolves href against BaseURL.
func (s SiteProfile) Absolute(href string) string {
	if href == "" {
		return ""
	}
	base, err := url.Parse(s.BaseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// IsOnSite reports whether href stays on the board's host.
func (s SiteProfile) IsOnSite(href string) bool {
	base, err := url.Parse(s.BaseURL)
	if err != nil || base.Host == "" {
		return true
	}
	u, err := url.Parse(s.Absolute(href))
	if err != nil {
		return true
	}
	return sameSite(base.Hostname(), u.Hostname())
}

func sameSite(a, b string) bool {
	a = strings.TrimPrefix(strings.ToLower(a), "www.")
	b = strings.TrimPrefix(strings.ToLower(b), "www.")
	return a == b || strings.HasSuffix(b, "."+a)
}

func (s SiteProfile) Validate() error {
	var errs []error
	if s.BaseURL == "" {
		errs = append(errs, errors.New("site.base_url is required"))
	}
	if len(s.LoginURLs) == 0 {
		errs = append(errs, errors.New("site.login_urls is required"))
	}
	if s.SearchURL == "" {
		errs = append(errs, errors.New("site.search_url is required"))
	}
	if s.JobCard == "" {
		errs = append(errs, errors.New("site.job_card is required"))
	}
	return errors.Join(errs...)
}

func (s *SiteProfile) fillDefaults(d SiteProfile) {
	strategies := []struct{ got, def *[]browser.Strategy }{
		{&s.ConsentDecline, &d.ConsentDecline},
		{&s.ConsentAccept, &d.ConsentAccept},
		{&s.EmailField, &d.EmailField},
		{&s.PasswordField, &d.PasswordField},
		{&s.LoginSubmit, &d.LoginSubmit},
		{&s.LoginError, &d.LoginError},
		{&s.LoggedInMarker, &d.LoggedInMarker},
		{&s.NextPage, &d.NextPage},
		{&s.Description, &d.Description},
		{&s.ApplyButton, &d.ApplyButton},
		{&s.ContinueButton, &d.ContinueButton},
		{&s.PhoneField, &d.PhoneField},
		{&s.PostalCodeField, &d.PostalCodeField},
		{&s.CityField, &d.CityField},
		{&s.CoverLetterField, &d.CoverLetterField},
		{&s.SubmitButton, &d.SubmitButton},
		{&s.ConfirmationMarker, &d.ConfirmationMarker},
	}
	for _, st := range strategies {
		if len(*st.got) == 0 {
			*st.got = *st.def
		}
	}
	texts := []struct{ got, def *[]string }{
		{&s.CaptchaSelectors, &d.CaptchaSelectors},
		{&s.CaptchaTexts, &d.CaptchaTexts},
		{&s.ExternalApplyTexts, &d.ExternalApplyTexts},
		{&s.ConfirmationTexts, &d.ConfirmationTexts},
		{&s.ConfirmationURLPatterns, &d.ConfirmationURLPatterns},
	}
	for _, t := range texts {
		if len(*t.got) == 0 {
			*t.got = *t.def
		}
	}
	if s.JobCard == "" {
		s.JobCard = d.JobCard
	}
	if s.CardLink == "" {
		s.CardLink = d.CardLink
	}
	if s.CardTitle == "" {
		s.CardTitle = d.CardTitle
	}
	if s.DiagnoseSelector == "" {
		s.DiagnoseSelector = d.DiagnoseSelector
	}
}

// DefaultSiteProfile carries generic strategies that fit most boards built on
// standard form markup. URLs are left for the YAML file.
func DefaultSiteProfile() SiteProfile {
	css := browser.CSS
	text := browser.ByText
	return SiteProfile{
		Name: "default",
		ConsentDecline: []browser.Strategy{
			css("#didomi-notice-disagree-button"),
			css("#onetrust-reject-all-handler"),
			text("", "Continuer sans accepter"),
			text("", "Tout refuser"),
			text("", "Reject all"),
		},
		ConsentAccept: []browser.Strategy{
			css("#didomi-notice-agree-button"),
			css("#onetrust-accept-btn-handler"),
			text("", "Accepter"),
			text("", "Accept all"),
		},
		EmailField: []browser.Strategy{
			css(`input[type="email"]`),
			css(`input[name="email"]`),
			css(`input[name="username"]`),
			css(`input[autocomplete="username"]`),
			css("#email"),
		},
		PasswordField: []browser.Strategy{
			css(`input[type="password"]`),
			css(`input[name="password"]`),
			css("#password"),
		},
		LoginSubmit: []browser.Strategy{
			css(`form button[type="submit"]`),
			css(`form input[type="submit"]`),
			text("form button", "Se connecter"),
			text("form button", "Connexion"),
			text("form button", "Sign in"),
			text("form button", "Log in"),
		},
		LoginError: []browser.Strategy{
			css(`[role="alert"]`),
			css(".error-message"),
			css(".form-error"),
		},
		LoggedInMarker: []browser.Strategy{
			css(`a[href*="logout"]`),
			css(`a[href*="deconnexion"]`),
			css(`[data-testid="user-menu"]`),
			css(".user-menu"),
		},
		CaptchaSelectors: []string{
			`iframe[src*="captcha"]`,
			`iframe[src*="challenges.cloudflare.com"]`,
			"#challenge-form",
			".g-recaptcha",
			".h-captcha",
			"#px-captcha",
		},
		CaptchaTexts: []string{
			"verify you are a human",
			"vérifiez que vous êtes un humain",
			"are you a robot",
			"êtes-vous un robot",
			"unusual traffic",
			"just a moment",
		},
		JobCard:      "[data-job-id], article.job-card, li.job-card",
		CardIDAttr:   "data-job-id",
		CardLink:     "a[href]",
		CardTitle:    "h2, h3, .job-title",
		CardCompany:  ".company, [data-company]",
		CardLocation: ".location, [data-location]",
		CardSalary:   ".salary",
		CardDate:     "time, .date",
		CardTags:     ".tag",
		NextPage: []browser.Strategy{
			css(`a[rel="next"]`),
			css(`[aria-label="Page suivante"]`),
			css(`[aria-label="Next page"]`),
			text("nav a, nav button", "Suivant"),
			text("nav a, nav button", "Next"),
		},
		Description: []browser.Strategy{
			css(`[data-testid="job-description"]`),
			css(".job-description"),
			css("article"),
		},
		ApplyButton: []browser.Strategy{
			css(`[data-testid="apply-button"]`),
			css(`a[href*="apply"]`),
			text("", "Postuler"),
			text("", "Apply"),
		},
		ExternalApplyTexts: []string{
			"site du recruteur",
			"site de l'entreprise",
			"company website",
			"recruiter site",
			"apply externally",
		},
		ContinueButton: []browser.Strategy{
			text("form button", "Continuer"),
			text("form button", "Suivant"),
			text("form button", "Continue"),
			text("form button", "Next"),
		},
		PhoneField: []browser.Strategy{
			css(`input[type="tel"]`),
			css(`input[name*="phone"]`),
			css(`input[name*="telephone"]`),
		},
		PostalCodeField: []browser.Strategy{
			css(`input[name*="postal"]`),
			css(`input[name*="zip"]`),
			css(`input[autocomplete="postal-code"]`),
		},
		CityField: []browser.Strategy{
			css(`input[name*="city"]`),
			css(`input[name*="ville"]`),
			css(`input[autocomplete="address-level2"]`),
		},
		CoverLetterField: []browser.Strategy{
			css(`textarea[name*="cover"]`),
			css(`textarea[name*="motivation"]`),
			css(`textarea[name*="message"]`),
			css("form textarea"),
		},
		SubmitButton: []browser.Strategy{
			css(`form button[type="submit"]`),
			text("form button", "Envoyer ma candidature"),
			text("form button", "Envoyer"),
			text("form button", "Submit application"),
			text("form button", "Submit"),
		},
		ConfirmationMarker: []browser.Strategy{
			css(`[data-testid="application-confirmation"]`),
			css(".application-success"),
		},
		ConfirmationTexts: []string{
			"candidature a bien été envoyée",
			"candidature envoyée",
			"application has been sent",
			"application submitted",
			"thank you for applying",
		},
		ConfirmationURLPatterns: []string{"/confirmation", "/success", "applied=true"},
		DiagnoseSelector:        `input, button, a[role="button"], [type="submit"]`,
	}
}
