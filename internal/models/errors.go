package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateAttempt = errors.New("application attempt already exists for user and job")
)

// FailureReason classifies why a login or an application did not succeed.
type FailureReason string

const (
	ReasonCredentials         FailureReason = "credential-failure"
	ReasonBotVerification     FailureReason = "bot-verification-block"
	ReasonExternalRedirect    FailureReason = "external-redirect"
	ReasonFormNotFound        FailureReason = "form-not-found"
	ReasonSubmissionUncertain FailureReason = "submission-uncertain"
	ReasonNetwork             FailureReason = "network-timeout"
)

// Retryable reports whether a later, independent run may succeed where this one failed.
func (r FailureReason) Retryable() bool {
	return r == ReasonNetwork
}

// Message is the user-facing sentence stored in attempt notes.
func (r FailureReason) Message() string {
	switch r {
	case ReasonCredentials:
		return "login rejected: check the email and password of this configuration"
	case ReasonBotVerification:
		return "login blocked by the site's bot verification challenge"
	case ReasonExternalRedirect:
		return "external application: this posting must be applied to on the recruiter's own site"
	case ReasonFormNotFound:
		return "application form not found on the posting page"
	case ReasonSubmissionUncertain:
		return "submitted but no confirmation was observed; verify manually"
	case ReasonNetwork:
		return "network error or timeout while applying"
	}
	return string(r)
}

// ConfigurationError is fatal before any browser action.
type ConfigurationError struct {
	ConfigID string
	Msg      string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration %s: %s", e.ConfigID, e.Msg)
}

// AuthenticationError is a run-scoped login failure; Reason separates bad credentials
// from bot verification.
type AuthenticationError struct {
	Reason        FailureReason
	Detail        string
	ScreenshotRef string
}

func (e *AuthenticationError) Error() string {
	if e.Detail == "" {
		return "authentication failed: " + e.Reason.Message()
	}
	return fmt.Sprintf("authentication failed: %s (%s)", e.Reason.Message(), e.Detail)
}

// NavigationError is returned when every candidate URL of a step failed.
type NavigationError struct {
	URLs []string
	Err  error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation failed for [%s]: %v", strings.Join(e.URLs, ", "), e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// SubmissionError is scoped to a single job; the run continues.
type SubmissionError struct {
	Reason        FailureReason
	Detail        string
	ScreenshotRef string
	Err           error
}

func (e *SubmissionError) Error() string {
	msg := e.Reason.Message()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// ReasonOf extracts the failure classification carried by err, if any.
func ReasonOf(err error) (FailureReason, bool) {
	var sub *SubmissionError
	if errors.As(err, &sub) {
		return sub.Reason, true
	}
	var auth *AuthenticationError
	if errors.As(err, &auth) {
		return auth.Reason, true
	}
	var nav *NavigationError
	if errors.As(err, &nav) {
		return ReasonNetwork, true
	}
	return "", false
}
