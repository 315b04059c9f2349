package models

import "strings"

// UserProfile holds the contact data used to fill application forms.
type UserProfile struct {
	ID         string `json:"id"`
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	PostalCode string `json:"postal_code"`
	City       string `json:"city"`
}

// ContactDetails are the resolved values typed into optional form fields.
type ContactDetails struct {
	Phone      string
	PostalCode string
	City       string
}

// ResolveContact picks each field from the profile first, then the config fallback.
func ResolveContact(profile *UserProfile, cfg *AutomationConfig) ContactDetails {
	var p UserProfile
	if profile != nil {
		p = *profile
	}
	var c AutomationConfig
	if cfg != nil {
		c = *cfg
	}
	return ContactDetails{
		Phone:      firstNonEmpty(p.Phone, c.FallbackPhone),
		PostalCode: firstNonEmpty(p.PostalCode, c.FallbackPostalCode),
		City:       firstNonEmpty(p.City, c.FallbackCity),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
