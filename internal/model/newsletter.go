package model

import "time"

// Template holds the content and branding fields of one newsletter. Every
// field is optional for rendering; Subject and MainTitle are required before
// a preview or send.
type Template struct {
	Subject       string `json:"subject" yaml:"subject"`
	MainTitle     string `json:"mainTitle" yaml:"main_title"`
	Description   string `json:"description" yaml:"description"` // trusted HTML fragment
	HeaderImage   string `json:"headerImage,omitempty" yaml:"header_image"`
	ButtonText    string `json:"buttonText,omitempty" yaml:"button_text"`
	ButtonURL     string `json:"buttonUrl,omitempty" yaml:"button_url"`
	FooterMessage string `json:"footerMessage,omitempty" yaml:"footer_message"`
	CompanyName   string `json:"companyName,omitempty" yaml:"company_name"`
	LogoURL       string `json:"logoUrl,omitempty" yaml:"logo_url"`
	PrimaryColor  string `json:"primaryColor,omitempty" yaml:"primary_color"`
	AccentColor   string `json:"accentColor,omitempty" yaml:"accent_color"`
	WebsiteURL    string `json:"websiteUrl,omitempty" yaml:"website_url"`
}

// HasCTA reports whether both call-to-action fields are present.
func (t Template) HasCTA() bool {
	return t.ButtonText != "" && t.ButtonURL != ""
}

// SocialLinks are the brand's social profile URLs.
type SocialLinks struct {
	Instagram string `json:"instagram,omitempty"`
	Facebook  string `json:"facebook,omitempty"`
	Twitter   string `json:"twitter,omitempty"`
	Pinterest string `json:"pinterest,omitempty"`
	TikTok    string `json:"tiktok,omitempty"`
}

// Empty reports whether no social profile is configured.
func (s SocialLinks) Empty() bool {
	return s == SocialLinks{}
}

// Settings is the account-wide newsletter branding record. It is always
// read and written as a whole.
type Settings struct {
	CompanyName  string      `json:"companyName,omitempty"`
	LogoURL      string      `json:"logoUrl,omitempty"`
	HeaderImage  string      `json:"headerImage,omitempty"`
	PrimaryColor string      `json:"primaryColor,omitempty"`
	AccentColor  string      `json:"accentColor,omitempty"`
	WebsiteURL   string      `json:"websiteUrl,omitempty"`
	FooterText   string      `json:"footerText,omitempty"`
	ContactEmail string      `json:"contactEmail,omitempty"`
	Address      string      `json:"address,omitempty"`
	Social       SocialLinks `json:"social"`
	CustomCSS    string      `json:"customCss,omitempty"`
	UpdatedAt    time.Time   `json:"updatedAt,omitempty"`
}

// RecipientFailure records why a single recipient could not be sent to.
type RecipientFailure struct {
	Email string `json:"email"`
	Error string `json:"error"`
}

// SendResult is the outcome tally of one campaign dispatch.
type SendResult struct {
	Successful int                `json:"successful"`
	Failed     int                `json:"failed"`
	Failures   []RecipientFailure `json:"failures,omitempty"`
}

// Preset is a reusable newsletter starting point. Its template fields may
// contain {{token}} placeholders.
type Preset struct {
	Slug        string   `json:"slug"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Template    Template `json:"template"`
}
