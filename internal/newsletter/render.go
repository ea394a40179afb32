package newsletter

import (
	"bytes"
	_ "embed"
	"html/template"
	"regexp"
	"strings"
	"time"

	"storefront-newsletter/internal/model"
)

//go:embed sections.html.tmpl
var sectionsTpl string

var compiled = template.Must(template.New("newsletter").Parse(sectionsTpl))

// msoHead makes Outlook's Word renderer honour pixel sizes. html/template
// strips comments from template text, so it is injected as a value.
const msoHead = template.HTML(`<!--[if mso]><noscript><xml><o:OfficeDocumentSettings><o:AllowPNG/><o:PixelsPerInch>96</o:PixelsPerInch></o:OfficeDocumentSettings></xml></noscript><![endif]-->`)

// Brand holds the defaults a Renderer falls back to when a template leaves a
// field empty.
type Brand struct {
	CompanyName  string
	WebsiteURL   string
	LogoURL      string
	HeaderImage  string
	PrimaryColor string
	AccentColor  string
	FooterText   string
	ContactEmail string
	Address      string
	Social       model.SocialLinks
	CustomCSS    string
	// UnsubscribePath is appended to WebsiteURL for the generic unsubscribe link.
	UnsubscribePath string
}

// WithSettings overlays the non-empty fields of stored settings onto b.
func (b Brand) WithSettings(s model.Settings) Brand {
	set := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&b.CompanyName, s.CompanyName)
	set(&b.WebsiteURL, s.WebsiteURL)
	set(&b.LogoURL, s.LogoURL)
	set(&b.HeaderImage, s.HeaderImage)
	set(&b.PrimaryColor, s.PrimaryColor)
	set(&b.AccentColor, s.AccentColor)
	set(&b.FooterText, s.FooterText)
	set(&b.ContactEmail, s.ContactEmail)
	set(&b.Address, s.Address)
	set(&b.CustomCSS, s.CustomCSS)
	if !s.Social.Empty() {
		b.Social = s.Social
	}
	b.WebsiteURL = strings.TrimRight(b.WebsiteURL, "/")
	return b
}

// Recipient personalizes one rendering.
type Recipient struct {
	Email          string
	UnsubscribeURL string
}

// Renderer turns templates into complete HTML email documents. It has no
// side effects; the only input outside its arguments is the clock used for
// the copyright year.
type Renderer struct {
	Brand Brand
	Now   func() time.Time
}

// NewRenderer returns a renderer for the given brand using the wall clock.
func NewRenderer(b Brand) *Renderer {
	return &Renderer{Brand: b, Now: time.Now}
}

// WithSettings returns a copy of r whose brand has stored settings applied.
func (r *Renderer) WithSettings(s model.Settings) *Renderer {
	c := *r
	c.Brand = r.Brand.WithSettings(s)
	return &c
}

type socialLink struct {
	Name string
	URL  string
}

// view is the fully-defaulted data every section builder receives.
type view struct {
	Subject        string
	MSOHead        template.HTML
	CustomCSS      template.CSS
	CompanyName    string
	WebsiteURL     string
	LogoURL        string
	PrimaryColor   string
	AccentColor    string
	HeaderImage    string
	MainTitle      string
	Description    template.HTML
	ButtonText     string
	ButtonURL      string
	FooterMessage  string
	Social         []socialLink
	ContactEmail   string
	Address        string
	UnsubscribeURL string
	RecipientEmail string
	Year           int
}

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

const (
	fallbackPrimary = "#1a1a1a"
	fallbackAccent  = "#c9a96e"
)

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func color(vals ...string) string {
	for _, v := range vals {
		if hexColor.MatchString(strings.TrimSpace(v)) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func (r *Renderer) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r *Renderer) buildView(t model.Template, rcpt Recipient) view {
	b := r.Brand
	website := strings.TrimRight(firstNonEmpty(t.WebsiteURL, b.WebsiteURL), "/")
	unsub := firstNonEmpty(rcpt.UnsubscribeURL)
	if unsub == "" {
		path := firstNonEmpty(b.UnsubscribePath, "/newsletter/unsubscribe")
		unsub = website + path
	}
	v := view{
		Subject:        strings.TrimSpace(t.Subject),
		MSOHead:        msoHead,
		CustomCSS:      template.CSS(b.CustomCSS),
		CompanyName:    firstNonEmpty(t.CompanyName, b.CompanyName),
		WebsiteURL:     website,
		LogoURL:        firstNonEmpty(t.LogoURL, b.LogoURL),
		PrimaryColor:   color(t.PrimaryColor, b.PrimaryColor, fallbackPrimary),
		AccentColor:    color(t.AccentColor, b.AccentColor, fallbackAccent),
		HeaderImage:    strings.TrimSpace(t.HeaderImage),
		MainTitle:      strings.TrimSpace(t.MainTitle),
		Description:    template.HTML(t.Description),
		FooterMessage:  strings.TrimSpace(t.FooterMessage),
		Social:         socialLinks(b.Social),
		ContactEmail:   strings.TrimSpace(b.ContactEmail),
		Address:        strings.TrimSpace(b.Address),
		UnsubscribeURL: unsub,
		RecipientEmail: strings.TrimSpace(rcpt.Email),
		Year:           r.now().Year(),
	}
	if t.HasCTA() {
		v.ButtonText = strings.TrimSpace(t.ButtonText)
		v.ButtonURL = strings.TrimSpace(t.ButtonURL)
	}
	return v
}

func socialLinks(s model.SocialLinks) []socialLink {
	all := []socialLink{
		{"Instagram", s.Instagram},
		{"Facebook", s.Facebook},
		{"Twitter", s.Twitter},
		{"Pinterest", s.Pinterest},
		{"TikTok", s.TikTok},
	}
	out := make([]socialLink, 0, len(all))
	for _, l := range all {
		if strings.TrimSpace(l.URL) != "" {
			out = append(out, socialLink{Name: l.Name, URL: strings.TrimSpace(l.URL)})
		}
	}
	return out
}

// Render produces the HTML document for t addressed to rcpt.
func (r *Renderer) Render(t model.Template, rcpt Recipient) (string, error) {
	v := r.buildView(t, rcpt)
	var out strings.Builder
	for _, build := range []sectionBuilder{
		openSection,
		headerSection,
		heroImageSection,
		bodySection,
		ctaSection,
		featuresSection,
		footerMessageSection,
		socialSection,
		footerSection,
		closeSection,
	} {
		s, err := build(v)
		if err != nil {
			return "", err
		}
		out.WriteString(s)
	}
	return out.String(), nil
}

type sectionBuilder func(v view) (string, error)

func execute(name string, v view) (string, error) {
	var buf bytes.Buffer
	if err := compiled.ExecuteTemplate(&buf, name, v); err != nil {
		return "", err
	}
	return buf.String(), nil
}
