package newsletter

import (
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"

	"storefront-newsletter/internal/model"
)

// Vars maps placeholder names to their replacement values.
type Vars map[string]string

// tokenPattern matches {{name}} placeholders. Whitespace inside the braces is
// not accepted, so "{{ name }}" is treated as literal text.
var tokenPattern = regexp.MustCompile(`\{\{([A-Za-z][A-Za-z0-9_]*)\}\}`)

// Substitute replaces every occurrence of every known placeholder in s.
// Unknown placeholders are left as they are. Replacement values are not
// rescanned, so the result does not depend on the order of vars.
func Substitute(s string, vars Vars) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	return tokenPattern.ReplaceAllStringFunc(s, func(tok string) string {
		if v, ok := vars[tok[2:len(tok)-2]]; ok {
			return v
		}
		return tok
	})
}

// Tokens lists the distinct placeholder names found in s, in order of first
// appearance.
func Tokens(s string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, m := range tokenPattern.FindAllStringSubmatch(s, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	return out
}

// VarOptions carries the computed-value knobs for preset variables.
type VarOptions struct {
	DiscountPercent int
	OfferValidity   time.Duration
}

const (
	defaultDiscountPercent = 20
	defaultOfferValidity   = 7 * 24 * time.Hour
)

// VarsFor builds the placeholder values for a brand at time now.
//
// Supported variables:
//   - {{companyName}}, {{primaryColor}}, {{accentColor}}, {{websiteUrl}},
//     {{headerImage}}, {{logoUrl}}, {{footerText}}, {{contactEmail}}
//   - {{currentMonth}} => "January 2026", {{currentYear}} => "2026"
//   - {{discountPercent}} => "20"
//   - {{expiryDate}} => now + offer validity, "January 2, 2006"
func VarsFor(b Brand, opts VarOptions, now time.Time) Vars {
	discount := opts.DiscountPercent
	if discount <= 0 {
		discount = defaultDiscountPercent
	}
	validity := opts.OfferValidity
	if validity <= 0 {
		validity = defaultOfferValidity
	}
	return Vars{
		"companyName":     b.CompanyName,
		"primaryColor":    b.PrimaryColor,
		"accentColor":     b.AccentColor,
		"websiteUrl":      strings.TrimRight(b.WebsiteURL, "/"),
		"headerImage":     b.HeaderImage,
		"logoUrl":         b.LogoURL,
		"footerText":      b.FooterText,
		"contactEmail":    b.ContactEmail,
		"currentMonth":    now.Format("January 2006"),
		"currentYear":     strconv.Itoa(now.Year()),
		"discountPercent": strconv.Itoa(discount),
		"expiryDate":      now.Add(validity).Format("January 2, 2006"),
	}
}

// SubstituteTemplate applies Substitute to every text field of t.
func SubstituteTemplate(t model.Template, vars Vars) model.Template {
	desc := t.Description
	fields := []*string{
		&t.Subject, &t.MainTitle, &t.HeaderImage,
		&t.ButtonText, &t.ButtonURL, &t.FooterMessage, &t.CompanyName,
		&t.LogoURL, &t.PrimaryColor, &t.AccentColor, &t.WebsiteURL,
	}
	for _, f := range fields {
		*f = Substitute(*f, vars)
	}
	// Description is rendered as trusted HTML, so values go in escaped.
	t.Description = Substitute(desc, vars.escaped())
	return t
}

func (v Vars) escaped() Vars {
	out := make(Vars, len(v))
	for k, val := range v {
		out[k] = html.EscapeString(val)
	}
	return out
}
