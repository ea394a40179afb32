package newsletter

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"storefront-newsletter/internal/markdown"
	"storefront-newsletter/internal/model"
)

//go:embed presets/*.md
var builtinPresets embed.FS

// ErrPresetNotFound is returned by Library.Get for an unknown slug.
var ErrPresetNotFound = errors.New("preset not found")

// ErrInvalidPreset is returned by Library.Save for a preset it cannot store.
var ErrInvalidPreset = errors.New("invalid preset")

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// presetFrontmatter is the YAML header of a preset document. The markdown
// body becomes the template description.
type presetFrontmatter struct {
	Name          string `yaml:"name"`
	Slug          string `yaml:"slug"`
	Description   string `yaml:"description,omitempty"`
	Subject       string `yaml:"subject"`
	MainTitle     string `yaml:"main_title"`
	ButtonText    string `yaml:"button_text,omitempty"`
	ButtonURL     string `yaml:"button_url,omitempty"`
	HeaderImage   string `yaml:"header_image,omitempty"`
	FooterMessage string `yaml:"footer_message,omitempty"`
	CompanyName   string `yaml:"company_name,omitempty"`
	LogoURL       string `yaml:"logo_url,omitempty"`
	PrimaryColor  string `yaml:"primary_color,omitempty"`
	AccentColor   string `yaml:"accent_color,omitempty"`
	WebsiteURL    string `yaml:"website_url,omitempty"`
}

// Library holds presets keyed by slug, in a stable display order. Saved
// presets are written to dir when it is set.
type Library struct {
	dir string

	mu      sync.RWMutex
	order   []string
	presets map[string]model.Preset
}

// LoadLibrary returns the built-in presets plus any *.md documents found in
// dir. A preset from dir replaces a built-in with the same slug. An empty dir
// loads only the built-ins and keeps saved presets in memory.
func LoadLibrary(dir string) (*Library, error) {
	lib := &Library{dir: strings.TrimSpace(dir), presets: map[string]model.Preset{}}
	entries, err := fs.Glob(builtinPresets, "presets/*.md")
	if err != nil {
		return nil, err
	}
	sort.Strings(entries)
	for _, name := range entries {
		b, err := builtinPresets.ReadFile(name)
		if err != nil {
			return nil, err
		}
		p, err := ParsePreset(b, path.Base(name))
		if err != nil {
			return nil, fmt.Errorf("builtin preset %s: %w", name, err)
		}
		lib.add(p)
	}
	if lib.dir == "" {
		return lib, nil
	}
	files, err := filepath.Glob(filepath.Join(lib.dir, "*.md"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		p, err := ParsePreset(b, filepath.Base(f))
		if err != nil {
			return nil, fmt.Errorf("preset %s: %w", f, err)
		}
		lib.add(p)
	}
	return lib, nil
}

func (l *Library) add(p model.Preset) {
	if _, ok := l.presets[p.Slug]; !ok {
		l.order = append(l.order, p.Slug)
	}
	l.presets[p.Slug] = p
}

// Get returns the preset with the given slug.
func (l *Library) Get(slug string) (model.Preset, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.presets[strings.TrimSpace(slug)]
	if !ok {
		return model.Preset{}, fmt.Errorf("%w: %s", ErrPresetNotFound, slug)
	}
	return p, nil
}

// List returns every preset in display order.
func (l *Library) List() []model.Preset {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.Preset, 0, len(l.order))
	for _, s := range l.order {
		out = append(out, l.presets[s])
	}
	return out
}

// Save stores p under its slug, replacing any preset with the same slug. The
// slug defaults to a slugified name. When the library was loaded from a
// directory the preset is also written there as <slug>.md, so LoadLibrary
// picks it up again.
func (l *Library) Save(p model.Preset) (model.Preset, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Slug = strings.TrimSpace(p.Slug)
	if p.Slug == "" {
		p.Slug = Slugify(p.Name)
	}
	if p.Name == "" {
		p.Name = p.Slug
	}
	switch {
	case !slugPattern.MatchString(p.Slug):
		return model.Preset{}, fmt.Errorf("%w: slug %q may only hold lowercase alphanumerics and dashes", ErrInvalidPreset, p.Slug)
	case strings.TrimSpace(p.Template.Subject) == "" || strings.TrimSpace(p.Template.MainTitle) == "":
		return model.Preset{}, fmt.Errorf("%w: subject and main title are required", ErrInvalidPreset)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dir != "" {
		b, err := FormatPreset(p)
		if err != nil {
			return model.Preset{}, err
		}
		if err := os.MkdirAll(l.dir, 0o755); err != nil {
			return model.Preset{}, fmt.Errorf("presets dir: %w", err)
		}
		if err := os.WriteFile(filepath.Join(l.dir, p.Slug+".md"), b, 0o644); err != nil {
			return model.Preset{}, fmt.Errorf("write preset %s: %w", p.Slug, err)
		}
	}
	l.add(p)
	return p, nil
}

// Slugify lowercases name and joins its alphanumeric runs with dashes.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return b.String()
}

// FormatPreset renders p as a markdown document that ParsePreset reads back.
func FormatPreset(p model.Preset) ([]byte, error) {
	t := p.Template
	return markdown.Format(presetFrontmatter{
		Name:          p.Name,
		Slug:          p.Slug,
		Description:   p.Description,
		Subject:       t.Subject,
		MainTitle:     t.MainTitle,
		ButtonText:    t.ButtonText,
		ButtonURL:     t.ButtonURL,
		HeaderImage:   t.HeaderImage,
		FooterMessage: t.FooterMessage,
		CompanyName:   t.CompanyName,
		LogoURL:       t.LogoURL,
		PrimaryColor:  t.PrimaryColor,
		AccentColor:   t.AccentColor,
		WebsiteURL:    t.WebsiteURL,
	}, t.Description)
}

// ParsePreset builds a preset from a markdown document. fileName supplies the
// slug when the frontmatter has none.
func ParsePreset(b []byte, fileName string) (model.Preset, error) {
	doc, err := markdown.ParseBytes(b)
	if err != nil {
		return model.Preset{}, err
	}
	var fm presetFrontmatter
	if err := doc.Decode(&fm); err != nil {
		return model.Preset{}, err
	}
	slug := strings.TrimSpace(fm.Slug)
	if slug == "" {
		slug = strings.TrimSuffix(fileName, filepath.Ext(fileName))
	}
	name := strings.TrimSpace(fm.Name)
	if name == "" {
		name = slug
	}
	if strings.TrimSpace(fm.Subject) == "" || strings.TrimSpace(fm.MainTitle) == "" {
		return model.Preset{}, errors.New("subject and main_title are required")
	}
	return model.Preset{
		Slug:        slug,
		Name:        name,
		Description: strings.TrimSpace(fm.Description),
		Template: model.Template{
			Subject:       strings.TrimSpace(fm.Subject),
			MainTitle:     strings.TrimSpace(fm.MainTitle),
			Description:   strings.TrimSpace(doc.Body),
			HeaderImage:   strings.TrimSpace(fm.HeaderImage),
			ButtonText:    strings.TrimSpace(fm.ButtonText),
			ButtonURL:     strings.TrimSpace(fm.ButtonURL),
			FooterMessage: strings.TrimSpace(fm.FooterMessage),
			CompanyName:   strings.TrimSpace(fm.CompanyName),
			LogoURL:       strings.TrimSpace(fm.LogoURL),
			PrimaryColor:  strings.TrimSpace(fm.PrimaryColor),
			AccentColor:   strings.TrimSpace(fm.AccentColor),
			WebsiteURL:    strings.TrimSpace(fm.WebsiteURL),
		},
	}, nil
}

// ApplyPreset returns the preset's template with every placeholder in every
// field substituted.
func ApplyPreset(p model.Preset, vars Vars) model.Template {
	return SubstituteTemplate(p.Template, vars)
}
