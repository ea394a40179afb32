package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"storefront-newsletter/internal/model"
	"storefront-newsletter/internal/newsletter"

	"github.com/spf13/cobra"
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "Browse and save newsletter presets",
}

func loadPresets() (*newsletter.Library, error) {
	return newsletter.LoadLibrary(GetConfig().Newsletter.PresetsDir)
}

var presetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := loadPresets()
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SLUG\tNAME\tSUBJECT")
		for _, p := range lib.List() {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Slug, p.Name, p.Template.Subject)
		}
		return tw.Flush()
	},
}

var presetsShowCmd = &cobra.Command{
	Use:   "show <slug>",
	Short: "Print a preset with placeholders filled from the brand",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := loadPresets()
		if err != nil {
			return err
		}
		p, err := lib.Get(args[0])
		if err != nil {
			return err
		}
		vars, err := brandVars()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(newsletter.ApplyPreset(p, vars))
	},
}

// presetsCheckCmd parses a preset document and reports its frontmatter and
// any placeholder that would stay unresolved.
var presetsCheckCmd = &cobra.Command{
	Use:   "check <markdown_path>",
	Short: "Validate a preset markdown file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		p, err := newsletter.ParsePreset(b, filepath.Base(args[0]))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "slug: %s\nname: %s\nsubject: %s\n", p.Slug, p.Name, p.Template.Subject)

		known := newsletter.VarsFor(newsletter.Brand{}, newsletter.VarOptions{}, timeNow())
		var unknown []string
		seen := map[string]bool{}
		t := p.Template
		for _, field := range []string{t.Subject, t.MainTitle, t.Description, t.ButtonText, t.ButtonURL, t.FooterMessage} {
			for _, tok := range newsletter.Tokens(field) {
				if _, ok := known[tok]; !ok && !seen[tok] {
					seen[tok] = true
					unknown = append(unknown, tok)
				}
			}
		}
		if len(unknown) > 0 {
			return fmt.Errorf("unknown placeholders: %s", strings.Join(unknown, ", "))
		}
		fmt.Fprintln(out, "ok")
		return nil
	},
}

var presetSlug string

var presetsSaveCmd = &cobra.Command{
	Use:   "save <file>",
	Short: "Save a preset document or JSON template into the presets directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(GetConfig().Newsletter.PresetsDir) == "" {
			return errors.New("newsletter.presets_dir is not configured")
		}
		lib, err := loadPresets()
		if err != nil {
			return err
		}
		p, err := savePresetFile(lib, args[0], presetSlug)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "saved preset %s (%s)\n", p.Slug, p.Name)
		return nil
	},
}

// savePresetFile reads a preset from path and saves it in lib. A .json file
// holds either a preset or a bare template; anything else is parsed as a
// preset document. A non-empty slug overrides the one in the file.
func savePresetFile(lib *newsletter.Library, path, slug string) (model.Preset, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return model.Preset{}, err
	}
	var p model.Preset
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(b, &p); err != nil {
			return model.Preset{}, fmt.Errorf("parse %s: %w", path, err)
		}
		if p.Template == (model.Template{}) {
			if err := json.Unmarshal(b, &p.Template); err != nil {
				return model.Preset{}, fmt.Errorf("parse %s: %w", path, err)
			}
		}
		if p.Slug == "" && p.Name == "" {
			p.Slug = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
	} else if p, err = newsletter.ParsePreset(b, filepath.Base(path)); err != nil {
		return model.Preset{}, err
	}
	if slug != "" {
		p.Slug = slug
	}
	return lib.Save(p)
}

func init() {
	presetsSaveCmd.Flags().StringVar(&presetSlug, "slug", "", "slug to save under (default from the file)")
	presetsCmd.AddCommand(presetsListCmd, presetsShowCmd, presetsCheckCmd, presetsSaveCmd)
	rootCmd.AddCommand(presetsCmd)
}
