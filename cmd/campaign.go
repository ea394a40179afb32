package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"storefront-newsletter/internal/campaign"
	"storefront-newsletter/internal/model"
	"storefront-newsletter/internal/newsletter"

	"github.com/spf13/cobra"
)

var (
	campPreset  string
	campFile    string
	campSubject string
	campTitle   string
	campOutput  string
	campYes     bool
	campCount   int
	campSuggest int
)

var timeNow = time.Now

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Preview and send newsletter campaigns",
}

// brandVars resolves placeholder values from the configured brand with
// stored settings overlaid. An unreachable store falls back to config.
func brandVars() (newsletter.Vars, error) {
	cfg := GetConfig()
	validity, err := duration("newsletter.offer_validity", cfg.Newsletter.OfferValidity)
	if err != nil {
		return nil, err
	}
	opts := newsletter.VarOptions{DiscountPercent: cfg.Newsletter.DiscountPercent, OfferValidity: validity}
	brand := brandFromConfig(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := openStore(ctx, cfg)
	if err == nil {
		defer st.Close()
		var settings model.Settings
		if settings, err = st.GetSettings(ctx); err == nil {
			brand = brand.WithSettings(settings)
		}
	}
	if err != nil {
		slog.Warn("stored settings unavailable; using configured brand", "err", err)
	}
	return newsletter.VarsFor(brand, opts, timeNow()), nil
}

// loadTemplate builds the campaign template from --preset or --file, then
// applies --subject and --title overrides. A .json file is decoded as a
// template; any other file is parsed as a preset document.
func loadTemplate(ctx context.Context, a *app) (model.Template, error) {
	var t model.Template
	switch {
	case campPreset != "" && campFile != "":
		return t, errors.New("use either --preset or --file")
	case campPreset != "" || (campFile != "" && !strings.EqualFold(filepath.Ext(campFile), ".json")):
		var p model.Preset
		var err error
		if campPreset != "" {
			p, err = a.presets.Get(campPreset)
		} else {
			var b []byte
			if b, err = os.ReadFile(campFile); err == nil {
				p, err = newsletter.ParsePreset(b, filepath.Base(campFile))
			}
		}
		if err != nil {
			return t, err
		}
		brand, err := a.currentBrand(ctx)
		if err != nil {
			return t, err
		}
		t = newsletter.ApplyPreset(p, newsletter.VarsFor(brand, a.vars, timeNow()))
	case campFile != "":
		b, err := os.ReadFile(campFile)
		if err != nil {
			return t, err
		}
		if err := json.Unmarshal(b, &t); err != nil {
			return t, fmt.Errorf("parse %s: %w", campFile, err)
		}
	}
	if campSubject != "" {
		t.Subject = campSubject
	}
	if campTitle != "" {
		t.MainTitle = campTitle
	}
	return t, nil
}

// withApp wires the full service for the duration of fn.
func withApp(fn func(ctx context.Context, a *app) error) error {
	ctx := context.Background()
	a, err := newApp(ctx, GetConfig())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

var campaignPreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Render a campaign for a placeholder recipient",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			t, err := loadTemplate(ctx, a)
			if err != nil {
				return err
			}
			html, err := a.dispatcher.Preview(ctx, t)
			if err != nil {
				return err
			}
			if campOutput == "" || campOutput == "-" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), html)
				return err
			}
			if err := os.WriteFile(campOutput, []byte(html), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", campOutput)
			return nil
		})
	},
}

var campaignSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a campaign to every subscribed address",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			t, err := loadTemplate(ctx, a)
			if err != nil {
				return err
			}
			if err := campaign.Validate(t); err != nil {
				return err
			}
			n, err := a.dispatcher.Recipients(ctx)
			if err != nil {
				return err
			}
			confirmed := n
			switch {
			case cmd.Flags().Changed("confirm"):
				confirmed = campCount
			case !campYes:
				fmt.Fprintf(cmd.OutOrStdout(), "Send %q to %d subscribers via %s? [y/N] ",
					t.Subject, n, a.dispatcher.Transport.Name())
				line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if ans := strings.ToLower(strings.TrimSpace(line)); ans != "y" && ans != "yes" {
					fmt.Fprintln(cmd.OutOrStdout(), "aborted")
					return nil
				}
			}
			res, err := a.dispatcher.Send(ctx, t, confirmed)
			fmt.Fprintf(cmd.OutOrStdout(), "successful: %d, failed: %d\n", res.Successful, res.Failed)
			for _, f := range res.Failures {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s\n", f.Email, f.Error)
			}
			return err
		})
	},
}

var campaignSuggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Suggest subject lines with OpenAI",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			if a.copywriter == nil {
				return errors.New("openai.api_key is not set")
			}
			t, err := loadTemplate(ctx, a)
			if err != nil {
				return err
			}
			brand, err := a.currentBrand(ctx)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
			defer cancel()
			subjects, err := a.copywriter.SuggestSubjects(ctx, t, brand.CompanyName, campSuggest, a.cfg.OpenAI.Language)
			if err != nil {
				return err
			}
			for _, s := range subjects {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			return nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{campaignPreviewCmd, campaignSendCmd, campaignSuggestCmd} {
		c.Flags().StringVar(&campPreset, "preset", "", "start from the preset with this slug")
		c.Flags().StringVarP(&campFile, "file", "f", "", "template file (.json) or preset document (.md)")
		c.Flags().StringVar(&campSubject, "subject", "", "override the subject")
		c.Flags().StringVar(&campTitle, "title", "", "override the main title")
	}
	campaignPreviewCmd.Flags().StringVarP(&campOutput, "output", "o", "", "write HTML to this file instead of stdout")
	campaignSendCmd.Flags().BoolVarP(&campYes, "yes", "y", false, "skip the confirmation prompt")
	campaignSendCmd.Flags().IntVar(&campCount, "confirm", 0, "expected recipient count; the send is refused if it differs")
	campaignSuggestCmd.Flags().IntVarP(&campSuggest, "count", "n", 5, "number of suggestions")

	campaignCmd.AddCommand(campaignPreviewCmd, campaignSendCmd, campaignSuggestCmd)
	rootCmd.AddCommand(campaignCmd)
}
