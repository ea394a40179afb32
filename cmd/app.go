package cmd

import (
	"context"
	"fmt"
	"time"

	"storefront-newsletter/internal/ai"
	"storefront-newsletter/internal/campaign"
	"storefront-newsletter/internal/config"
	"storefront-newsletter/internal/imaging"
	"storefront-newsletter/internal/mailer"
	"storefront-newsletter/internal/model"
	"storefront-newsletter/internal/newsletter"
	"storefront-newsletter/internal/storage"
	"storefront-newsletter/internal/unsubscribe"
)

// app bundles the collaborators shared by serve and the campaign commands.
type app struct {
	cfg        config.Config
	store      storage.Store
	brand      newsletter.Brand
	vars       newsletter.VarOptions
	links      *unsubscribe.Links
	presets    *newsletter.Library
	dispatcher *campaign.Dispatcher
	copywriter ai.Copywriter
}

// duration parses a config duration string, naming the key on failure.
func duration(key, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return d, nil
}

func brandFromConfig(cfg config.Config) newsletter.Brand {
	b := cfg.Brand
	return newsletter.Brand{
		CompanyName:  b.CompanyName,
		WebsiteURL:   b.WebsiteURL,
		LogoURL:      b.LogoURL,
		PrimaryColor: b.PrimaryColor,
		AccentColor:  b.AccentColor,
		ContactEmail: b.ContactEmail,
		Address:      b.Address,
		Social: model.SocialLinks{
			Instagram: b.Social.Instagram,
			Facebook:  b.Social.Facebook,
			Twitter:   b.Social.Twitter,
			Pinterest: b.Social.Pinterest,
			TikTok:    b.Social.TikTok,
		},
		UnsubscribePath: cfg.Unsubscribe.Path,
	}
}

// openStore opens the configured store. Callers close it.
func openStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	return storage.Open(ctx, &cfg)
}

// newApp wires the store, renderer, mail transport and dispatcher.
func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	validity, err := duration("newsletter.offer_validity", cfg.Newsletter.OfferValidity)
	if err != nil {
		return nil, err
	}
	mailTimeout, err := duration("mail.timeout", cfg.Mail.Timeout)
	if err != nil {
		return nil, err
	}
	presets, err := newsletter.LoadLibrary(cfg.Newsletter.PresetsDir)
	if err != nil {
		return nil, fmt.Errorf("load presets: %w", err)
	}
	transport, err := mailer.New(ctx, cfg.Mail)
	if err != nil {
		return nil, fmt.Errorf("mail transport: %w", err)
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	brand := brandFromConfig(cfg)
	// Sends rebase these links on a stored Settings.WebsiteURL.
	links := unsubscribe.New(brand.WebsiteURL, cfg.Unsubscribe.Path, cfg.Unsubscribe.SigningKey, cfg.Unsubscribe.RequireToken)
	d := &campaign.Dispatcher{
		Store:     st,
		Renderer:  newsletter.NewRenderer(brand),
		Transport: transport,
		Links:     links,
		Sender: campaign.Sender{
			From:     cfg.Mail.From,
			FromName: cfg.Mail.FromName,
			ReplyTo:  cfg.Mail.ReplyTo,
		},
		Concurrency: cfg.Newsletter.Concurrency,
	}
	if n := imaging.NewNormalizer(cfg.Images, mailTimeout); n != nil {
		d.Images = n
	}

	a := &app{
		cfg:        cfg,
		store:      st,
		brand:      brand,
		vars:       newsletter.VarOptions{DiscountPercent: cfg.Newsletter.DiscountPercent, OfferValidity: validity},
		links:      links,
		presets:    presets,
		dispatcher: d,
	}
	if c := ai.NewOpenAI(ai.Config{APIKey: cfg.OpenAI.APIKey, Model: cfg.OpenAI.Model, BaseURL: cfg.OpenAI.BaseURL}); c != nil {
		a.copywriter = c
	}
	return a, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// currentBrand overlays stored settings onto the configured brand.
func (a *app) currentBrand(ctx context.Context) (newsletter.Brand, error) {
	st, err := a.store.GetSettings(ctx)
	if err != nil {
		return newsletter.Brand{}, err
	}
	return a.brand.WithSettings(st), nil
}
