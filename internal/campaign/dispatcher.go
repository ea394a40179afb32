package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"storefront-newsletter/internal/mailer"
	"storefront-newsletter/internal/model"
	"storefront-newsletter/internal/newsletter"
	"storefront-newsletter/internal/unsubscribe"
)

var (
	ErrMissingRequired      = errors.New("subject and main title required")
	ErrConfirmationMismatch = errors.New("confirmed recipient count does not match subscribers")
	ErrSendInProgress       = errors.New("a campaign send is already in progress")
	ErrTransportUnavailable = errors.New("mail transport unavailable")
)

// PreviewRecipient stands in for a real subscriber in previews.
const PreviewRecipient = "subscriber@example.com"

const defaultConcurrency = 4

// State is the phase of the most recent Send.
type State int32

const (
	Idle State = iota
	Confirming
	Dispatching
	Completed
)

func (s State) String() string {
	switch s {
	case Confirming:
		return "confirming"
	case Dispatching:
		return "dispatching"
	case Completed:
		return "completed"
	default:
		return "idle"
	}
}

// Recipients is the store surface a dispatch reads.
type Recipients interface {
	Subscribed(ctx context.Context) ([]model.Subscriber, error)
	GetSettings(ctx context.Context) (model.Settings, error)
}

// ImageNormalizer rewrites a header image URL into one mail clients can show.
type ImageNormalizer interface {
	Normalize(ctx context.Context, src string) (string, error)
}

// Sender identifies the From side of every message.
type Sender struct {
	From     string
	FromName string
	ReplyTo  string
}

// Dispatcher previews and sends one campaign at a time.
type Dispatcher struct {
	Store       Recipients
	Renderer    *newsletter.Renderer
	Transport   mailer.Transport
	Links       *unsubscribe.Links
	Images      ImageNormalizer // optional
	Sender      Sender
	Concurrency int

	state atomic.Int32
	busy  atomic.Bool
}

// Validate rejects templates missing a subject or main title.
func Validate(t model.Template) error {
	if strings.TrimSpace(t.Subject) == "" || strings.TrimSpace(t.MainTitle) == "" {
		return ErrMissingRequired
	}
	return nil
}

// State reports the phase of the current or most recent Send.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// renderPass holds the renderer and unsubscribe links with stored
// settings applied.
type renderPass struct {
	r     *newsletter.Renderer
	links *unsubscribe.Links
}

// prepare applies stored settings to the renderer and the unsubscribe links
// and normalizes the header image. Image failures keep the original URL.
func (d *Dispatcher) prepare(ctx context.Context, t model.Template) (renderPass, model.Template, error) {
	settings, err := d.Store.GetSettings(ctx)
	if err != nil {
		return renderPass{}, t, fmt.Errorf("load settings: %w", err)
	}
	if d.Images != nil && t.HeaderImage != "" {
		u, err := d.Images.Normalize(ctx, t.HeaderImage)
		if err != nil {
			slog.Warn("campaign: header image normalization failed", "src", t.HeaderImage, "err", err)
		} else {
			t.HeaderImage = u
		}
	}
	r := d.Renderer.WithSettings(settings)
	return renderPass{r: r, links: d.Links.ForWebsite(r.Brand.WebsiteURL)}, t, nil
}

// Preview renders t once for a placeholder recipient with the generic,
// unsigned unsubscribe link. It never sends.
func (d *Dispatcher) Preview(ctx context.Context, t model.Template) (string, error) {
	if err := Validate(t); err != nil {
		return "", err
	}
	rp, t, err := d.prepare(ctx, t)
	if err != nil {
		return "", err
	}
	return rp.r.Render(t, newsletter.Recipient{Email: PreviewRecipient, UnsubscribeURL: rp.links.Generic()})
}

// Recipients returns the number of subscribers a Send would reach; callers
// show it when asking the operator to confirm.
func (d *Dispatcher) Recipients(ctx context.Context) (int, error) {
	subs, err := d.Store.Subscribed(ctx)
	if err != nil {
		return 0, err
	}
	return len(subs), nil
}

// Send delivers t to every subscribed address. confirmed must equal the
// current recipient count. Per-recipient failures are tallied and never stop
// the others. When every recipient failed the result comes back together
// with an error wrapping ErrTransportUnavailable.
func (d *Dispatcher) Send(ctx context.Context, t model.Template, confirmed int) (model.SendResult, error) {
	if !d.busy.CompareAndSwap(false, true) {
		return model.SendResult{}, ErrSendInProgress
	}
	defer d.busy.Store(false)

	if err := Validate(t); err != nil {
		return model.SendResult{}, err
	}
	d.state.Store(int32(Confirming))
	subs, err := d.Store.Subscribed(ctx)
	if err != nil {
		d.state.Store(int32(Idle))
		return model.SendResult{}, fmt.Errorf("resolve recipients: %w", err)
	}
	if confirmed != len(subs) {
		d.state.Store(int32(Idle))
		return model.SendResult{}, fmt.Errorf("%w: confirmed %d, found %d", ErrConfirmationMismatch, confirmed, len(subs))
	}
	if len(subs) == 0 {
		d.state.Store(int32(Completed))
		return model.SendResult{}, nil
	}
	rp, t, err := d.prepare(ctx, t)
	if err != nil {
		d.state.Store(int32(Idle))
		return model.SendResult{}, err
	}

	d.state.Store(int32(Dispatching))
	start := time.Now()
	res := d.fanOut(ctx, rp, t, subs)
	d.state.Store(int32(Completed))
	slog.Info("campaign: dispatch complete",
		"transport", d.Transport.Name(),
		"successful", res.Successful,
		"failed", res.Failed,
		"duration", time.Since(start),
	)
	if res.Successful == 0 {
		return res, fmt.Errorf("%w: all %d sends failed, first error: %s",
			ErrTransportUnavailable, res.Failed, res.Failures[0].Error)
	}
	return res, nil
}

func (d *Dispatcher) fanOut(ctx context.Context, rp renderPass, t model.Template, subs []model.Subscriber) model.SendResult {
	n := d.Concurrency
	if n <= 0 {
		n = defaultConcurrency
	}
	var (
		mu  sync.Mutex
		res model.SendResult
		wg  sync.WaitGroup
	)
	sem := make(chan struct{}, n)
	for _, s := range subs {
		wg.Add(1)
		sem <- struct{}{}
		go func(s model.Subscriber) {
			defer wg.Done()
			defer func() { <-sem }()
			err := d.sendOne(ctx, rp, t, s.Email)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed++
				res.Failures = append(res.Failures, model.RecipientFailure{Email: s.Email, Error: err.Error()})
				slog.Warn("campaign: send failed", "to", s.Email, "err", err)
				return
			}
			res.Successful++
		}(s)
	}
	wg.Wait()
	sort.Slice(res.Failures, func(i, j int) bool { return res.Failures[i].Email < res.Failures[j].Email })
	return res
}

func (d *Dispatcher) sendOne(ctx context.Context, rp renderPass, t model.Template, email string) error {
	link := rp.links.URL(email)
	html, err := rp.r.Render(t, newsletter.Recipient{Email: email, UnsubscribeURL: link})
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	return d.Transport.Send(ctx, mailer.Message{
		From:     d.Sender.From,
		FromName: d.Sender.FromName,
		ReplyTo:  d.Sender.ReplyTo,
		To:       email,
		Subject:  strings.TrimSpace(t.Subject),
		HTML:     html,
		Headers: map[string]string{
			"List-Unsubscribe":      "<" + link + ">",
			"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
		},
	})
}
