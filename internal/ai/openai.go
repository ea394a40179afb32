package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"storefront-newsletter/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// Copywriter suggests newsletter copy.
type Copywriter interface {
	// SuggestSubjects proposes up to n subject lines for the template in the
	// given language.
	SuggestSubjects(ctx context.Context, t model.Template, brand string, n int, language string) ([]string, error)
}

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("openai is not configured")

// OpenAIClient implements Copywriter using OpenAI Chat Completions API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

type Config struct {
	APIKey  string
	Model   string
	BaseURL string // optional
}

// NewOpenAI returns nil when no API key is configured.
func NewOpenAI(cfg Config) *OpenAIClient {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}
	var c *openai.Client
	if cfg.BaseURL != "" {
		cc := openai.DefaultConfig(cfg.APIKey)
		cc.BaseURL = cfg.BaseURL
		c = openai.NewClientWithConfig(cc)
	} else {
		c = openai.NewClient(cfg.APIKey)
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIClient{client: c, model: model}
}

var (
	tagPattern    = regexp.MustCompile(`<[^>]*>`)
	bulletPattern = regexp.MustCompile(`^(?:[-*•]|\d+[.)])\s*`)
)

// plainText strips tags from an HTML fragment and collapses whitespace.
func plainText(html string) string {
	return strings.Join(strings.Fields(tagPattern.ReplaceAllString(html, " ")), " ")
}

func (o *OpenAIClient) SuggestSubjects(ctx context.Context, t model.Template, brand string, n int, language string) ([]string, error) {
	if o == nil {
		return nil, ErrNotConfigured
	}
	if n <= 0 || n > 10 {
		n = 5
	}
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	body := plainText(t.Description)
	if len([]rune(body)) > 1200 {
		body = string([]rune(body)[:1200])
	}
	sys := fmt.Sprintf(`
		You write email subject lines for %s, a fashion storefront. Write in %s.
		Return exactly %d subject lines, one per line, no numbering, no quotes.
		Each line at most 60 characters. Elegant, specific, never spammy; avoid ALL CAPS and excessive punctuation.
		`, brandOrDefault(brand), langOrDefault(language), n)
	user := fmt.Sprintf("Current subject: %s\nHeadline: %s\nCall to action: %s\nBody: %s",
		t.Subject, t.MainTitle, t.ButtonText, body)
	out, err := o.create(ctx, sys, user)
	if err != nil {
		slog.Error("openai: suggest subjects error", "err", err)
		return nil, err
	}
	return parseLines(out, n), nil
}

// parseLines turns a model reply into at most n clean subject lines.
func parseLines(out string, n int) []string {
	var res []string
	for _, l := range strings.Split(out, "\n") {
		l = strings.TrimSpace(l)
		l = bulletPattern.ReplaceAllString(l, "")
		l = strings.Trim(l, `"'`)
		if l == "" {
			continue
		}
		res = append(res, l)
		if len(res) == n {
			break
		}
	}
	return res
}

func (o *OpenAIClient) create(ctx context.Context, system, user string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.8,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func langOrDefault(lang string) string {
	l := strings.TrimSpace(lang)
	if l == "" {
		return "English"
	}
	return l
}

func brandOrDefault(b string) string {
	if strings.TrimSpace(b) == "" {
		return "the brand"
	}
	return b
}
