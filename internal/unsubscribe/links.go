package unsubscribe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
)

// ErrInvalidToken is returned when a presented token does not match the
// address it claims to unsubscribe.
var ErrInvalidToken = errors.New("invalid unsubscribe token")

const defaultPath = "/newsletter/unsubscribe"

// Links builds and checks per-recipient unsubscribe URLs. With an empty
// signing key links carry no token and every token verifies.
type Links struct {
	base         string
	path         string
	key          []byte
	requireToken bool
}

// New returns a link builder for website + path. requireToken only has an
// effect when signingKey is set.
func New(website, path, signingKey string, requireToken bool) *Links {
	if strings.TrimSpace(path) == "" {
		path = defaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return &Links{
		base:         strings.TrimRight(website, "/") + path,
		path:         path,
		key:          []byte(signingKey),
		requireToken: requireToken && signingKey != "",
	}
}

// ForWebsite returns a copy of l rooted at website, keeping the path and
// signing key. An empty website returns l.
func (l *Links) ForWebsite(website string) *Links {
	website = strings.TrimRight(strings.TrimSpace(website), "/")
	if website == "" {
		return l
	}
	c := *l
	c.base = website + c.path
	return &c
}

// Generic is the non-personalized link used in previews.
func (l *Links) Generic() string {
	return l.base
}

// URL returns the unsubscribe link for one recipient.
func (l *Links) URL(email string) string {
	q := url.Values{}
	q.Set("email", email)
	if tok := l.Token(email); tok != "" {
		q.Set("token", tok)
	}
	return l.base + "?" + q.Encode()
}

// Token signs the lower-cased address. Empty when no key is configured.
func (l *Links) Token(email string) string {
	if len(l.key) == 0 {
		return ""
	}
	h := hmac.New(sha256.New, l.key)
	h.Write([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// Verify checks token against email. A missing token is accepted unless
// tokens are required.
func (l *Links) Verify(email, token string) error {
	if len(l.key) == 0 {
		return nil
	}
	if token == "" {
		if l.requireToken {
			return ErrInvalidToken
		}
		return nil
	}
	if !hmac.Equal([]byte(l.Token(email)), []byte(token)) {
		return ErrInvalidToken
	}
	return nil
}
