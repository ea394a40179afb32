package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/idna"
)

// Status is the subscription state of an address.
type Status string

const (
	StatusSubscribed   Status = "subscribed"
	StatusUnsubscribed Status = "unsubscribed"
)

// Valid reports whether s is a concrete subscriber status.
func (s Status) Valid() bool {
	return s == StatusSubscribed || s == StatusUnsubscribed
}

// ParseStatusFilter maps a user-supplied filter to a status. Empty and "all"
// map to the empty status, meaning no restriction.
func ParseStatusFilter(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return "", nil
	case string(StatusSubscribed):
		return StatusSubscribed, nil
	case string(StatusUnsubscribed):
		return StatusUnsubscribed, nil
	default:
		return "", fmt.Errorf("unknown status filter %q", s)
	}
}

// Subscriber is a single newsletter recipient.
type Subscriber struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	Status         Status     `json:"status"`
	SubscribedAt   time.Time  `json:"subscribedAt"`
	UnsubscribedAt *time.Time `json:"unsubscribedAt,omitempty"`
	Source         string     `json:"source,omitempty"`
}

// SubscribeOutcome describes what a subscribe request did.
type SubscribeOutcome string

const (
	Created           SubscribeOutcome = "created"
	Reactivated       SubscribeOutcome = "reactivated"
	AlreadySubscribed SubscribeOutcome = "already_subscribed"
)

// UnsubscribeOutcome describes what an unsubscribe request did.
type UnsubscribeOutcome string

const (
	Unsubscribed        UnsubscribeOutcome = "unsubscribed"
	AlreadyUnsubscribed UnsubscribeOutcome = "already_unsubscribed"
)

// ListFilter restricts a subscriber listing. Zero value matches everything.
type ListFilter struct {
	Status Status `json:"status,omitempty"`
	Search string `json:"search,omitempty"`
}

// Match reports whether s passes the filter.
func (f ListFilter) Match(s Subscriber) bool {
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Search))
	return q == "" || strings.Contains(strings.ToLower(s.Email), q)
}

// Stats are global subscriber counts, independent of any filter.
type Stats struct {
	Total        int `json:"total"`
	Subscribed   int `json:"subscribed"`
	Unsubscribed int `json:"unsubscribed"`
}

// Count returns the number of records a status filter would select.
func (s Stats) Count(status Status) int {
	switch status {
	case StatusSubscribed:
		return s.Subscribed
	case StatusUnsubscribed:
		return s.Unsubscribed
	default:
		return s.Total
	}
}

// Pagination describes the position of a page inside a filtered listing.
type Pagination struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	TotalItems  int  `json:"totalItems"`
	PageSize    int  `json:"pageSize"`
	HasNext     bool `json:"hasNext"`
	HasPrev     bool `json:"hasPrev"`
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// NormalizePage clamps page and size to sane values.
func NormalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

// NewPagination computes pagination metadata for totalItems matches.
func NewPagination(page, size, totalItems int) Pagination {
	totalPages := (totalItems + size - 1) / size
	if totalPages < 1 {
		totalPages = 1
	}
	return Pagination{
		CurrentPage: page,
		TotalPages:  totalPages,
		TotalItems:  totalItems,
		PageSize:    size,
		HasNext:     page < totalPages,
		HasPrev:     page > 1,
	}
}

// SubscriberPage is one page of a filtered listing plus global stats.
type SubscriberPage struct {
	Records    []Subscriber `json:"records"`
	Stats      Stats        `json:"stats"`
	Pagination Pagination   `json:"pagination"`
}

// ErrInvalidEmail is returned for addresses that fail basic validation.
var ErrInvalidEmail = errors.New("invalid email address")

// NormalizeEmail trims and lower-cases an address and converts an
// internationalized domain to its ASCII form.
func NormalizeEmail(raw string) (string, error) {
	e := strings.ToLower(strings.TrimSpace(raw))
	at := strings.LastIndex(e, "@")
	if at <= 0 || at != strings.Index(e, "@") || at == len(e)-1 {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, raw)
	}
	if strings.ContainsAny(e, " \t\r\n<>,;\"") {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, raw)
	}
	local, domain := e[:at], e[at+1:]
	ascii, err := idna.ToASCII(domain)
	if err != nil {
		return "", fmt.Errorf("%w: %q (%v)", ErrInvalidEmail, raw, err)
	}
	if !strings.Contains(ascii, ".") || strings.HasPrefix(ascii, ".") || strings.HasSuffix(ascii, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, raw)
	}
	return local + "@" + ascii, nil
}
