package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"storefront-newsletter/internal/campaign"
	"storefront-newsletter/internal/mailer"
	"storefront-newsletter/internal/model"
	"storefront-newsletter/internal/newsletter"
	"storefront-newsletter/internal/storage"
	"storefront-newsletter/internal/unsubscribe"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTransport struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (*recordingTransport) Name() string { return "recording" }

func (r *recordingTransport) Send(_ context.Context, m mailer.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, m)
	return nil
}

type stubCopywriter struct{}

func (stubCopywriter) SuggestSubjects(_ context.Context, t model.Template, brand string, n int, _ string) ([]string, error) {
	return []string{brand + ": " + t.MainTitle}, nil
}

const adminToken = "s3cret"

type testEnv struct {
	srv       *Server
	handler   http.Handler
	store     storage.Store
	transport *recordingTransport
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	st := storage.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test")
	t.Cleanup(func() { _ = st.Close() })

	lib, err := newsletter.LoadLibrary("")
	require.NoError(t, err)

	brand := newsletter.Brand{CompanyName: "Acme", WebsiteURL: "https://acme.test"}
	links := unsubscribe.New(brand.WebsiteURL, "", "signing-key", true)
	tr := &recordingTransport{}
	now := func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	renderer := newsletter.NewRenderer(brand)
	renderer.Now = now

	srv := &Server{
		Store:   st,
		Presets: lib,
		Dispatcher: &campaign.Dispatcher{
			Store:     st,
			Renderer:  renderer,
			Transport: tr,
			Links:     links,
			Sender:    campaign.Sender{From: "news@acme.test", FromName: "Acme"},
		},
		Links:      links,
		Copywriter: stubCopywriter{},
		Brand:      brand,
		Options:    Options{AdminToken: adminToken, PageSize: 50},
		Now:        now,
	}
	return &testEnv{srv: srv, handler: srv.Routes(), store: st, transport: tr}
}

func (e *testEnv) do(t *testing.T, method, target string, body any, admin bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin {
		req.Header.Set("Authorization", "Bearer "+adminToken)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/healthz", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubscribeOutcomes(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/newsletter/subscribe", subscribeRequest{Email: "Jane@Example.com", Source: "footer"}, false)
	require.Equal(t, http.StatusCreated, rec.Code)
	got := decodeBody[subscribeResponse](t, rec)
	assert.Equal(t, model.Created, got.Status)
	assert.Equal(t, "jane@example.com", got.Subscriber.Email)
	assert.Equal(t, "footer", got.Subscriber.Source)

	rec = e.do(t, http.MethodPost, "/api/newsletter/subscribe", subscribeRequest{Email: "jane@example.com"}, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.AlreadySubscribed, decodeBody[subscribeResponse](t, rec).Status)

	rec = e.do(t, http.MethodPost, "/api/newsletter/subscribe", subscribeRequest{Email: "nope"}, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", decodeBody[ErrorResponse](t, rec).Code)
}

func TestSubscribeMalformedJSON(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/newsletter/subscribe", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnsubscribeRequiresValidToken(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	_, _, err := e.store.Subscribe(ctx, "jane@example.com", "")
	require.NoError(t, err)

	rec := e.do(t, http.MethodPost, "/api/newsletter/unsubscribe?email=jane@example.com&token=bogus", nil, false)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/newsletter/unsubscribe?email=jane@example.com", nil, false)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	link, err := url.Parse(e.srv.Links.URL("jane@example.com"))
	require.NoError(t, err)
	rec = e.do(t, http.MethodPost, "/api/newsletter/unsubscribe?"+link.RawQuery, nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), string(model.Unsubscribed))

	// second click is idempotent
	rec = e.do(t, http.MethodPost, "/api/newsletter/unsubscribe",
		unsubscribeRequest{Email: "jane@example.com", Token: e.srv.Links.Token("jane@example.com")}, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), string(model.AlreadyUnsubscribed))

	rec = e.do(t, http.MethodPost, "/api/newsletter/unsubscribe",
		unsubscribeRequest{Email: "ghost@example.com", Token: e.srv.Links.Token("ghost@example.com")}, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnsubscribeIgnoresGet(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	created, _, err := e.store.Subscribe(ctx, "jane@example.com", "")
	require.NoError(t, err)

	link, err := url.Parse(e.srv.Links.URL("jane@example.com"))
	require.NoError(t, err)
	rec := e.do(t, http.MethodGet, "/api/newsletter/unsubscribe?"+link.RawQuery, nil, false)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	sub, err := e.store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSubscribed, sub.Status)
}

func TestUnsubscribeOneClickForm(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	_, _, err := e.store.Subscribe(ctx, "jane@example.com", "")
	require.NoError(t, err)

	link, err := url.Parse(e.srv.Links.URL("jane@example.com"))
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/newsletter/unsubscribe?"+link.RawQuery,
		strings.NewReader("List-Unsubscribe=One-Click"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), string(model.Unsubscribed))
}

func TestAdminRequiresToken(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/admin/newsletter/subscribers", nil, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = e.do(t, http.MethodGet, "/api/admin/newsletter/subscribers", nil, true)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListSubscribers(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	for _, em := range []string{"a@example.com", "b@example.com", "c@shop.io"} {
		_, _, err := e.store.Subscribe(ctx, em, "")
		require.NoError(t, err)
	}
	_, _, err := e.store.Unsubscribe(ctx, "b@example.com")
	require.NoError(t, err)

	rec := e.do(t, http.MethodGet, "/api/admin/newsletter/subscribers?status=subscribed&limit=1&page=2", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[model.SubscriberPage](t, rec)
	assert.Equal(t, model.Stats{Total: 3, Subscribed: 2, Unsubscribed: 1}, page.Stats)
	assert.Len(t, page.Records, 1)
	assert.Equal(t, 2, page.Pagination.TotalPages)
	assert.True(t, page.Pagination.HasPrev)

	rec = e.do(t, http.MethodGet, "/api/admin/newsletter/subscribers?search=shop", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	page = decodeBody[model.SubscriberPage](t, rec)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "c@shop.io", page.Records[0].Email)

	rec = e.do(t, http.MethodGet, "/api/admin/newsletter/subscribers?status=bounced", nil, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportSubscribers(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	for _, em := range []string{"a@example.com", "b@example.com"} {
		_, _, err := e.store.Subscribe(ctx, em, "")
		require.NoError(t, err)
	}
	rec := e.do(t, http.MethodGet, "/api/admin/newsletter/subscribers/export?status=subscribed", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "subscribers-2026-03-10.csv")
	rows, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, storage.ExportHeader, rows[0])
}

type failingListStore struct {
	storage.Store
}

func (failingListStore) List(context.Context, model.ListFilter, int, int) (model.SubscriberPage, error) {
	return model.SubscriberPage{}, errors.New("store down")
}

func TestExportReportsStoreFailure(t *testing.T) {
	e := newTestEnv(t)
	e.srv.Store = failingListStore{Store: e.store}
	h := e.srv.Routes()

	req := httptest.NewRequest(http.MethodGet, "/api/admin/newsletter/subscribers/export", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "internal", decodeBody[ErrorResponse](t, rec).Code)
}

func TestDeleteSubscriber(t *testing.T) {
	e := newTestEnv(t)
	sub, _, err := e.store.Subscribe(context.Background(), "a@example.com", "")
	require.NoError(t, err)

	rec := e.do(t, http.MethodDelete, "/api/admin/newsletter/subscribers/"+sub.ID, nil, true)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = e.do(t, http.MethodDelete, "/api/admin/newsletter/subscribers/"+sub.ID, nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSettingsRoundTrip(t *testing.T) {
	e := newTestEnv(t)
	in := model.Settings{CompanyName: "Maison", AccentColor: "#ff00aa"}
	rec := e.do(t, http.MethodPut, "/api/admin/newsletter/settings", in, true)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[model.Settings](t, rec)
	assert.Equal(t, "Maison", got.CompanyName)
	assert.False(t, got.UpdatedAt.IsZero())

	rec = e.do(t, http.MethodGet, "/api/admin/newsletter/settings", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "#ff00aa", decodeBody[model.Settings](t, rec).AccentColor)
}

func TestPresets(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/admin/newsletter/presets", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]model.Preset](t, rec), 5)

	rec = e.do(t, http.MethodPost, "/api/admin/newsletter/presets/welcome/apply", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	tpl := decodeBody[model.Template](t, rec)
	assert.Equal(t, "Welcome to Acme", tpl.Subject)
	assert.Equal(t, "https://acme.test", tpl.ButtonURL)

	// stored settings take precedence over configured brand
	require.NoError(t, e.store.SaveSettings(context.Background(), model.Settings{CompanyName: "Maison"}))
	rec = e.do(t, http.MethodPost, "/api/admin/newsletter/presets/welcome/apply", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Maison", decodeBody[model.Template](t, rec).Subject)

	rec = e.do(t, http.MethodPost, "/api/admin/newsletter/presets/nope/apply", nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSavePreset(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodPost, "/api/admin/newsletter/presets", model.Preset{
		Name:     "Flash Friday",
		Template: model.Template{Subject: "{{companyName}} flash sale", MainTitle: "24 hours only"},
	}, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "flash-friday", decodeBody[model.Preset](t, rec).Slug)

	rec = e.do(t, http.MethodGet, "/api/admin/newsletter/presets", nil, true)
	assert.Len(t, decodeBody[[]model.Preset](t, rec), 6)

	rec = e.do(t, http.MethodPost, "/api/admin/newsletter/presets/flash-friday/apply", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Acme flash sale", decodeBody[model.Template](t, rec).Subject)

	rec = e.do(t, http.MethodPost, "/api/admin/newsletter/presets",
		model.Preset{Name: "Broken", Template: model.Template{Subject: "no title"}}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", decodeBody[ErrorResponse](t, rec).Code)
}

func TestPreview(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodPost, "/api/admin/newsletter/campaigns/preview",
		model.Template{Subject: "Hello", MainTitle: "Spring Drop"}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Spring Drop")
	assert.Contains(t, rec.Body.String(), campaign.PreviewRecipient)
	assert.Empty(t, e.transport.sent)

	rec = e.do(t, http.MethodPost, "/api/admin/newsletter/campaigns/preview", model.Template{Subject: "Hello"}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendCampaign(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	for _, em := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		_, _, err := e.store.Subscribe(ctx, em, "")
		require.NoError(t, err)
	}
	tpl := model.Template{Subject: "Hello", MainTitle: "Spring Drop"}

	rec := e.do(t, http.MethodGet, "/api/admin/newsletter/campaigns/recipients", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decodeBody[map[string]int](t, rec)["count"])

	two := 2
	rec = e.do(t, http.MethodPost, "/api/admin/newsletter/campaigns/send", map[string]any{"template": tpl, "confirmRecipients": two}, true)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "confirmation_mismatch", decodeBody[ErrorResponse](t, rec).Code)
	assert.Empty(t, e.transport.sent)

	rec = e.do(t, http.MethodPost, "/api/admin/newsletter/campaigns/send", map[string]any{"template": tpl}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/admin/newsletter/campaigns/send", map[string]any{"template": tpl, "confirmRecipients": 3}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeBody[model.SendResult](t, rec)
	assert.Equal(t, 3, res.Successful)
	assert.Equal(t, 0, res.Failed)
	assert.Len(t, e.transport.sent, 3)
}

func TestSendAllFailedReturnsResult(t *testing.T) {
	e := newTestEnv(t)
	_, _, err := e.store.Subscribe(context.Background(), "a@example.com", "")
	require.NoError(t, err)
	e.transport.err = errors.New("connection refused")

	rec := e.do(t, http.MethodPost, "/api/admin/newsletter/campaigns/send",
		map[string]any{"template": model.Template{Subject: "Hi", MainTitle: "T"}, "confirmRecipients": 1}, true)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	var body struct {
		Code    string           `json:"code"`
		Details model.SendResult `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "transport_unavailable", body.Code)
	assert.Equal(t, 1, body.Details.Failed)
}

func TestSuggestSubjects(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodPost, "/api/admin/newsletter/campaigns/suggest-subjects",
		model.Template{MainTitle: "Spring Drop"}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"Acme: Spring Drop"}, decodeBody[map[string][]string](t, rec)["subjects"])

	e.srv.Copywriter = nil
	rec = e.do(t, http.MethodPost, "/api/admin/newsletter/campaigns/suggest-subjects",
		model.Template{MainTitle: "Spring Drop"}, true)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestSubscribeThrottled(t *testing.T) {
	e := newTestEnv(t)
	e.srv.Options.SubscribeRate = 2
	h := e.srv.Routes()
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/newsletter/subscribe",
			strings.NewReader(`{"email":"x@example.com"}`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusCreated, http.StatusOK, http.StatusTooManyRequests}, codes)
}
