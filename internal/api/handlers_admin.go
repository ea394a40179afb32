package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"storefront-newsletter/internal/campaign"
	"storefront-newsletter/internal/model"
	"storefront-newsletter/internal/newsletter"
	"storefront-newsletter/internal/storage"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListSubscribers(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "validation", err.Error())
		return
	}
	page, limit := parsePage(r, s.Options.PageSize)
	res, err := s.Store.List(r.Context(), f, page, limit)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// csvResponse sets the attachment headers on the first write, so a failure
// before any output can still be answered with a JSON error.
type csvResponse struct {
	w       http.ResponseWriter
	name    string
	started bool
}

func (c *csvResponse) Write(p []byte) (int, error) {
	if !c.started {
		c.started = true
		c.w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		c.w.Header().Set("Content-Disposition", `attachment; filename="`+c.name+`"`)
		c.w.WriteHeader(http.StatusOK)
	}
	return c.w.Write(p)
}

func (s *Server) handleExportSubscribers(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "validation", err.Error())
		return
	}
	out := &csvResponse{w: w, name: fmt.Sprintf("subscribers-%s.csv", s.now().Format("2006-01-02"))}
	n, err := storage.Export(r.Context(), s.Store, f, out)
	if err != nil {
		if !out.started {
			writeError(w, fmt.Errorf("export subscribers: %w", err), nil)
			return
		}
		// the response is already streaming; the truncated file is all we can do
		slog.Error("api: export failed mid-stream", "rows", n, "err", err)
		return
	}
	slog.Info("api: subscribers exported", "rows", n, "status", f.Status)
}

func (s *Server) handleDeleteSubscriber(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.Store.GetSettings(r.Context())
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var st model.Settings
	if !decode(w, r, &st) {
		return
	}
	if err := s.Store.SaveSettings(r.Context(), st); err != nil {
		writeError(w, err, nil)
		return
	}
	s.handleGetSettings(w, r)
}

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Presets.List())
}

func (s *Server) handleSavePreset(w http.ResponseWriter, r *http.Request) {
	var in model.Preset
	if !decode(w, r, &in) {
		return
	}
	p, err := s.Presets.Save(in)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	slog.Info("api: preset saved", "slug", p.Slug)
	writeJSON(w, http.StatusCreated, p)
}

// brand returns the configured brand with stored settings overlaid.
func (s *Server) brand(ctx context.Context) (newsletter.Brand, error) {
	st, err := s.Store.GetSettings(ctx)
	if err != nil {
		return newsletter.Brand{}, err
	}
	return s.Brand.WithSettings(st), nil
}

func (s *Server) handleApplyPreset(w http.ResponseWriter, r *http.Request) {
	p, err := s.Presets.Get(chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	b, err := s.brand(r.Context())
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, newsletter.ApplyPreset(p, newsletter.VarsFor(b, s.Vars, s.now())))
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var t model.Template
	if !decode(w, r, &t) {
		return
	}
	out, err := s.Dispatcher.Preview(r.Context(), t)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out))
}

func (s *Server) handleRecipients(w http.ResponseWriter, r *http.Request) {
	n, err := s.Dispatcher.Recipients(r.Context())
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

type sendRequest struct {
	Template          model.Template `json:"template"`
	ConfirmRecipients *int           `json:"confirmRecipients"`
}

// handleSend dispatches a campaign. The send is detached from the request
// context so a disconnecting client cannot cut it short.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ConfirmRecipients == nil {
		writeErrorMessage(w, http.StatusBadRequest, "validation", "confirmRecipients is required")
		return
	}
	res, err := s.Dispatcher.Send(context.WithoutCancel(r.Context()), req.Template, *req.ConfirmRecipients)
	if err != nil {
		var details any
		if errors.Is(err, campaign.ErrTransportUnavailable) {
			details = res
		}
		writeError(w, err, details)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSuggestSubjects(w http.ResponseWriter, r *http.Request) {
	var t model.Template
	if !decode(w, r, &t) {
		return
	}
	if s.Copywriter == nil {
		writeErrorMessage(w, http.StatusNotImplemented, "not_configured", "openai is not configured")
		return
	}
	n, _ := strconv.Atoi(r.URL.Query().Get("n"))
	b, err := s.brand(r.Context())
	if err != nil {
		writeError(w, err, nil)
		return
	}
	subjects, err := s.Copywriter.SuggestSubjects(r.Context(), t, b.CompanyName, n, s.Language)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"subjects": subjects})
}
