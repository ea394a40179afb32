package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"storefront-newsletter/internal/model"
)

type subscribeRequest struct {
	Email  string `json:"email"`
	Source string `json:"source"`
}

type subscribeResponse struct {
	Status     model.SubscribeOutcome `json:"status"`
	Subscriber model.Subscriber       `json:"subscriber"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if !decode(w, r, &req) {
		return
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = "api"
	}
	sub, outcome, err := s.Store.Subscribe(r.Context(), req.Email, source)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	status := http.StatusOK
	if outcome == model.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, subscribeResponse{Status: outcome, Subscriber: sub})
}

type unsubscribeRequest struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

// handleUnsubscribe accepts email and token from the query string, a form
// body or a JSON body. An RFC 8058 one-click POST carries them in the query.
func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	req := unsubscribeRequest{Email: r.FormValue("email"), Token: r.FormValue("token")}
	if req.Email == "" && strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "validation", "invalid JSON: "+err.Error())
			return
		}
	}
	email, err := model.NormalizeEmail(req.Email)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	if err := s.Links.Verify(email, req.Token); err != nil {
		writeError(w, err, nil)
		return
	}
	_, outcome, err := s.Store.Unsubscribe(r.Context(), email)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": outcome, "email": email})
}
