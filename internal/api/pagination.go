package api

import (
	"net/http"
	"strconv"

	"storefront-newsletter/internal/model"
)

// parsePage extracts page and limit query params; out-of-range values are
// clamped by model.NormalizePage.
func parsePage(r *http.Request, defaultLimit int) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = defaultLimit
	}
	return model.NormalizePage(page, limit)
}

// parseFilter reads status and search query params.
func parseFilter(r *http.Request) (model.ListFilter, error) {
	st, err := model.ParseStatusFilter(r.URL.Query().Get("status"))
	if err != nil {
		return model.ListFilter{}, err
	}
	return model.ListFilter{Status: st, Search: r.URL.Query().Get("search")}, nil
}
