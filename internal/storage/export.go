package storage

import (
	"context"
	"encoding/csv"
	"io"
	"time"

	"storefront-newsletter/internal/model"
)

// ExportHeader is the first CSV row written by Export.
var ExportHeader = []string{"email", "status", "source", "subscribed_at", "unsubscribed_at"}

const exportPageSize = model.MaxPageSize

// Export writes every subscriber matching f as CSV, paging through List so
// the filter semantics are identical. It returns the number of data rows.
func Export(ctx context.Context, st Store, f model.ListFilter, w io.Writer) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return 0, err
	}
	n := 0
	for page := 1; ; page++ {
		p, err := st.List(ctx, f, page, exportPageSize)
		if err != nil {
			return n, err
		}
		for _, s := range p.Records {
			unsub := ""
			if s.UnsubscribedAt != nil {
				unsub = s.UnsubscribedAt.UTC().Format(time.RFC3339)
			}
			if err := cw.Write([]string{
				s.Email,
				string(s.Status),
				s.Source,
				s.SubscribedAt.UTC().Format(time.RFC3339),
				unsub,
			}); err != nil {
				return n, err
			}
			n++
		}
		if !p.Pagination.HasNext {
			break
		}
	}
	cw.Flush()
	return n, cw.Error()
}
