package handler

import (
	"encoding/csv"
	"net/http"

	"github.com/pkordes/trip-tracker/internal/domain"
	"github.com/pkordes/trip-tracker/internal/shell"
	"github.com/pkordes/trip-tracker/internal/view"
)

// GetExport handles GET /trips/export.csv: the signed-in user's trips as CSV,
// in list order.
func (s *Server) GetExport(w http.ResponseWriter, r *http.Request) {
	e := entryFrom(r)
	if rt := e.Shell.Route(shell.PathHome); rt.Redirect != "" {
		http.Redirect(w, r, rt.Redirect, http.StatusFound)
		return
	}

	trips := view.SortTrips(e.Shell.State().Trips)

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="trips.csv"`)
	w.Header().Set("Cache-Control", "no-store")

	cw := csv.NewWriter(w)
	_ = cw.Write(domain.ExportHeader)
	for _, t := range trips {
		_ = cw.Write(domain.NewExportRow(t).Record())
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		s.log.WarnContext(r.Context(), "handler: write export", "err", err)
	}
}
