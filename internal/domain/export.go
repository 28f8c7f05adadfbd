package domain

import "strconv"

// ExportHeader is the header row of the trip export, in column order.
var ExportHeader = []string{"date", "start", "destination", "transport", "done", "note"}

// ExportRow is one trip in the export. Date is the calendar date only.
type ExportRow struct {
	Date        string
	Start       string
	Destination string
	Transport   string
	Done        bool
	Note        string
}

// NewExportRow flattens a trip for export.
func NewExportRow(t Trip) ExportRow {
	return ExportRow{
		Date:        DateOnly(t.Date),
		Start:       t.Start,
		Destination: t.Destination,
		Transport:   t.Transport.Label(),
		Done:        t.Done,
		Note:        t.Note,
	}
}

// Record returns the row's fields in ExportHeader order.
func (r ExportRow) Record() []string {
	return []string{r.Date, r.Start, r.Destination, r.Transport, strconv.FormatBool(r.Done), r.Note}
}
