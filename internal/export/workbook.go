// Package export writes downloaded activities to an xlsx workbook: one
// summary sheet and one sheet of time series per activity.
package export

import (
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/digitaldrywood/stravaexport/internal/strava"
)

const (
	SummarySheet = "Activities"

	timeLayout = "2006-01-02 15:04:05"
)

var summaryHeader = []any{
	"ID",
	"Name",
	"Sport",
	"Start (local)",
	"Distance (m)",
	"Moving time (s)",
	"Elapsed time (s)",
	"Elevation gain (m)",
	"Average speed (m/s)",
	"Max speed (m/s)",
	"Average heartrate",
	"Samples",
}

type Data struct {
	Activities []strava.Activity
	Streams    map[int64]strava.StreamSet
}

// WriteWorkbook writes data to path, replacing any existing file.
func WriteWorkbook(path string, data Data) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return fmt.Errorf("failed to name summary sheet: %w", err)
	}
	if err := writeSummary(f, data); err != nil {
		return err
	}

	for _, a := range data.Activities {
		set := data.Streams[a.ID]
		if len(set) == 0 {
			continue
		}
		if err := writeStreams(f, SheetName(a), set); err != nil {
			return fmt.Errorf("failed to write streams of activity %d: %w", a.ID, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	return nil
}

// SheetName is the name of the sheet holding the streams of a.
func SheetName(a strava.Activity) string {
	return strconv.FormatInt(a.ID, 10)
}

func writeSummary(f *excelize.File, data Data) error {
	header := summaryHeader
	if err := f.SetSheetRow(SummarySheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write summary header: %w", err)
	}
	if err := f.SetPanes(SummarySheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze summary header: %w", err)
	}
	if err := f.SetColWidth(SummarySheet, "B", "B", 32); err != nil {
		return err
	}
	if err := f.SetColWidth(SummarySheet, "D", "D", 20); err != nil {
		return err
	}

	for i, a := range data.Activities {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := SummaryRow(a, data.Streams[a.ID].Len())
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write activity %d: %w", a.ID, err)
		}
	}
	return nil
}

// SummaryRow is the summary sheet row of a; the Google Sheets export uses
// the same layout.
func SummaryRow(a strava.Activity, samples int) []any {
	start := a.StartDateLocal
	if start.IsZero() {
		start = a.StartDate
	}
	sport := a.SportType
	if sport == "" {
		sport = a.Type
	}
	var hr any
	if a.AverageHeartrate > 0 {
		hr = a.AverageHeartrate
	}
	return []any{
		a.ID,
		a.Name,
		sport,
		start.Format(timeLayout),
		a.Distance,
		a.MovingTime,
		a.ElapsedTime,
		a.TotalElevationGain,
		a.AverageSpeed,
		a.MaxSpeed,
		hr,
		samples,
	}
}

// SummaryHeader returns a copy of the summary column titles.
func SummaryHeader() []any {
	return append([]any(nil), summaryHeader...)
}

func writeStreams(f *excelize.File, sheet string, set strava.StreamSet) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return err
	}

	types := set.Ordered()
	var header []any
	for _, t := range types {
		if t == "latlng" {
			header = append(header, "lat", "lng")
			continue
		}
		header = append(header, t)
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}

	for i := 0; i < set.Len(); i++ {
		row := make([]any, 0, len(header))
		for _, t := range types {
			row = append(row, cellValues(t, set[t].Data, i)...)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return err
		}
	}

	return sw.Flush()
}

func cellValues(typ string, data []any, i int) []any {
	if typ == "latlng" {
		if i >= len(data) {
			return []any{nil, nil}
		}
		pair, ok := data[i].([]any)
		if !ok || len(pair) != 2 {
			return []any{nil, nil}
		}
		return []any{pair[0], pair[1]}
	}
	if i >= len(data) {
		return []any{nil}
	}
	return []any{data[i]}
}
