package google

import (
	"context"
	"fmt"
	"strconv"

	"google.golang.org/api/sheets/v4"

	"github.com/digitaldrywood/stravaexport/internal/export"
	"github.com/digitaldrywood/stravaexport/internal/strava"
)

type SheetsClient struct {
	service       *sheets.Service
	spreadsheetID string
	sheet         string
}

func NewSheetsClient(service *sheets.Service, spreadsheetID string) *SheetsClient {
	return &SheetsClient{
		service:       service,
		spreadsheetID: spreadsheetID,
		sheet:         export.SummarySheet,
	}
}

// AppendActivities appends one summary row per activity not already in the
// sheet, creating the sheet and its header row on first use. samples gives
// the stream length per activity ID. It returns the number of rows added.
func (s *SheetsClient) AppendActivities(ctx context.Context, acts []strava.Activity, samples map[int64]int) (int, error) {
	if err := s.ensureSheet(ctx); err != nil {
		return 0, err
	}

	existing, err := s.ExistingIDs(ctx)
	if err != nil {
		return 0, err
	}

	var values [][]interface{}
	if len(existing) == 0 {
		values = append(values, export.SummaryHeader())
	}
	added := 0
	for _, a := range acts {
		if existing[a.ID] {
			continue
		}
		values = append(values, export.SummaryRow(a, samples[a.ID]))
		added++
	}
	if added == 0 {
		return 0, nil
	}

	valueRange := &sheets.ValueRange{
		Values: values,
	}

	_, err = s.service.Spreadsheets.Values.Append(
		s.spreadsheetID,
		s.sheet+"!A:L",
		valueRange,
	).ValueInputOption("USER_ENTERED").Context(ctx).Do()

	if err != nil {
		return 0, fmt.Errorf("unable to append data to sheet: %w", err)
	}

	return added, nil
}

// ExistingIDs reads the activity IDs already present in the first column.
func (s *SheetsClient) ExistingIDs(ctx context.Context) (map[int64]bool, error) {
	resp, err := s.service.Spreadsheets.Values.Get(
		s.spreadsheetID,
		s.sheet+"!A:A",
	).ValueRenderOption("UNFORMATTED_VALUE").Context(ctx).Do()

	if err != nil {
		return nil, fmt.Errorf("unable to retrieve data from sheet: %w", err)
	}

	ids := make(map[int64]bool)
	for _, row := range resp.Values {
		if id, ok := idValue(row); ok {
			ids[id] = true
		}
	}

	return ids, nil
}

func (s *SheetsClient) ensureSheet(ctx context.Context) error {
	ss, err := s.service.Spreadsheets.Get(s.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to read spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == s.sheet {
			return nil
		}
	}

	_, err = s.service.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: s.sheet}}},
		},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to add sheet %s: %w", s.sheet, err)
	}
	return nil
}

func idValue(row []interface{}) (int64, bool) {
	if len(row) == 0 {
		return 0, false
	}
	if v, ok := row[0].(float64); ok {
		return int64(v), true
	}
	id, err := strconv.ParseInt(getStringValue(row, 0), 10, 64)
	return id, err == nil
}

func getStringValue(row []interface{}, index int) string {
	if len(row) > index {
		if val, ok := row[index].(string); ok {
			return val
		}
	}
	return ""
}
