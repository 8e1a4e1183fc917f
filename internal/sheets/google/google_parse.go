package google

import (
	"fmt"
	"strings"

	gsheet "google.golang.org/api/sheets/v4"
)

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// sheetIDByTitle finds the numeric id of a tab. Titles compare case-insensitively.
func sheetIDByTitle(sheets []*gsheet.Sheet, title string) (int64, error) {
	for _, s := range sheets {
		if s == nil || s.Properties == nil {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(s.Properties.Title), strings.TrimSpace(title)) {
			return s.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found", title)
}

// deleteRowRequests turns 1-based row numbers into DeleteDimension requests,
// keeping the caller's order.
func deleteRowRequests(sheetID int64, rows []int) []*gsheet.Request {
	reqs := make([]*gsheet.Request, 0, len(rows))
	for _, n := range rows {
		reqs = append(reqs, &gsheet.Request{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(n - 1),
					EndIndex:   int64(n),
				},
			},
		})
	}
	return reqs
}
