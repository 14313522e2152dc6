package retrieval

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/MuslimSoftware/LifeOS-sub001/internal/rank"
)

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatalf("bad test json: %v", err)
	}
	return m
}

func TestParseQuery_Defaults(t *testing.T) {
	q, err := ParseQuery(decode(t, `{"scope":"chunks"}`))
	if err != nil {
		t.Fatalf("ParseQuery failed: %v", err)
	}
	if q.Limit != DefaultLimit || q.Sort != rank.SortHybrid || q.View != ViewRaw {
		t.Errorf("unexpected defaults: %+v", q)
	}
	if q.Filter.MinSimilarity != 0.4 || q.Filter.RecencyHalfLife != 30 {
		t.Errorf("unexpected filter defaults: %+v", q.Filter)
	}
}

func TestParseQuery_Limit(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{`{"scope":"chunks","limit":1}`, 1, false},
		{`{"scope":"chunks","limit":200}`, 200, false},
		{`{"scope":"chunks","limit":201}`, 0, true},
		{`{"scope":"chunks","limit":0}`, 0, true},
		{`{"scope":"chunks","limit":2.5}`, 0, true},
		{`{"scope":"chunks","limit":"10"}`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			q, err := ParseQuery(decode(t, tt.in))
			if tt.wantErr {
				var iq *InvalidQueryError
				if !errors.As(err, &iq) {
					t.Fatalf("expected InvalidQueryError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if q.Limit != tt.want {
				t.Errorf("Limit = %d, want %d", q.Limit, tt.want)
			}
		})
	}
}

func TestParseQuery_Summaries(t *testing.T) {
	if _, err := ParseQuery(decode(t, `{"scope":"summaries","filter":{"timeGranularity":"month"}}`)); err != nil {
		t.Errorf("month should be accepted: %v", err)
	}
	if _, err := ParseQuery(decode(t, `{"scope":"summaries","filter":{"timeGranularity":"year"}}`)); err != nil {
		t.Errorf("year should be accepted: %v", err)
	}

	for _, g := range []string{"day", "week"} {
		_, err := ParseQuery(decode(t, `{"scope":"summaries","filter":{"timeGranularity":"`+g+`"}}`))
		var ug *UnsupportedGranularityError
		if !errors.As(err, &ug) {
			t.Errorf("%s: expected UnsupportedGranularityError, got %v", g, err)
		}
	}

	_, err := ParseQuery(decode(t, `{"scope":"summaries"}`))
	var iq *InvalidQueryError
	if !errors.As(err, &iq) {
		t.Errorf("missing granularity: expected InvalidQueryError, got %v", err)
	}
}

func TestParseQuery_Dates(t *testing.T) {
	q, err := ParseQuery(decode(t, `{"scope":"chunks","filter":{"dateFrom":"2025-06-01","dateTo":"2025-06-15"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if !q.Filter.DateFrom.Equal(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("DateFrom = %v", q.Filter.DateFrom)
	}
	if q.Filter.DateTo.Day() != 15 || q.Filter.DateTo.Hour() != 23 {
		t.Errorf("date-only dateTo should cover the whole day, got %v", q.Filter.DateTo)
	}

	if _, err := ParseQuery(decode(t, `{"scope":"chunks","filter":{"dateFrom":"2025-06-01T08:30:00Z"}}`)); err != nil {
		t.Errorf("RFC 3339 should be accepted: %v", err)
	}

	_, err = ParseQuery(decode(t, `{"scope":"chunks","filter":{"dateFrom":"last tuesday"}}`))
	var de *InvalidDateError
	if !errors.As(err, &de) || de.Field != "dateFrom" {
		t.Errorf("expected InvalidDateError for dateFrom, got %v", err)
	}

	_, err = ParseQuery(decode(t, `{"scope":"chunks","filter":{"dateFrom":"2025-07-01","dateTo":"2025-06-01"}}`))
	var iq *InvalidQueryError
	if !errors.As(err, &iq) {
		t.Errorf("reversed range: expected InvalidQueryError, got %v", err)
	}
}

func TestParseQuery_Invalid(t *testing.T) {
	tests := map[string]string{
		"missing scope":        `{}`,
		"unknown scope":        `{"scope":"photos"}`,
		"unknown sort":         `{"scope":"chunks","sort":"random"}`,
		"unknown view":         `{"scope":"analytics","view":"pie"}`,
		"view on chunks":       `{"scope":"chunks","view":"timeline","filter":{"metric":"mood"}}`,
		"stats without metric": `{"scope":"analytics","view":"stats"}`,
		"minSimilarity range":  `{"scope":"chunks","filter":{"minSimilarity":1.5}}`,
		"half-life zero":       `{"scope":"chunks","filter":{"recencyHalfLife":0}}`,
		"filter not object":    `{"scope":"chunks","filter":"recent"}`,
		"topics wrong type":    `{"scope":"chunks","filter":{"topics":"work"}}`,
		"unknown granularity":  `{"scope":"analytics","filter":{"timeGranularity":"decade"}}`,
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseQuery(decode(t, in))
			var iq *InvalidQueryError
			if !errors.As(err, &iq) {
				t.Errorf("expected InvalidQueryError, got %v", err)
			}
		})
	}
}

func TestQuery_Shape(t *testing.T) {
	q, err := ParseQuery(decode(t, `{"scope":"chunks","sort":"date_desc","filter":{"similarTo":"calm mornings"}}`))
	if err != nil {
		t.Fatal(err)
	}
	s := q.Shape()
	if !s.HasSimilarTo || s.HasKeyword || s.Sort != rank.SortDateDesc {
		t.Errorf("unexpected shape: %+v", s)
	}
}
