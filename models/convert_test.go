package models

import (
	"reflect"
	"testing"
)

func TestFormatReportDate(t *testing.T) {
	if got := FormatReportDate("November", 14, 2023); got != "November 14, 2023" {
		t.Errorf("FormatReportDate() = %q", got)
	}
	if got := FormatReportDate("", 14, 2023); got != "" {
		t.Errorf("partial date rendered as %q", got)
	}
}

func TestFormatClockTime(t *testing.T) {
	tests := []struct {
		hhmm     int
		expected string
	}{
		{930, "9:30 AM"},
		{1405, "2:05 PM"},
		{0, "12:00 AM"},
		{1200, "12:00 PM"},
		{2461, ""},
		{-5, ""},
	}
	for _, tt := range tests {
		if got := FormatClockTime(tt.hhmm); got != tt.expected {
			t.Errorf("FormatClockTime(%d) = %q, want %q", tt.hhmm, got, tt.expected)
		}
	}
}

func TestStoredReportRoundTrip(t *testing.T) {
	rd := sampleReportData()
	rd.ReportDescFiltered = "A bundle of shingles slid off the hoist near Individual A."

	sr := ReportDataToStoredReport(rd)
	if sr.ID != rd.ReportID || sr.Title != rd.ReportTitle {
		t.Errorf("flat identity fields: %q %q", sr.ID, sr.Title)
	}
	if sr.Date != "November 14, 2023" || sr.Time != "2:05 PM" {
		t.Errorf("flat date fields: %q %q", sr.Date, sr.Time)
	}

	back := ReportToReportData(sr)
	if !reflect.DeepEqual(back, rd) {
		t.Errorf("round trip lost data:\n got %+v\nwant %+v", back, rd)
	}
}

func TestReportToReportDataLegacyFlat(t *testing.T) {
	sr := StoredReport{
		ID:       "legacy-3",
		Title:    "Blocked fire exit",
		Date:     "June 2, 2022",
		Time:     "4:45 PM",
		Tags:     []string{"Safety Violation"},
		Trades:   []string{"Warehousing"},
		Content:  "Pallets were stacked against the east fire exit overnight.",
		Location: "East wing",
	}

	rd := ReportToReportData(sr)
	if rd.ReportID != "legacy-3" || rd.ReportTitle != "Blocked fire exit" {
		t.Errorf("identity: %q %q", rd.ReportID, rd.ReportTitle)
	}
	if rd.Month != "June" || rd.Day != 2 || rd.Year != 2022 {
		t.Errorf("date: %s %d %d", rd.Month, rd.Day, rd.Year)
	}
	if rd.Time != 1645 {
		t.Errorf("time = %d", rd.Time)
	}
	if !reflect.DeepEqual(rd.ReportType, []string{"Safety Violation"}) {
		t.Errorf("tags: %v", rd.ReportType)
	}
	if rd.PrimariesInvolved == nil || rd.Witnesses == nil {
		t.Error("legacy lift left nil lists")
	}
	// The flat shape has no filtered-variant caches.
	if rd.ReportDescFiltered != "" {
		t.Errorf("filtered cache invented: %q", rd.ReportDescFiltered)
	}
}

func TestRecordingToReportData(t *testing.T) {
	rec := StoredRecording{
		ID:       "1700000000000",
		Title:    "Recording Nov 14, 2:05 PM",
		URI:      "file:///audio/rec-3.m4a",
		Duration: 42000,
	}

	rd := RecordingToReportData(rec)
	if rd.ReportMethod != MethodVoiceRecording {
		t.Errorf("method = %q", rd.ReportMethod)
	}
	if rd.AudioURI != rec.URI || rd.AudioDuration != rec.Duration {
		t.Errorf("audio fields: %q %d", rd.AudioURI, rd.AudioDuration)
	}
	if rd.Year == 0 || rd.Month == "" {
		t.Error("timestamp id was not lifted into date fields")
	}
}
