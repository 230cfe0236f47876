package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatReportDate renders month/day/year fields as a display date.
func FormatReportDate(month string, day, year int) string {
	if month == "" || day == 0 || year == 0 {
		return ""
	}
	return fmt.Sprintf("%s %d, %d", month, day, year)
}

// FormatClockTime renders an HHMM integer as a 12-hour clock string.
func FormatClockTime(hhmm int) string {
	hour := hhmm / 100
	minute := hhmm % 100
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return ""
	}
	t := time.Date(2000, time.January, 1, hour, minute, 0, 0, time.UTC)
	return t.Format("3:04 PM")
}

// parseReportDate is the inverse of FormatReportDate. Returns empty values on
// anything it cannot understand; legacy records may carry free-form dates.
func parseReportDate(s string) (month string, day, year int) {
	t, err := time.Parse("January 2, 2006", strings.TrimSpace(s))
	if err != nil {
		return "", 0, 0
	}
	return t.Month().String(), t.Day(), t.Year()
}

// parseClockTime is the inverse of FormatClockTime.
func parseClockTime(s string) int {
	t, err := time.Parse("3:04 PM", strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return t.Hour()*100 + t.Minute()
}

// ReportDataToStoredReport flattens a canonical record into the persistence
// shape. The embedded Data keeps the full record, so nothing is lost on this
// direction.
func ReportDataToStoredReport(rd ReportData) StoredReport {
	data := rd
	return StoredReport{
		ID:       rd.ReportID,
		Title:    rd.ReportTitle,
		Date:     FormatReportDate(rd.Month, rd.Day, rd.Year),
		Time:     FormatClockTime(rd.Time),
		Tags:     append([]string{}, rd.ReportType...),
		Trades:   append([]string{}, rd.TradesField...),
		Content:  rd.ReportDesc,
		Location: rd.LocationName,
		Data:     &data,
	}
}

// ReportToReportData reconstitutes a canonical record from a stored one.
// Records with an embedded ReportData use it directly (normalized so list
// fields are never nil); legacy flat records are lifted field by field. The
// flat shape does not carry filtered-variant caches, so those come back empty
// for legacy records.
func ReportToReportData(sr StoredReport) ReportData {
	if sr.Data != nil {
		return MergeReportData(ReportDataPatch{}, *sr.Data)
	}

	month, day, year := parseReportDate(sr.Date)
	rd := EmptyReportData()
	rd.ReportID = sr.ID
	rd.ReportTitle = sr.Title
	rd.Month = month
	rd.Day = day
	rd.Year = year
	rd.Time = parseClockTime(sr.Time)
	rd.ReportType = stringsOr(sr.Tags, nil)
	rd.TradesField = stringsOr(sr.Trades, nil)
	rd.ReportDesc = sr.Content
	rd.LocationName = sr.Location
	return rd
}

// RecordingToReportData reconstitutes a canonical record from a stored
// recording, falling back to the recording metadata when no embedded record
// exists.
func RecordingToReportData(rec StoredRecording) ReportData {
	if rec.Data != nil {
		return MergeReportData(ReportDataPatch{}, *rec.Data)
	}

	rd := EmptyReportData()
	rd.ReportID = rec.ID
	rd.ReportTitle = rec.Title
	rd.ReportMethod = MethodVoiceRecording
	rd.AudioURI = rec.URI
	rd.AudioDuration = rec.Duration
	if ts, err := strconv.ParseInt(rec.ID, 10, 64); err == nil && ts > 0 {
		t := time.UnixMilli(ts)
		rd.Month = t.Month().String()
		rd.Day = t.Day()
		rd.Year = t.Year()
		rd.Time = t.Hour()*100 + t.Minute()
	}
	return rd
}
