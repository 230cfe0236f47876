package models

// StoredReport is the flat persistence record for an incident report. Newer
// records embed the full canonical ReportData; legacy records carry only the
// scalar fields, and are reconstituted via ReportToReportData.
type StoredReport struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Date      string   `json:"date"` // e.g. "March 5, 2024"
	Time      string   `json:"time"` // e.g. "9:30 AM"
	Tags      []string `json:"tags"`
	Trades    []string `json:"trades"`
	Content   string   `json:"content"`
	Location  string   `json:"location"`
	Immutable bool     `json:"immutable,omitempty"`

	Data *ReportData `json:"data,omitempty"`
}

// StoredReportPatch is a partial update applied to a StoredReport. Nil fields
// are left untouched.
type StoredReportPatch struct {
	Title    *string     `json:"title,omitempty"`
	Date     *string     `json:"date,omitempty"`
	Time     *string     `json:"time,omitempty"`
	Tags     []string    `json:"tags,omitempty"`
	Trades   []string    `json:"trades,omitempty"`
	Content  *string     `json:"content,omitempty"`
	Location *string     `json:"location,omitempty"`
	Data     *ReportData `json:"data,omitempty"`
}

// StoredRecording is the flat persistence record for an audio recording.
type StoredRecording struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	URI       string `json:"uri"`
	Duration  int    `json:"duration"` // milliseconds
	CreatedAt string `json:"created_at"`
	Immutable bool   `json:"immutable,omitempty"`

	Data *ReportData `json:"data,omitempty"`
}

// StoredRecordingPatch is a partial update applied to a StoredRecording.
type StoredRecordingPatch struct {
	Title    *string     `json:"title,omitempty"`
	URI      *string     `json:"uri,omitempty"`
	Duration *int        `json:"duration,omitempty"`
	Data     *ReportData `json:"data,omitempty"`
}

// SavedReportEvent is published to the message broker when a report is saved.
type SavedReportEvent struct {
	ReportID     string `json:"report_id"`
	ReportMethod string `json:"report_method"`
	Title        string `json:"title"`
	IsPublic     bool   `json:"is_public"`
	SavedAt      string `json:"saved_at"`
}
