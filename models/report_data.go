package models

import (
	"math"
	"strconv"
	"time"

	"github.com/golang/geo/s2"
)

// Report capture methods.
const (
	MethodAIChat         = "ai_chat"
	MethodManualForm     = "manual_form"
	MethodVoiceRecording = "voice_recording"
)

// ReportData is the canonical structured incident record. Every list-valued
// field is always a non-nil slice so consumers never branch on nil.
type ReportData struct {
	ReportID     string `json:"report_id"`
	ReportMethod string `json:"report_method"`
	IsPublic     bool   `json:"isPublic"`

	Month string `json:"month"`
	Day   int    `json:"day"`
	Year  int    `json:"year"`
	// Time is an HHMM integer encoding, e.g. 930 = 9:30, 1405 = 14:05.
	Time int `json:"time"`

	AudioURI      string `json:"audio_URI"`
	AudioDuration int    `json:"audio_duration"` // milliseconds

	LocationName string `json:"location_name"`
	// LocationCoords is [latitude, longitude]; [0, 0] means unknown.
	LocationCoords []float64 `json:"location_coords"`

	ReportType  []string `json:"report_type"`
	TradesField []string `json:"trades_field"`

	ReportDesc       string `json:"report_desc"`
	ReportTranscript string `json:"report_transcript"`
	ReportTitle      string `json:"report_title"`

	PrimariesInvolved []string `json:"primaries_involved"`
	Witnesses         []string `json:"witnesses"`

	ActionsTaken       []string `json:"actions_taken"`
	RecommendedActions []string `json:"recommended_actions"`

	// Cached privacy-filtered variants, computed lazily on first public
	// render and persisted. They are a cache, not source of truth: stores
	// clear them whenever the underlying unfiltered field changes.
	ReportDescFiltered         string   `json:"report_desc_filtered"`
	RecommendedActionsFiltered []string `json:"recommended_actions_filtered"`
}

// ReportDataPatch is a partial ReportData update. Nil pointer scalars and
// empty slices mean "absent"; MergeReportData falls back to the base value.
type ReportDataPatch struct {
	ReportID     *string
	ReportMethod *string
	IsPublic     *bool

	Month *string
	Day   *int
	Year  *int
	Time  *int

	AudioURI      *string
	AudioDuration *int

	LocationName   *string
	LocationCoords []float64

	ReportType  []string
	TradesField []string

	ReportDesc       *string
	ReportTranscript *string
	ReportTitle      *string

	PrimariesInvolved []string
	Witnesses         []string

	ActionsTaken       []string
	RecommendedActions []string

	ReportDescFiltered         *string
	RecommendedActionsFiltered []string
}

// EmptyReportData returns a zero-value record with every list field
// initialized to an empty slice.
func EmptyReportData() ReportData {
	return ReportData{
		LocationCoords:             []float64{0, 0},
		ReportType:                 []string{},
		TradesField:                []string{},
		PrimariesInvolved:          []string{},
		Witnesses:                  []string{},
		ActionsTaken:               []string{},
		RecommendedActions:         []string{},
		RecommendedActionsFiltered: []string{},
	}
}

// ReportDataFromDate derives the identity and temporal fields of a report
// from a timestamp, using local calendar fields. The report id is the epoch
// millisecond value, which is stable and sortable.
func ReportDataFromDate(t time.Time, audioURI string) ReportDataPatch {
	month := t.Month().String()
	day := t.Day()
	year := t.Year()
	clock := t.Hour()*100 + t.Minute()
	id := strconv.FormatInt(t.UnixMilli(), 10)

	patch := ReportDataPatch{
		ReportID: &id,
		Month:    &month,
		Day:      &day,
		Year:     &year,
		Time:     &clock,
	}
	if audioURI != "" {
		patch.AudioURI = &audioURI
	}
	return patch
}

// MergeReportData combines a partial update with a base record. Scalar fields
// are right-biased: the patch wins whenever it is set. List fields win only
// when non-empty, otherwise the base list is kept, so list fields never come
// out nil. The merge is idempotent.
func MergeReportData(patch ReportDataPatch, base ReportData) ReportData {
	out := base

	out.ReportID = stringOr(patch.ReportID, base.ReportID)
	out.ReportMethod = stringOr(patch.ReportMethod, base.ReportMethod)
	if patch.IsPublic != nil {
		out.IsPublic = *patch.IsPublic
	}

	out.Month = stringOr(patch.Month, base.Month)
	out.Day = intOr(patch.Day, base.Day)
	out.Year = intOr(patch.Year, base.Year)
	out.Time = intOr(patch.Time, base.Time)

	out.AudioURI = stringOr(patch.AudioURI, base.AudioURI)
	out.AudioDuration = intOr(patch.AudioDuration, base.AudioDuration)

	out.LocationName = stringOr(patch.LocationName, base.LocationName)
	out.LocationCoords = floatsOr(patch.LocationCoords, base.LocationCoords)
	if len(out.LocationCoords) == 0 {
		out.LocationCoords = []float64{0, 0}
	}

	out.ReportType = stringsOr(patch.ReportType, base.ReportType)
	out.TradesField = stringsOr(patch.TradesField, base.TradesField)

	out.ReportDesc = stringOr(patch.ReportDesc, base.ReportDesc)
	out.ReportTranscript = stringOr(patch.ReportTranscript, base.ReportTranscript)
	out.ReportTitle = stringOr(patch.ReportTitle, base.ReportTitle)

	out.PrimariesInvolved = stringsOr(patch.PrimariesInvolved, base.PrimariesInvolved)
	out.Witnesses = stringsOr(patch.Witnesses, base.Witnesses)

	out.ActionsTaken = stringsOr(patch.ActionsTaken, base.ActionsTaken)
	out.RecommendedActions = stringsOr(patch.RecommendedActions, base.RecommendedActions)

	out.ReportDescFiltered = stringOr(patch.ReportDescFiltered, base.ReportDescFiltered)
	out.RecommendedActionsFiltered = stringsOr(patch.RecommendedActionsFiltered, base.RecommendedActionsFiltered)

	return out
}

// ValidCoordinates reports whether a [lat, lng] pair is a usable location.
// The [0, 0] sentinel, non-finite components and out-of-range values are all
// rejected.
func ValidCoordinates(coords []float64) bool {
	if len(coords) != 2 {
		return false
	}
	lat, lng := coords[0], coords[1]
	if lat == 0 || lng == 0 {
		return false
	}
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lng) || math.IsInf(lng, 0) {
		return false
	}
	return s2.LatLngFromDegrees(lat, lng).IsValid()
}

func stringOr(p *string, base string) string {
	if p != nil {
		return *p
	}
	return base
}

func intOr(p *int, base int) int {
	if p != nil {
		return *p
	}
	return base
}

func stringsOr(p, base []string) []string {
	if len(p) > 0 {
		return append([]string{}, p...)
	}
	if base == nil {
		return []string{}
	}
	return base
}

func floatsOr(p, base []float64) []float64 {
	if len(p) > 0 {
		return append([]float64{}, p...)
	}
	return base
}
