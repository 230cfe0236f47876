package parser

import (
	"encoding/json"
	"sort"
	"strings"

	"incident-report-service/models"
)

// GeneratedReport is the structured result of parsing a one-shot report
// generation response. Known schema fields land in Patch; unrecognized
// string-valued keys are kept apart in ExtraNotes rather than being folded
// into the description.
type GeneratedReport struct {
	Patch      models.ReportDataPatch
	ExtraNotes []string
}

// ParseGeneratedReport extracts and decodes the report object from a raw
// generation response. Returns false when no JSON object can be found or
// decoded; missing fields are filled with type-appropriate empty values, so a
// true return is always safe to merge.
func ParseGeneratedReport(raw string) (GeneratedReport, bool) {
	candidate, found := ExtractJSON(raw)
	if !found {
		return GeneratedReport{ExtraNotes: []string{}}, false
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
		return GeneratedReport{ExtraNotes: []string{}}, false
	}

	out := GeneratedReport{ExtraNotes: []string{}}
	extras := map[string]string{}

	for key, value := range obj {
		switch key {
		case "report_title", "title":
			setString(&out.Patch.ReportTitle, value)
		case "report_type":
			out.Patch.ReportType = toStringList(value)
		case "trades_field", "trade_field":
			out.Patch.TradesField = toStringList(value)
		case "report_desc", "report_description", "description":
			setString(&out.Patch.ReportDesc, value)
		case "location_name", "location":
			setString(&out.Patch.LocationName, value)
		case "location_coords":
			if coords := toFloatList(value); models.ValidCoordinates(coords) {
				out.Patch.LocationCoords = coords
			}
		case "primaries_involved", "parties_involved":
			out.Patch.PrimariesInvolved = toStringList(value)
		case "witnesses":
			out.Patch.Witnesses = toStringList(value)
		case "actions_taken":
			out.Patch.ActionsTaken = toStringList(value)
		case "recommended_actions":
			out.Patch.RecommendedActions = toStringList(value)
		default:
			if s := toString(value); s != "" {
				extras[key] = s
			}
		}
	}

	keys := make([]string, 0, len(extras))
	for k := range extras {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out.ExtraNotes = append(out.ExtraNotes, extras[k])
	}

	return out, true
}

// SalvageDescription is the plain-text fallback for generation responses
// with no JSON at all: the raw text, stripped of list markers and wrapping
// quotes, becomes the report description.
func SalvageDescription(raw string) string {
	s := strings.TrimSpace(raw)
	s = stripWrappingQuotes(s)
	s = listMarkerRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func setString(dst **string, v any) {
	if s := toString(v); s != "" {
		*dst = &s
	}
}

func toFloatList(v any) []float64 {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(items))
	for _, item := range items {
		f, ok := item.(float64)
		if !ok {
			return nil
		}
		out = append(out, f)
	}
	return out
}
