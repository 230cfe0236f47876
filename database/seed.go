package database

import (
	"reflect"

	"incident-report-service/models"
)

// Built-in sample entries shown to first-time users. They are immutable:
// deletes are refused and reconciliation keeps their definition fields in
// sync with the code, while user-toggled visibility and filtered caches are
// left alone.

func defaultReports() []models.StoredReport {
	sampleData := models.MergeReportData(models.ReportDataPatch{}, models.ReportData{
		ReportID:          "sample-report-1",
		ReportMethod:      models.MethodManualForm,
		Month:             "January",
		Day:               15,
		Year:              2024,
		Time:              930,
		LocationName:      "Riverside Tower Site",
		LocationCoords:    []float64{49.2827, -123.1207},
		ReportType:        []string{"Unsafe Conditions"},
		TradesField:       []string{"Scaffolding"},
		ReportTitle:       "Sample: Missing Guardrail on Level 3",
		ReportDesc:        "A section of guardrail was removed on the third level scaffold and not replaced. Workers were observed within two metres of the open edge.",
		PrimariesInvolved: []string{"Site supervisor"},
		ActionsTaken:      []string{"Area cordoned off"},
		RecommendedActions: []string{
			"Reinstall guardrail before next shift",
			"Toolbox talk on edge protection",
		},
	})

	return []models.StoredReport{
		{
			ID:        "sample-report-1",
			Title:     sampleData.ReportTitle,
			Date:      models.FormatReportDate(sampleData.Month, sampleData.Day, sampleData.Year),
			Time:      models.FormatClockTime(sampleData.Time),
			Tags:      append([]string{}, sampleData.ReportType...),
			Trades:    append([]string{}, sampleData.TradesField...),
			Content:   sampleData.ReportDesc,
			Location:  sampleData.LocationName,
			Immutable: true,
			Data:      &sampleData,
		},
	}
}

func defaultRecordings() []models.StoredRecording {
	return []models.StoredRecording{
		{
			ID:        "sample-recording-1",
			Title:     "Sample: Morning Walkthrough",
			URI:       "",
			Duration:  0,
			CreatedAt: "January 15, 2024",
			Immutable: true,
		},
	}
}

// reconcileReports inserts any missing default entry and refreshes drifted
// definition fields of existing ones, matched by stable id. User-authored
// entries and user-owned fields on defaults (visibility, filtered caches) are
// untouched. Idempotent; never duplicates.
func reconcileReports(list []models.StoredReport) ([]models.StoredReport, bool) {
	changed := false
	byID := map[string]int{}
	for i, r := range list {
		byID[r.ID] = i
	}

	for _, def := range defaultReports() {
		idx, ok := byID[def.ID]
		if !ok {
			list = append(list, def)
			changed = true
			continue
		}

		existing := list[idx]
		refreshed := def
		if existing.Data != nil && refreshed.Data != nil {
			data := *refreshed.Data
			data.IsPublic = existing.Data.IsPublic
			data.ReportDescFiltered = existing.Data.ReportDescFiltered
			data.RecommendedActionsFiltered = existing.Data.RecommendedActionsFiltered
			refreshed.Data = &data
		}
		if !reflect.DeepEqual(existing, refreshed) {
			list[idx] = refreshed
			changed = true
		}
	}

	return list, changed
}

// reconcileRecordings is the recording-store counterpart of
// reconcileReports.
func reconcileRecordings(list []models.StoredRecording) ([]models.StoredRecording, bool) {
	changed := false
	byID := map[string]int{}
	for i, r := range list {
		byID[r.ID] = i
	}

	for _, def := range defaultRecordings() {
		idx, ok := byID[def.ID]
		if !ok {
			list = append(list, def)
			changed = true
			continue
		}

		existing := list[idx]
		refreshed := def
		if existing.Data != nil {
			refreshed.Data = existing.Data
		}
		if !reflect.DeepEqual(existing, refreshed) {
			list[idx] = refreshed
			changed = true
		}
	}

	return list, changed
}
