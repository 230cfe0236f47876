package database

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/apex/log"

	"incident-report-service/metrics"
	"incident-report-service/models"
)

// LoadReports reads the full report list. A missing or unreadable entry
// degrades to an empty list, and built-in sample entries are reconciled into
// whatever was read. Never fails.
func (d *Database) LoadReports() []models.StoredReport {
	raw, err := d.getValue(reportsKey)
	metrics.ObserveStoreOp("reports", "load", err)

	var list []models.StoredReport
	if err != nil {
		log.Warnf("Failed to read report list, starting empty: %v", err)
	} else if raw != "" {
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			log.Warnf("Discarding unreadable report list: %v", err)
			list = nil
		}
	}

	reconciled, changed := reconcileReports(list)
	if changed {
		if err := d.saveReports(reconciled); err != nil {
			log.Warnf("Failed to persist reconciled report list: %v", err)
		}
	}
	return reconciled
}

// AddReport prepends the record and persists. Newest-first ordering is a
// contract every list view relies on.
func (d *Database) AddReport(report models.StoredReport) ([]models.StoredReport, error) {
	list := d.LoadReports()
	list = append([]models.StoredReport{report}, list...)
	err := d.saveReports(list)
	metrics.ObserveStoreOp("reports", "add", err)
	if err != nil {
		return nil, err
	}
	return list, nil
}

// UpdateReport shallow-merges the patch into the matching record. A missing
// id is a no-op returning the unchanged list.
func (d *Database) UpdateReport(id string, patch models.StoredReportPatch) ([]models.StoredReport, error) {
	list := d.LoadReports()
	for i := range list {
		if list[i].ID != id {
			continue
		}
		list[i] = applyReportPatch(list[i], patch)
		err := d.saveReports(list)
		metrics.ObserveStoreOp("reports", "update", err)
		if err != nil {
			return nil, err
		}
		return list, nil
	}
	return list, nil
}

// SaveReportData overwrites the embedded canonical record of the matching
// report without cache invalidation. Used to persist lazily computed
// filtered variants.
func (d *Database) SaveReportData(id string, data models.ReportData) ([]models.StoredReport, error) {
	list := d.LoadReports()
	for i := range list {
		if list[i].ID != id {
			continue
		}
		copied := data
		list[i].Data = &copied
		err := d.saveReports(list)
		metrics.ObserveStoreOp("reports", "save_data", err)
		if err != nil {
			return nil, err
		}
		return list, nil
	}
	return list, nil
}

// DeleteReport removes the matching record unless it is immutable, in which
// case the list is returned unchanged.
func (d *Database) DeleteReport(id string) ([]models.StoredReport, error) {
	list := d.LoadReports()
	out := make([]models.StoredReport, 0, len(list))
	removed := false
	for _, r := range list {
		if r.ID == id && !r.Immutable {
			removed = true
			continue
		}
		out = append(out, r)
	}
	if !removed {
		return list, nil
	}
	err := d.saveReports(out)
	metrics.ObserveStoreOp("reports", "delete", err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetReport finds a single report by id.
func (d *Database) GetReport(id string) (models.StoredReport, bool) {
	for _, r := range d.LoadReports() {
		if r.ID == id {
			return r, true
		}
	}
	return models.StoredReport{}, false
}

func (d *Database) saveReports(list []models.StoredReport) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to serialize report list: %w", err)
	}
	return d.setValue(reportsKey, string(raw))
}

// applyReportPatch merges a partial update, keeping the flat fields and the
// embedded canonical record consistent and clearing filtered-variant caches
// whenever their source text changes.
func applyReportPatch(report models.StoredReport, patch models.StoredReportPatch) models.StoredReport {
	if patch.Title != nil {
		report.Title = *patch.Title
		if report.Data != nil {
			data := *report.Data
			data.ReportTitle = *patch.Title
			report.Data = &data
		}
	}
	if patch.Date != nil {
		report.Date = *patch.Date
	}
	if patch.Time != nil {
		report.Time = *patch.Time
	}
	if patch.Tags != nil {
		report.Tags = append([]string{}, patch.Tags...)
		if report.Data != nil {
			data := *report.Data
			data.ReportType = append([]string{}, patch.Tags...)
			report.Data = &data
		}
	}
	if patch.Trades != nil {
		report.Trades = append([]string{}, patch.Trades...)
		if report.Data != nil {
			data := *report.Data
			data.TradesField = append([]string{}, patch.Trades...)
			report.Data = &data
		}
	}
	if patch.Location != nil {
		report.Location = *patch.Location
		if report.Data != nil {
			data := *report.Data
			data.LocationName = *patch.Location
			report.Data = &data
		}
	}
	if patch.Content != nil && *patch.Content != report.Content {
		report.Content = *patch.Content
		if report.Data != nil {
			data := *report.Data
			data.ReportDesc = *patch.Content
			data.ReportDescFiltered = ""
			report.Data = &data
		}
	}
	if patch.Data != nil {
		data := *patch.Data
		if report.Data != nil {
			if data.ReportDesc != report.Data.ReportDesc {
				data.ReportDescFiltered = ""
			}
			if !reflect.DeepEqual(data.RecommendedActions, report.Data.RecommendedActions) {
				data.RecommendedActionsFiltered = []string{}
			}
		}
		report.Data = &data
		flat := models.ReportDataToStoredReport(data)
		report.Title = flat.Title
		report.Date = flat.Date
		report.Time = flat.Time
		report.Tags = flat.Tags
		report.Trades = flat.Trades
		report.Content = flat.Content
		report.Location = flat.Location
	}
	return report
}
