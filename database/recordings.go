package database

import (
	"encoding/json"
	"fmt"

	"github.com/apex/log"

	"incident-report-service/metrics"
	"incident-report-service/models"
)

// LoadRecordings reads the full recording list with the same degrade-to-empty
// and default-seed reconciliation behavior as LoadReports. Never fails.
func (d *Database) LoadRecordings() []models.StoredRecording {
	raw, err := d.getValue(recordingsKey)
	metrics.ObserveStoreOp("recordings", "load", err)

	var list []models.StoredRecording
	if err != nil {
		log.Warnf("Failed to read recording list, starting empty: %v", err)
	} else if raw != "" {
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			log.Warnf("Discarding unreadable recording list: %v", err)
			list = nil
		}
	}

	reconciled, changed := reconcileRecordings(list)
	if changed {
		if err := d.saveRecordings(reconciled); err != nil {
			log.Warnf("Failed to persist reconciled recording list: %v", err)
		}
	}
	return reconciled
}

// AddRecording prepends the record and persists, newest first.
func (d *Database) AddRecording(rec models.StoredRecording) ([]models.StoredRecording, error) {
	list := d.LoadRecordings()
	list = append([]models.StoredRecording{rec}, list...)
	err := d.saveRecordings(list)
	metrics.ObserveStoreOp("recordings", "add", err)
	if err != nil {
		return nil, err
	}
	return list, nil
}

// UpdateRecording shallow-merges the patch into the matching record; missing
// ids are a no-op.
func (d *Database) UpdateRecording(id string, patch models.StoredRecordingPatch) ([]models.StoredRecording, error) {
	list := d.LoadRecordings()
	for i := range list {
		if list[i].ID != id {
			continue
		}
		if patch.Title != nil {
			list[i].Title = *patch.Title
		}
		if patch.URI != nil {
			list[i].URI = *patch.URI
		}
		if patch.Duration != nil {
			list[i].Duration = *patch.Duration
		}
		if patch.Data != nil {
			data := *patch.Data
			list[i].Data = &data
		}
		err := d.saveRecordings(list)
		metrics.ObserveStoreOp("recordings", "update", err)
		if err != nil {
			return nil, err
		}
		return list, nil
	}
	return list, nil
}

// DeleteRecording removes the matching record unless it is immutable.
func (d *Database) DeleteRecording(id string) ([]models.StoredRecording, error) {
	list := d.LoadRecordings()
	out := make([]models.StoredRecording, 0, len(list))
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
	err := d.saveRecordings(out)
	metrics.ObserveStoreOp("recordings", "delete", err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetRecording finds a single recording by id.
func (d *Database) GetRecording(id string) (models.StoredRecording, bool) {
	for _, r := range d.LoadRecordings() {
		if r.ID == id {
			return r, true
		}
	}
	return models.StoredRecording{}, false
}

func (d *Database) saveRecordings(list []models.StoredRecording) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to serialize recording list: %w", err)
	}
	return d.setValue(recordingsKey, string(raw))
}
