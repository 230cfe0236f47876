package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"incident-report-service/database"
	"incident-report-service/models"
	"incident-report-service/service"
)

// Handlers represents the HTTP handlers.
type Handlers struct {
	svc *service.Service
	db  *database.Database
}

// NewHandlers creates new HTTP handlers.
func NewHandlers(svc *service.Service, db *database.Database) *Handlers {
	return &Handlers{svc: svc, db: db}
}

// HealthCheck handles health check requests.
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "incident-report-service",
	})
}

// StartChatSession opens a new slot-filling chat session.
func (h *Handlers) StartChatSession(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.StartChat())
}

type chatMessageRequest struct {
	Message string `json:"message" binding:"required"`
}

// ChatMessage processes one user turn of a chat session.
func (h *Handlers) ChatMessage(c *gin.Context) {
	var req chatMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	reply, err := h.svc.ProcessChatTurn(c.Request.Context(), c.Param("id"), req.Message)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		log.Errorf("Chat turn failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "chat backend unavailable"})
		return
	}
	c.JSON(http.StatusOK, reply)
}

// SaveChatReport persists the current session state as a report and closes
// the session.
func (h *Handlers) SaveChatReport(c *gin.Context) {
	report, err := h.svc.SaveChatReport(c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		log.Errorf("Failed to save chat report: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save report"})
		return
	}
	c.JSON(http.StatusOK, report)
}

type generateReportRequest struct {
	Transcript      string    `json:"transcript" binding:"required"`
	RecordedAt      time.Time `json:"recorded_at"`
	AudioURI        string    `json:"audio_uri"`
	AudioDurationMs int       `json:"audio_duration_ms"`
	LocationName    string    `json:"location_name"`
	LocationCoords  []float64 `json:"location_coords"`
}

// GenerateReport runs the one-shot generation backend over a transcript.
func (h *Handlers) GenerateReport(c *gin.Context) {
	var req generateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "transcript is required"})
		return
	}

	report, extraNotes, err := h.svc.GenerateFromTranscript(c.Request.Context(), service.GenerateRequest{
		Transcript:      req.Transcript,
		RecordedAt:      req.RecordedAt,
		AudioURI:        req.AudioURI,
		AudioDurationMs: req.AudioDurationMs,
		LocationName:    req.LocationName,
		LocationCoords:  req.LocationCoords,
	})
	if err != nil {
		log.Errorf("Report generation failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "report generation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"report":      report,
		"extra_notes": extraNotes,
	})
}

// Transcribe forwards an uploaded audio file to the transcription backend.
func (h *Handlers) Transcribe(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "audio file is required"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read audio file"})
		return
	}
	defer file.Close()

	text, err := h.svc.Transcribe(c.Request.Context(), fileHeader.Filename, file)
	if err != nil {
		log.Errorf("Transcription failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "transcription failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": text})
}

// ListReports returns all stored reports, newest first.
func (h *Handlers) ListReports(c *gin.Context) {
	c.JSON(http.StatusOK, h.db.LoadReports())
}

// GetReport returns one report by id.
func (h *Handlers) GetReport(c *gin.Context) {
	report, ok := h.db.GetReport(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// UpdateReport applies a partial update to a report.
func (h *Handlers) UpdateReport(c *gin.Context) {
	var patch models.StoredReportPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read patch"})
		return
	}

	list, err := h.db.UpdateReport(c.Param("id"), patch)
	if err != nil {
		log.Errorf("Failed to update report: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update report"})
		return
	}
	c.JSON(http.StatusOK, list)
}

// DeleteReport removes a report. Immutable sample records are silently kept.
func (h *Handlers) DeleteReport(c *gin.Context) {
	list, err := h.db.DeleteReport(c.Param("id"))
	if err != nil {
		log.Errorf("Failed to delete report: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete report"})
		return
	}
	c.JSON(http.StatusOK, list)
}

type visibilityRequest struct {
	IsPublic *bool `json:"is_public" binding:"required"`
}

// SetReportVisibility toggles a report's public flag.
func (h *Handlers) SetReportVisibility(c *gin.Context) {
	var req visibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsPublic == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "is_public is required"})
		return
	}

	rd, err := h.svc.SetReportVisibility(c.Param("id"), *req.IsPublic)
	if err != nil {
		if errors.Is(err, service.ErrReportNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
			return
		}
		log.Errorf("Failed to update visibility: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update visibility"})
		return
	}
	c.JSON(http.StatusOK, rd)
}

// publicReportView is the redacted shape served to anonymous readers. Parties
// and witnesses are never included.
type publicReportView struct {
	ReportID           string   `json:"report_id"`
	Title              string   `json:"title"`
	Date               string   `json:"date"`
	Time               string   `json:"time"`
	LocationName       string   `json:"location_name"`
	ReportType         []string `json:"report_type"`
	TradesField        []string `json:"trades_field"`
	Description        string   `json:"description"`
	RecommendedActions []string `json:"recommended_actions"`
}

// PublicReport serves the privacy-filtered view of a public report.
func (h *Handlers) PublicReport(c *gin.Context) {
	rd, err := h.svc.PublicView(c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrReportNotFound) || errors.Is(err, service.ErrReportNotPublic) {
			c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
			return
		}
		log.Errorf("Failed to render public report: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load report"})
		return
	}

	c.JSON(http.StatusOK, publicReportView{
		ReportID:           rd.ReportID,
		Title:              rd.ReportTitle,
		Date:               models.FormatReportDate(rd.Month, rd.Day, rd.Year),
		Time:               models.FormatClockTime(rd.Time),
		LocationName:       rd.LocationName,
		ReportType:         rd.ReportType,
		TradesField:        rd.TradesField,
		Description:        rd.ReportDescFiltered,
		RecommendedActions: rd.RecommendedActionsFiltered,
	})
}

// ListRecordings returns all stored recordings, newest first.
func (h *Handlers) ListRecordings(c *gin.Context) {
	c.JSON(http.StatusOK, h.db.LoadRecordings())
}

type createRecordingRequest struct {
	Title      string `json:"title"`
	URI        string `json:"uri" binding:"required"`
	DurationMs int    `json:"duration_ms"`
}

// CreateRecording stores a recording entry after recording stops.
func (h *Handlers) CreateRecording(c *gin.Context) {
	var req createRecordingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uri is required"})
		return
	}

	now := time.Now()
	title := req.Title
	if title == "" {
		title = "Recording " + now.Format("Jan 2, 3:04 PM")
	}
	rec := models.StoredRecording{
		ID:        strconv.FormatInt(now.UnixMilli(), 10),
		Title:     title,
		URI:       req.URI,
		Duration:  req.DurationMs,
		CreatedAt: models.FormatReportDate(now.Month().String(), now.Day(), now.Year()),
	}

	list, err := h.db.AddRecording(rec)
	if err != nil {
		log.Errorf("Failed to add recording: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save recording"})
		return
	}
	c.JSON(http.StatusOK, list)
}

// UpdateRecording applies a partial update to a recording.
func (h *Handlers) UpdateRecording(c *gin.Context) {
	var patch models.StoredRecordingPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read patch"})
		return
	}

	list, err := h.db.UpdateRecording(c.Param("id"), patch)
	if err != nil {
		log.Errorf("Failed to update recording: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update recording"})
		return
	}
	c.JSON(http.StatusOK, list)
}

// DeleteRecording removes a recording unless it is immutable.
func (h *Handlers) DeleteRecording(c *gin.Context) {
	list, err := h.db.DeleteRecording(c.Param("id"))
	if err != nil {
		log.Errorf("Failed to delete recording: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete recording"})
		return
	}
	c.JSON(http.StatusOK, list)
}

// UnlockLogs issues a one-shot token for the private log view.
func (h *Handlers) UnlockLogs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"unlock_token": h.svc.Unlocks.Issue()})
}

// MyLogs serves the unfiltered report list. It requires a one-shot unlock
// token, consumed on use.
func (h *Handlers) MyLogs(c *gin.Context) {
	token := c.Query("unlock_token")
	if token == "" || !h.svc.Unlocks.Consume(token) {
		c.JSON(http.StatusForbidden, gin.H{"error": "valid unlock token required"})
		return
	}
	c.JSON(http.StatusOK, h.db.LoadReports())
}
