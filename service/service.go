package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/apex/log"

	"incident-report-service/config"
	"incident-report-service/database"
	"incident-report-service/llm"
	"incident-report-service/metrics"
	"incident-report-service/models"
	"incident-report-service/parser"
	"incident-report-service/privacy"
	"incident-report-service/rabbitmq"
)

var (
	ErrSessionNotFound = errors.New("chat session not found or expired")
	ErrReportNotFound  = errors.New("report not found")
	ErrReportNotPublic = errors.New("report is not public")
)

// Service wires the LLM backends, the store and the transient chat state
// into the report capture flows.
type Service struct {
	cfg         *config.Config
	db          *database.Database
	chat        llm.ChatClient
	generator   llm.Generator
	transcriber llm.Transcriber
	publisher   *rabbitmq.Publisher

	Sessions *SessionStore
	Unlocks  *UnlockTokens
}

// NewService creates the report service. The event publisher is optional:
// when the broker is not configured or unreachable the service runs without
// it.
func NewService(cfg *config.Config, db *database.Database, chat llm.ChatClient, generator llm.Generator, transcriber llm.Transcriber) *Service {
	var publisher *rabbitmq.Publisher
	if cfg.AMQPURL != "" {
		p, err := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPReportsRoutingKey)
		if err != nil {
			log.Warnf("Failed to initialize RabbitMQ publisher, continuing without it: %v", err)
		} else {
			publisher = p
		}
	}

	return &Service{
		cfg:         cfg,
		db:          db,
		chat:        chat,
		generator:   generator,
		transcriber: transcriber,
		publisher:   publisher,
		Sessions:    NewSessionStore(cfg.SessionTTL),
		Unlocks:     NewUnlockTokens(5 * time.Minute),
	}
}

// Close releases the publisher connection if one exists.
func (s *Service) Close() {
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			log.Warnf("Failed to close publisher: %v", err)
		}
	}
}

// ChatTurnReply is what one conversation turn yields to the caller.
type ChatTurnReply struct {
	SessionID    string            `json:"session_id"`
	Fields       parser.TurnFields `json:"fields"`
	NextQuestion string            `json:"next_question"`
	Completed    bool              `json:"completed"`
}

// StartChat opens a new slot-filling session and returns the opening
// question.
func (s *Service) StartChat() ChatTurnReply {
	session := s.Sessions.Create(chatSystemPrompt)
	return ChatTurnReply{
		SessionID:    session.ID,
		Fields:       session.Fields,
		NextQuestion: parser.QuestionDescribe,
	}
}

// ProcessChatTurn sends the user message to the chat backend and re-derives
// the slot state from the assistant's reply. The latest turn's payload
// replaces the session state; a turn with no decodable payload leaves the
// state as it was and only salvages a next question.
func (s *Service) ProcessChatTurn(ctx context.Context, sessionID, userMsg string) (ChatTurnReply, error) {
	session, ok := s.Sessions.Get(sessionID)
	if !ok {
		return ChatTurnReply{}, ErrSessionNotFound
	}

	session.Messages = append(session.Messages, llm.Message{Role: "user", Content: userMsg})

	raw, err := s.chat.Chat(ctx, session.Messages)
	if err != nil {
		return ChatTurnReply{}, fmt.Errorf("chat backend failed: %w", err)
	}
	session.Messages = append(session.Messages, llm.Message{Role: "assistant", Content: raw})

	turn := parser.ParseTurn(raw, userMsg)
	if turn.HasPayload {
		session.Fields = turn.Fields
	} else {
		metrics.ParseFallbackTotal.WithLabelValues("chat_no_json").Inc()
	}
	session.Completed = session.Completed || turn.Completed
	session.UpdatedAt = time.Now()

	return ChatTurnReply{
		SessionID:    session.ID,
		Fields:       session.Fields,
		NextQuestion: turn.NextQuestion,
		Completed:    session.Completed,
	}, nil
}

// SaveChatReport turns the current session state into a stored report and
// ends the session.
func (s *Service) SaveChatReport(sessionID string) (models.StoredReport, error) {
	session, ok := s.Sessions.Get(sessionID)
	if !ok {
		return models.StoredReport{}, ErrSessionNotFound
	}

	transcript := chatTranscript(session.Messages)
	method := models.MethodAIChat

	patch := models.ReportDataPatch{
		ReportMethod:      &method,
		ReportTranscript:  &transcript,
		ReportType:        session.Fields.ReportType,
		TradesField:       session.Fields.TradesField,
		PrimariesInvolved: session.Fields.PartiesInvolved,
		Witnesses:         session.Fields.Witnesses,
	}
	if title := strings.TrimSpace(session.Fields.ReportTitle); title != "" {
		patch.ReportTitle = &title
	}
	if desc := strings.TrimSpace(session.Fields.ReportDescription); desc != "" {
		patch.ReportDesc = &desc
	}

	base := models.MergeReportData(models.ReportDataFromDate(time.Now(), ""), models.EmptyReportData())
	rd := models.MergeReportData(patch, base)

	stored := models.ReportDataToStoredReport(rd)
	if _, err := s.db.AddReport(stored); err != nil {
		return models.StoredReport{}, fmt.Errorf("failed to save chat report: %w", err)
	}

	s.publishSaved(rd)
	s.Sessions.Delete(sessionID)
	return stored, nil
}

// GenerateRequest carries the transcript and the capture context a generated
// report is merged with.
type GenerateRequest struct {
	Transcript      string
	RecordedAt      time.Time
	AudioURI        string
	AudioDurationMs int
	LocationName    string
	LocationCoords  []float64
}

// GenerateFromTranscript runs the one-shot generation backend over a
// transcript, parses the answer defensively and persists the merged report.
// The returned notes are the values of unknown keys the model emitted; they
// are surfaced to the caller, not silently folded into the record.
func (s *Service) GenerateFromTranscript(ctx context.Context, req GenerateRequest) (models.StoredReport, []string, error) {
	if strings.TrimSpace(req.Transcript) == "" {
		return models.StoredReport{}, nil, errors.New("transcript is empty")
	}

	raw, err := s.generator.Generate(ctx, buildGenerationPrompt(req.Transcript))
	if err != nil {
		return models.StoredReport{}, nil, fmt.Errorf("generation backend failed: %w", err)
	}

	gen, ok := parser.ParseGeneratedReport(raw)
	if !ok {
		metrics.ParseFallbackTotal.WithLabelValues("generation_salvage").Inc()
		if desc := parser.SalvageDescription(raw); desc != "" {
			gen.Patch.ReportDesc = &desc
		}
	}

	recordedAt := req.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}
	base := models.MergeReportData(models.ReportDataFromDate(recordedAt, req.AudioURI), models.EmptyReportData())

	method := models.MethodManualForm
	if req.AudioURI != "" {
		method = models.MethodVoiceRecording
	}
	ctxPatch := models.ReportDataPatch{
		ReportMethod:     &method,
		ReportTranscript: &req.Transcript,
	}
	if req.AudioDurationMs > 0 {
		ctxPatch.AudioDuration = &req.AudioDurationMs
	}
	if req.LocationName != "" {
		ctxPatch.LocationName = &req.LocationName
	}
	if models.ValidCoordinates(req.LocationCoords) {
		ctxPatch.LocationCoords = req.LocationCoords
	}

	rd := models.MergeReportData(gen.Patch, models.MergeReportData(ctxPatch, base))

	stored := models.ReportDataToStoredReport(rd)
	if _, err := s.db.AddReport(stored); err != nil {
		return models.StoredReport{}, nil, fmt.Errorf("failed to save generated report: %w", err)
	}

	s.publishSaved(rd)
	return stored, gen.ExtraNotes, nil
}

// Transcribe forwards audio to the transcription backend.
func (s *Service) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	if s.transcriber == nil {
		return "", errors.New("transcription backend is not configured")
	}
	return s.transcriber.Transcribe(ctx, filename, audio)
}

// PublicView returns the canonical record of a public report with its
// privacy-filtered variants populated. Variants are computed lazily on the
// first public render and persisted; afterwards they are served as a cache.
func (s *Service) PublicView(id string) (models.ReportData, error) {
	report, ok := s.db.GetReport(id)
	if !ok {
		return models.ReportData{}, ErrReportNotFound
	}

	rd := models.ReportToReportData(report)
	if !rd.IsPublic {
		return models.ReportData{}, ErrReportNotPublic
	}

	changed := false
	if rd.ReportDescFiltered == "" && rd.ReportDesc != "" {
		rd.ReportDescFiltered = s.filterText(rd, rd.ReportDesc)
		changed = true
	}
	if len(rd.RecommendedActionsFiltered) == 0 && len(rd.RecommendedActions) > 0 {
		filtered := make([]string, 0, len(rd.RecommendedActions))
		for _, action := range rd.RecommendedActions {
			filtered = append(filtered, s.filterText(rd, action))
		}
		rd.RecommendedActionsFiltered = filtered
		changed = true
	}
	if changed {
		if _, err := s.db.SaveReportData(id, rd); err != nil {
			log.Warnf("Failed to persist filtered variants for report %s: %v", id, err)
		}
	}

	return rd, nil
}

// SetReportVisibility toggles the public flag on a report.
func (s *Service) SetReportVisibility(id string, public bool) (models.ReportData, error) {
	report, ok := s.db.GetReport(id)
	if !ok {
		return models.ReportData{}, ErrReportNotFound
	}

	rd := models.ReportToReportData(report)
	rd.IsPublic = public
	if _, err := s.db.SaveReportData(id, rd); err != nil {
		return models.ReportData{}, fmt.Errorf("failed to update visibility: %w", err)
	}
	return rd, nil
}

// filterText applies strict redaction when the involved parties are known,
// falling back to the heuristic tier otherwise.
func (s *Service) filterText(rd models.ReportData, text string) string {
	names := append(append([]string{}, rd.PrimariesInvolved...), rd.Witnesses...)
	if len(names) > 0 {
		return privacy.FilterKnownNames(text, names)
	}
	return privacy.FilterHeuristicNames(text)
}

func (s *Service) publishSaved(rd models.ReportData) {
	if s.publisher == nil {
		return
	}
	event := models.SavedReportEvent{
		ReportID:     rd.ReportID,
		ReportMethod: rd.ReportMethod,
		Title:        rd.ReportTitle,
		IsPublic:     rd.IsPublic,
		SavedAt:      time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.publisher.Publish(event); err != nil {
		log.Warnf("Failed to publish saved-report event for %s: %v", rd.ReportID, err)
	}
}

func chatTranscript(messages []llm.Message) string {
	var lines []string
	for _, m := range messages {
		if m.Role == "user" {
			lines = append(lines, m.Content)
		}
	}
	return strings.Join(lines, "\n")
}
