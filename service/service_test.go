package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"incident-report-service/config"
	"incident-report-service/database"
	"incident-report-service/llm"
	"incident-report-service/models"
	"incident-report-service/parser"
)

// scriptedChat replays canned assistant replies in order.
type scriptedChat struct {
	replies []string
	calls   int
}

func (c *scriptedChat) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	if c.calls >= len(c.replies) {
		return "", errors.New("no more scripted replies")
	}
	reply := c.replies[c.calls]
	c.calls++
	return reply, nil
}

func (c *scriptedChat) SourceName() string { return "scripted" }

// scriptedGenerator returns one canned generation response.
type scriptedGenerator struct {
	reply string
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.reply, nil
}

func (g *scriptedGenerator) SourceName() string { return "scripted" }

func testConfig() *config.Config {
	return &config.Config{
		SessionTTL: time.Minute,
	}
}

func newTestService(t *testing.T, chat llm.ChatClient, generator llm.Generator) (*Service, sqlmock.Sqlmock, func()) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	svc := NewService(testConfig(), database.NewWithDB(sqlDB), chat, generator, nil)
	return svc, mock, func() { sqlDB.Close() }
}

func expectStoreRead(mock sqlmock.Sqlmock, key, value string) {
	rows := sqlmock.NewRows([]string{"v"}).AddRow(value)
	mock.ExpectQuery("SELECT v FROM kv_store WHERE k = ?").
		WithArgs(key).
		WillReturnRows(rows)
}

func expectStoreReadMissing(mock sqlmock.Sqlmock, key string) {
	mock.ExpectQuery("SELECT v FROM kv_store WHERE k = ?").
		WithArgs(key).
		WillReturnError(sql.ErrNoRows)
}

func expectStoreWrite(mock sqlmock.Sqlmock, key string) {
	mock.ExpectExec("INSERT INTO kv_store").
		WithArgs(key, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
}

func TestStartChat(t *testing.T) {
	svc, _, done := newTestService(t, &scriptedChat{}, nil)
	defer done()

	reply := svc.StartChat()
	if reply.SessionID == "" {
		t.Fatal("no session id")
	}
	if reply.NextQuestion != parser.QuestionDescribe {
		t.Errorf("opening question = %q", reply.NextQuestion)
	}
	if reply.Completed {
		t.Error("new session marked completed")
	}
}

func TestProcessChatTurnLatestPayloadWins(t *testing.T) {
	chat := &scriptedChat{replies: []string{
		`{"report_title": "Ladder incident", "report_description": "A ladder slipped on the wet mezzanine floor during stocking.", "next_question": "Who was involved in the incident?"}`,
		`{"report_description": "A ladder slipped on the wet mezzanine floor during stocking.", "parties_involved": ["a stocker"], "next_question": "What type of violation occurred?"}`,
	}}
	svc, _, done := newTestService(t, chat, nil)
	defer done()

	sessionID := svc.StartChat().SessionID

	first, err := svc.ProcessChatTurn(context.Background(), sessionID, "a ladder slipped")
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if first.Fields.ReportTitle != "Ladder incident" {
		t.Errorf("turn 1 title = %q", first.Fields.ReportTitle)
	}
	if first.NextQuestion != parser.QuestionWhoInvolved {
		t.Errorf("turn 1 question = %q", first.NextQuestion)
	}

	// The second turn's payload omits the title; the session state is
	// replaced wholesale, so the title is gone.
	second, err := svc.ProcessChatTurn(context.Background(), sessionID, "just me, a stocker")
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if second.Fields.ReportTitle != "" {
		t.Errorf("stale title kept: %q", second.Fields.ReportTitle)
	}
	if len(second.Fields.PartiesInvolved) != 1 {
		t.Errorf("parties = %v", second.Fields.PartiesInvolved)
	}
}

func TestProcessChatTurnNoPayloadKeepsState(t *testing.T) {
	chat := &scriptedChat{replies: []string{
		`{"report_description": "A breaker panel sparked near the paint booth and tripped the floor."}`,
		"I could not produce an update this time.\nCould you tell me when this happened?",
	}}
	svc, _, done := newTestService(t, chat, nil)
	defer done()

	sessionID := svc.StartChat().SessionID
	if _, err := svc.ProcessChatTurn(context.Background(), sessionID, "the panel sparked"); err != nil {
		t.Fatal(err)
	}

	reply, err := svc.ProcessChatTurn(context.Background(), sessionID, "ok")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Fields.ReportDescription == "" {
		t.Error("state wiped by a payload-free turn")
	}
	if reply.NextQuestion != "Could you tell me when this happened?" {
		t.Errorf("question = %q", reply.NextQuestion)
	}
}

func TestProcessChatTurnUndecodablePayloadKeepsState(t *testing.T) {
	chat := &scriptedChat{replies: []string{
		`{"report_description": "A breaker panel sparked near the paint booth and tripped the floor."}`,
		`Sorry, here is a broken update {"report_description": "oops unterminated}`,
	}}
	svc, _, done := newTestService(t, chat, nil)
	defer done()

	sessionID := svc.StartChat().SessionID
	if _, err := svc.ProcessChatTurn(context.Background(), sessionID, "the panel sparked"); err != nil {
		t.Fatal(err)
	}

	reply, err := svc.ProcessChatTurn(context.Background(), sessionID, "anything else?")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Fields.ReportDescription == "" {
		t.Error("state wiped by an undecodable turn")
	}
	if reply.NextQuestion == "" {
		t.Error("no fallback question after an undecodable turn")
	}
}

func TestProcessChatTurnCompletion(t *testing.T) {
	chat := &scriptedChat{replies: []string{
		`{"report_title": "Wage dispute", "report_description": "Overtime pay was withheld from the finishing crew for two periods.", "parties_involved": ["payroll manager"], "report_type": ["Wage Violation"], "trades_field": ["Finishing"]}` + "\nREPORT_COMPLETE",
	}}
	svc, _, done := newTestService(t, chat, nil)
	defer done()

	sessionID := svc.StartChat().SessionID
	reply, err := svc.ProcessChatTurn(context.Background(), sessionID, "that is everything")
	if err != nil {
		t.Fatal(err)
	}
	if !reply.Completed {
		t.Error("completion not detected")
	}
	if reply.NextQuestion != "" {
		t.Errorf("completed turn still asks %q", reply.NextQuestion)
	}
}

func TestProcessChatTurnUnknownSession(t *testing.T) {
	svc, _, done := newTestService(t, &scriptedChat{}, nil)
	defer done()

	if _, err := svc.ProcessChatTurn(context.Background(), "nope", "hi"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestSaveChatReport(t *testing.T) {
	chat := &scriptedChat{replies: []string{
		`{"report_title": "Blocked exit", "report_description": "Pallets were stacked against the east fire exit overnight.", "parties_involved": ["night shift lead"]}`,
	}}
	svc, mock, done := newTestService(t, chat, nil)
	defer done()

	sessionID := svc.StartChat().SessionID
	if _, err := svc.ProcessChatTurn(context.Background(), sessionID, "pallets blocked the exit"); err != nil {
		t.Fatal(err)
	}

	// AddReport loads (seeding the empty store) and then writes.
	expectStoreReadMissing(mock, "incident:reports")
	expectStoreWrite(mock, "incident:reports")
	expectStoreWrite(mock, "incident:reports")

	stored, err := svc.SaveChatReport(sessionID)
	if err != nil {
		t.Fatalf("SaveChatReport: %v", err)
	}
	if stored.Title != "Blocked exit" {
		t.Errorf("title = %q", stored.Title)
	}
	if stored.Data == nil || stored.Data.ReportMethod != models.MethodAIChat {
		t.Errorf("method = %+v", stored.Data)
	}
	if stored.Data.ReportTranscript == "" {
		t.Error("transcript missing")
	}
	if stored.ID == "" {
		t.Error("no report id assigned")
	}

	// Saving ends the session.
	if _, err := svc.SaveChatReport(sessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("session survived save: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGenerateFromTranscript(t *testing.T) {
	gen := &scriptedGenerator{reply: `{
		"report_title": "Forklift Near Miss",
		"report_type": ["Safety Violation"],
		"trades_field": ["Warehousing"],
		"report_desc": "A forklift reversed into the pedestrian lane while a picker was crossing.",
		"recommended_actions": ["Install convex mirrors"],
		"operator_certification": "expired in March"
	}`}
	svc, mock, done := newTestService(t, &scriptedChat{}, gen)
	defer done()

	expectStoreReadMissing(mock, "incident:reports")
	expectStoreWrite(mock, "incident:reports")
	expectStoreWrite(mock, "incident:reports")

	stored, notes, err := svc.GenerateFromTranscript(context.Background(), GenerateRequest{
		Transcript:      "so the forklift backed right into the walking lane...",
		RecordedAt:      time.Date(2024, time.March, 7, 9, 5, 0, 0, time.UTC),
		AudioURI:        "file:///audio/rec-17.m4a",
		AudioDurationMs: 42000,
		LocationName:    "Dock 4",
		LocationCoords:  []float64{40.7128, -74.006},
	})
	if err != nil {
		t.Fatalf("GenerateFromTranscript: %v", err)
	}

	if stored.Title != "Forklift Near Miss" {
		t.Errorf("title = %q", stored.Title)
	}
	if stored.Data.ReportMethod != models.MethodVoiceRecording {
		t.Errorf("method = %q", stored.Data.ReportMethod)
	}
	if stored.Data.AudioURI != "file:///audio/rec-17.m4a" || stored.Data.AudioDuration != 42000 {
		t.Errorf("audio context lost: %+v", stored.Data)
	}
	if stored.Data.LocationName != "Dock 4" {
		t.Errorf("location = %q", stored.Data.LocationName)
	}
	if stored.Data.Month != "March" || stored.Data.Time != 905 {
		t.Errorf("recorded-at not applied: %s %d", stored.Data.Month, stored.Data.Time)
	}
	if len(notes) != 1 || notes[0] != "expired in March" {
		t.Errorf("extra notes = %v", notes)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGenerateFromTranscriptSalvagesProse(t *testing.T) {
	gen := &scriptedGenerator{reply: "- A ladder slipped on the wet floor.\n- Nobody was injured."}
	svc, mock, done := newTestService(t, &scriptedChat{}, gen)
	defer done()

	expectStoreReadMissing(mock, "incident:reports")
	expectStoreWrite(mock, "incident:reports")
	expectStoreWrite(mock, "incident:reports")

	stored, _, err := svc.GenerateFromTranscript(context.Background(), GenerateRequest{
		Transcript: "a ladder slipped on the wet floor",
	})
	if err != nil {
		t.Fatalf("GenerateFromTranscript: %v", err)
	}
	if !strings.Contains(stored.Content, "A ladder slipped on the wet floor.") {
		t.Errorf("salvaged description = %q", stored.Content)
	}
	if stored.Data.ReportMethod != models.MethodManualForm {
		t.Errorf("method = %q", stored.Data.ReportMethod)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGenerateFromTranscriptEmptyTranscript(t *testing.T) {
	svc, _, done := newTestService(t, &scriptedChat{}, &scriptedGenerator{})
	defer done()

	if _, _, err := svc.GenerateFromTranscript(context.Background(), GenerateRequest{Transcript: "   "}); err == nil {
		t.Error("empty transcript accepted")
	}
}

func storedListJSON(t *testing.T, reports ...models.StoredReport) string {
	t.Helper()
	raw, err := json.Marshal(reports)
	if err != nil {
		t.Fatal(err)
	}
	return string(raw)
}

func publicReport(id string, filtered string) models.StoredReport {
	rd := models.MergeReportData(models.ReportDataPatch{}, models.ReportData{
		ReportID:           id,
		IsPublic:           true,
		ReportTitle:        "Crane signal mixup",
		ReportDesc:         "Marcus gave the lift signal while Priya was still rigging the load.",
		PrimariesInvolved:  []string{"Marcus", "Priya"},
		RecommendedActions: []string{"Retrain Marcus on signalling"},
		ReportDescFiltered: filtered,
	})
	if filtered != "" {
		rd.RecommendedActionsFiltered = []string{"Retrain Individual A on signalling"}
	}
	return models.ReportDataToStoredReport(rd)
}

func TestPublicViewComputesAndPersistsFilteredVariants(t *testing.T) {
	svc, mock, done := newTestService(t, &scriptedChat{}, nil)
	defer done()

	stored := storedListJSON(t, publicReport("1700000000005", ""))

	// GetReport load reconciles the missing samples in.
	expectStoreRead(mock, "incident:reports", stored)
	expectStoreWrite(mock, "incident:reports")
	// SaveReportData loads again and writes the cached variants back.
	expectStoreRead(mock, "incident:reports", stored)
	expectStoreWrite(mock, "incident:reports")
	expectStoreWrite(mock, "incident:reports")

	rd, err := svc.PublicView("1700000000005")
	if err != nil {
		t.Fatalf("PublicView: %v", err)
	}
	if rd.ReportDescFiltered != "Individual A gave the lift signal while Individual B was still rigging the load." {
		t.Errorf("filtered description = %q", rd.ReportDescFiltered)
	}
	if len(rd.RecommendedActionsFiltered) != 1 || rd.RecommendedActionsFiltered[0] != "Retrain Individual A on signalling" {
		t.Errorf("filtered actions = %v", rd.RecommendedActionsFiltered)
	}
	// Unfiltered source text is untouched.
	if !strings.Contains(rd.ReportDesc, "Marcus") {
		t.Errorf("source text modified: %q", rd.ReportDesc)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPublicViewServesCachedVariants(t *testing.T) {
	svc, mock, done := newTestService(t, &scriptedChat{}, nil)
	defer done()

	cached := "Individual A gave the lift signal while Individual B was still rigging the load."
	stored := storedListJSON(t, publicReport("1700000000006", cached))

	// Only the read plus sample reconciliation; no cache recompute.
	expectStoreRead(mock, "incident:reports", stored)
	expectStoreWrite(mock, "incident:reports")

	rd, err := svc.PublicView("1700000000006")
	if err != nil {
		t.Fatalf("PublicView: %v", err)
	}
	if rd.ReportDescFiltered != cached {
		t.Errorf("cache not served: %q", rd.ReportDescFiltered)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPublicViewRejectsPrivateReport(t *testing.T) {
	svc, mock, done := newTestService(t, &scriptedChat{}, nil)
	defer done()

	private := publicReport("1700000000007", "")
	data := *private.Data
	data.IsPublic = false
	private.Data = &data

	expectStoreRead(mock, "incident:reports", storedListJSON(t, private))
	expectStoreWrite(mock, "incident:reports")

	if _, err := svc.PublicView("1700000000007"); !errors.Is(err, ErrReportNotPublic) {
		t.Errorf("err = %v", err)
	}
}

func TestPublicViewUnknownReport(t *testing.T) {
	svc, mock, done := newTestService(t, &scriptedChat{}, nil)
	defer done()

	expectStoreReadMissing(mock, "incident:reports")
	expectStoreWrite(mock, "incident:reports")

	if _, err := svc.PublicView("missing"); !errors.Is(err, ErrReportNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestUnlockTokensAreOneShot(t *testing.T) {
	tokens := NewUnlockTokens(time.Minute)
	token := tokens.Issue()

	if !tokens.Consume(token) {
		t.Fatal("fresh token rejected")
	}
	if tokens.Consume(token) {
		t.Error("token consumed twice")
	}
	if tokens.Consume("never-issued") {
		t.Error("unknown token accepted")
	}
}

func TestSessionStoreExpiry(t *testing.T) {
	store := NewSessionStore(10 * time.Millisecond)
	session := store.Create("system prompt")

	if _, ok := store.Get(session.ID); !ok {
		t.Fatal("fresh session missing")
	}

	session.UpdatedAt = time.Now().Add(-time.Second)
	if _, ok := store.Get(session.ID); ok {
		t.Error("expired session still served")
	}
}
