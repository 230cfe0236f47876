package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"incident-report-service/config"
	"incident-report-service/database"
	"incident-report-service/service"
	"incident-report-service/stubllm"
)

func newTestHandlers(t *testing.T) (*Handlers, sqlmock.Sqlmock, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	db := database.NewWithDB(sqlDB)

	cfg := &config.Config{SessionTTL: time.Minute}
	stub := stubllm.NewClient()
	svc := service.NewService(cfg, db, stub, stub, stub)

	return NewHandlers(svc, db), mock, func() { sqlDB.Close() }
}

func postJSON(w *httptest.ResponseRecorder, path string, body any) *gin.Context {
	jsonBody, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", path, bytes.NewBuffer(jsonBody))
	req.Header.Set("Content-Type", "application/json")

	c, _ := gin.CreateTestContext(w)
	c.Request = req
	return c
}

func TestHealthCheck(t *testing.T) {
	h, _, done := newTestHandlers(t)
	defer done()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/health", nil)

	h.HealthCheck(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestStartChatSession(t *testing.T) {
	h, _, done := newTestHandlers(t)
	defer done()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/chat/session", nil)

	h.StartChatSession(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var reply service.ChatTurnReply
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.NotEmpty(t, reply.SessionID)
	assert.NotEmpty(t, reply.NextQuestion)
}

func TestChatMessageValidation(t *testing.T) {
	h, _, done := newTestHandlers(t)
	defer done()

	w := httptest.NewRecorder()
	c := postJSON(w, "/chat/session/abc/message", gin.H{})
	c.Params = gin.Params{{Key: "id", Value: "abc"}}

	h.ChatMessage(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatMessageUnknownSession(t *testing.T) {
	h, _, done := newTestHandlers(t)
	defer done()

	w := httptest.NewRecorder()
	c := postJSON(w, "/chat/session/nope/message", gin.H{"message": "hello"})
	c.Params = gin.Params{{Key: "id", Value: "nope"}}

	h.ChatMessage(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChatMessageRoundTrip(t *testing.T) {
	h, _, done := newTestHandlers(t)
	defer done()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/chat/session", nil)
	h.StartChatSession(c)

	var opened service.ChatTurnReply
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &opened))

	w = httptest.NewRecorder()
	c = postJSON(w, "/chat/session/"+opened.SessionID+"/message", gin.H{
		"message": "a pallet fell off the second rack and nearly hit the picker below",
	})
	c.Params = gin.Params{{Key: "id", Value: opened.SessionID}}

	h.ChatMessage(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var reply service.ChatTurnReply
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.Equal(t, opened.SessionID, reply.SessionID)
	assert.NotEmpty(t, reply.Fields.ReportDescription)
	assert.NotEmpty(t, reply.NextQuestion)
}

func TestGenerateReportValidation(t *testing.T) {
	h, _, done := newTestHandlers(t)
	defer done()

	w := httptest.NewRecorder()
	c := postJSON(w, "/reports/generate", gin.H{})

	h.GenerateReport(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPublicReportNotFound(t *testing.T) {
	h, mock, done := newTestHandlers(t)
	defer done()

	mock.ExpectQuery("SELECT v FROM kv_store").
		WithArgs("incident:reports").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO kv_store").
		WillReturnResult(sqlmock.NewResult(1, 1))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/reports/missing/public", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	h.PublicReport(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPublicReportHidesPrivateReport(t *testing.T) {
	h, mock, done := newTestHandlers(t)
	defer done()

	// The seeded sample report is private by default; the anonymous view
	// must not distinguish "private" from "absent".
	mock.ExpectQuery("SELECT v FROM kv_store").
		WithArgs("incident:reports").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO kv_store").
		WillReturnResult(sqlmock.NewResult(1, 1))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/reports/sample-report-1/public", nil)
	c.Params = gin.Params{{Key: "id", Value: "sample-report-1"}}

	h.PublicReport(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetReportVisibilityValidation(t *testing.T) {
	h, _, done := newTestHandlers(t)
	defer done()

	w := httptest.NewRecorder()
	c := postJSON(w, "/reports/abc/visibility", gin.H{})
	c.Params = gin.Params{{Key: "id", Value: "abc"}}

	h.SetReportVisibility(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateRecordingValidation(t *testing.T) {
	h, _, done := newTestHandlers(t)
	defer done()

	w := httptest.NewRecorder()
	c := postJSON(w, "/recordings", gin.H{"title": "no uri"})

	h.CreateRecording(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTranscribeRequiresFile(t *testing.T) {
	h, _, done := newTestHandlers(t)
	defer done()

	w := httptest.NewRecorder()
	c := postJSON(w, "/transcribe", gin.H{})

	h.Transcribe(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMyLogsRequiresOneShotToken(t *testing.T) {
	h, mock, done := newTestHandlers(t)
	defer done()

	// No token at all.
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/logs", nil)
	h.MyLogs(c)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Issue a token.
	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/logs/unlock", nil)
	h.UnlockLogs(c)
	assert.Equal(t, http.StatusOK, w.Code)

	var issued struct {
		UnlockToken string `json:"unlock_token"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &issued))
	assert.NotEmpty(t, issued.UnlockToken)

	// First use succeeds.
	mock.ExpectQuery("SELECT v FROM kv_store").
		WithArgs("incident:reports").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO kv_store").
		WillReturnResult(sqlmock.NewResult(1, 1))

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/logs?unlock_token="+issued.UnlockToken, nil)
	h.MyLogs(c)
	assert.Equal(t, http.StatusOK, w.Code)

	// Second use of the same token is refused.
	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/logs?unlock_token="+issued.UnlockToken, nil)
	h.MyLogs(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
