package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/invoiceflow/invoice-verifier/internal/chat"
	"github.com/invoiceflow/invoice-verifier/internal/config"
	"github.com/invoiceflow/invoice-verifier/internal/models"
	"github.com/invoiceflow/invoice-verifier/internal/pipeline"
)

type fakeProcessor struct {
	lastSubmission pipeline.Submission
	result         *models.ProcessingResult
}

func (p *fakeProcessor) Process(ctx context.Context, sub pipeline.Submission) *models.ProcessingResult {
	p.lastSubmission = sub
	return p.result
}

type fakeReader struct {
	results map[string]*models.ProcessingResult
	err     error
}

func (r *fakeReader) GetByID(ctx context.Context, id string) (*models.ProcessingResult, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.results[id], nil
}

type fakeReports struct {
	payload []byte
	err     error
}

func (r *fakeReports) Build(result *models.ProcessingResult) ([]byte, error) {
	return r.payload, r.err
}

type fakeUploads struct {
	keys []string
}

func (u *fakeUploads) Save(key string, content []byte) (string, error) {
	u.keys = append(u.keys, key)
	return "/uploads/" + key, nil
}

type fakeFollowUp struct {
	lastSession  string
	lastQuestion string
	lastResultID string
	answer       string
	err          error
}

func (f *fakeFollowUp) Answer(ctx context.Context, sessionID string, result *models.ProcessingResult, question string) (string, error) {
	f.lastSession = sessionID
	f.lastQuestion = question
	f.lastResultID = result.ID
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func newTestServer(processor Processor, reader ResultReader, reports ReportBuilder, uploads UploadStore) *Server {
	return newTestServerWithFollowUp(processor, reader, reports, uploads, &fakeFollowUp{})
}

func newTestServerWithFollowUp(processor Processor, reader ResultReader, reports ReportBuilder, uploads UploadStore, followUp FollowUp) *Server {
	handlers := NewHandlers(processor, reader, reports, uploads, followUp, zap.NewNop())
	return NewServer(config.ServerConfig{Host: "127.0.0.1", Port: 0}, handlers, zap.NewNop())
}

func multipartBody(t *testing.T, files map[string][]byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for field, content := range files {
		part, err := writer.CreateFormFile(field, field+".pdf")
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	for field, value := range fields {
		require.NoError(t, writer.WriteField(field, value))
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestProcessDocuments(t *testing.T) {
	processor := &fakeProcessor{result: &models.ProcessingResult{
		ID:      "result-1",
		Status:  models.StatusAccepted,
		Message: "all checks passed",
		Summary: "Invoice INV-1 was accepted.",
	}}
	uploads := &fakeUploads{}
	server := newTestServer(processor, &fakeReader{}, &fakeReports{}, uploads)

	body, contentType := multipartBody(t,
		map[string][]byte{"invoice": []byte("invoice-bytes"), "po": []byte("po-bytes")},
		map[string]string{"session_id": "sess-1", "po_indicated": "true"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/process", body)
	req.Header.Set("Content-Type", contentType)
	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)

	var resp ProcessResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp.Status)
	assert.Equal(t, "result-1", resp.InvoiceResultID)
	assert.Equal(t, "Invoice INV-1 was accepted.", resp.ResultSummary)

	assert.Equal(t, []byte("invoice-bytes"), processor.lastSubmission.Invoice)
	assert.Equal(t, []byte("po-bytes"), processor.lastSubmission.PO)
	assert.True(t, processor.lastSubmission.POIndicated)
	assert.Equal(t, "sess-1", processor.lastSubmission.SessionID)

	require.Len(t, uploads.keys, 2, "raw uploads must be archived")
	assert.Contains(t, uploads.keys[0], "sess-1")
}

func TestProcessDocuments_NoInvoicePart(t *testing.T) {
	processor := &fakeProcessor{result: &models.ProcessingResult{
		Status:  models.StatusSkippedInvoice,
		Message: "no invoice file in the request",
		Summary: "Processing skipped: no invoice file in the request",
	}}
	server := newTestServer(processor, &fakeReader{}, &fakeReports{}, &fakeUploads{})

	body, contentType := multipartBody(t, nil, map[string]string{"session_id": "sess-2"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/process", body)
	req.Header.Set("Content-Type", contentType)
	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)

	var resp ProcessResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, "skipped_invoice", resp.Status)
	assert.Empty(t, resp.InvoiceResultID)
	assert.Nil(t, processor.lastSubmission.Invoice)
}

func TestGetResult(t *testing.T) {
	reader := &fakeReader{results: map[string]*models.ProcessingResult{
		"result-1": {ID: "result-1", Status: models.StatusAccepted},
	}}
	server := newTestServer(&fakeProcessor{}, reader, &fakeReports{}, &fakeUploads{})

	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/results/result-1", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	var result models.ProcessingResult
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &result))
	assert.Equal(t, "result-1", result.ID)
}

func TestGetResult_NotFound(t *testing.T) {
	server := newTestServer(&fakeProcessor{}, &fakeReader{}, &fakeReports{}, &fakeUploads{})

	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/results/missing", nil))

	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestGetResult_StoreError(t *testing.T) {
	reader := &fakeReader{err: errors.New("database locked")}
	server := newTestServer(&fakeProcessor{}, reader, &fakeReports{}, &fakeUploads{})

	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/results/result-1", nil))

	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
}

func TestGetResultReport(t *testing.T) {
	reader := &fakeReader{results: map[string]*models.ProcessingResult{
		"result-1": {ID: "result-1", Status: models.StatusAccepted},
	}}
	reports := &fakeReports{payload: []byte("xlsx-bytes")}
	server := newTestServer(&fakeProcessor{}, reader, reports, &fakeUploads{})

	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/results/result-1/report", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, []byte("xlsx-bytes"), recorder.Body.Bytes())
	assert.Contains(t, recorder.Header().Get("Content-Disposition"), "audit-report-result-1.xlsx")
}

func queryRequest(t *testing.T, id string, payload interface{}) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/results/"+id+"/query", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestQueryResult(t *testing.T) {
	reader := &fakeReader{results: map[string]*models.ProcessingResult{
		"result-1": {ID: "result-1", Status: models.StatusAccepted},
	}}
	followUp := &fakeFollowUp{answer: "The invoice was accepted."}
	server := newTestServerWithFollowUp(&fakeProcessor{}, reader, &fakeReports{}, &fakeUploads{}, followUp)

	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, queryRequest(t, "result-1",
		QueryRequest{SessionID: "sess-1", Message: "Was it accepted?"}))

	require.Equal(t, http.StatusOK, recorder.Code)
	var resp QueryResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, "sess-1", resp.SessionID)
	assert.Equal(t, "The invoice was accepted.", resp.Answer)
	assert.Equal(t, "result-1", followUp.lastResultID)
	assert.Equal(t, "Was it accepted?", followUp.lastQuestion)
}

func TestQueryResult_OpensSessionWhenMissing(t *testing.T) {
	reader := &fakeReader{results: map[string]*models.ProcessingResult{
		"result-1": {ID: "result-1", Status: models.StatusAccepted},
	}}
	followUp := &fakeFollowUp{answer: "ok"}
	server := newTestServerWithFollowUp(&fakeProcessor{}, reader, &fakeReports{}, &fakeUploads{}, followUp)

	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, queryRequest(t, "result-1",
		QueryRequest{Message: "Anything wrong?"}))

	require.Equal(t, http.StatusOK, recorder.Code)
	var resp QueryResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID, "a fresh session must be opened and echoed back")
	assert.Equal(t, resp.SessionID, followUp.lastSession)
}

func TestQueryResult_EmptyMessage(t *testing.T) {
	server := newTestServer(&fakeProcessor{}, &fakeReader{}, &fakeReports{}, &fakeUploads{})

	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, queryRequest(t, "result-1",
		QueryRequest{SessionID: "sess-1", Message: "  "}))

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestQueryResult_ResultNotFound(t *testing.T) {
	server := newTestServer(&fakeProcessor{}, &fakeReader{}, &fakeReports{}, &fakeUploads{})

	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, queryRequest(t, "missing",
		QueryRequest{SessionID: "sess-1", Message: "Was it accepted?"}))

	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestQueryResult_Unavailable(t *testing.T) {
	reader := &fakeReader{results: map[string]*models.ProcessingResult{
		"result-1": {ID: "result-1", Status: models.StatusAccepted},
	}}
	followUp := &fakeFollowUp{err: chat.ErrUnavailable}
	server := newTestServerWithFollowUp(&fakeProcessor{}, reader, &fakeReports{}, &fakeUploads{}, followUp)

	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, queryRequest(t, "result-1",
		QueryRequest{SessionID: "sess-1", Message: "Was it accepted?"}))

	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
}

func TestHealthCheck(t *testing.T) {
	server := newTestServer(&fakeProcessor{}, &fakeReader{}, &fakeReports{}, &fakeUploads{})

	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "ok")
}
