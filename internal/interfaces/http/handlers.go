package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/invoiceflow/invoice-verifier/internal/chat"
	"github.com/invoiceflow/invoice-verifier/internal/models"
	"github.com/invoiceflow/invoice-verifier/internal/pipeline"
)

const uploadDateLayout = "02-01-2006"

// Processor runs one submission through the verification pipeline.
type Processor interface {
	Process(ctx context.Context, sub pipeline.Submission) *models.ProcessingResult
}

// ResultReader fetches persisted results.
type ResultReader interface {
	GetByID(ctx context.Context, id string) (*models.ProcessingResult, error)
}

// ReportBuilder renders a result as an Excel audit report.
type ReportBuilder interface {
	Build(result *models.ProcessingResult) ([]byte, error)
}

// UploadStore archives raw uploads for audit.
type UploadStore interface {
	Save(key string, content []byte) (string, error)
}

// FollowUp answers questions about a persisted result within a session.
type FollowUp interface {
	Answer(ctx context.Context, sessionID string, result *models.ProcessingResult, question string) (string, error)
}

// Handlers contains all HTTP request handlers.
type Handlers struct {
	processor Processor
	results   ResultReader
	reports   ReportBuilder
	uploads   UploadStore
	followUp  FollowUp
	logger    *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(processor Processor, results ResultReader, reports ReportBuilder, uploads UploadStore, followUp FollowUp, logger *zap.Logger) *Handlers {
	return &Handlers{
		processor: processor,
		results:   results,
		reports:   reports,
		uploads:   uploads,
		followUp:  followUp,
		logger:    logger,
	}
}

// ProcessResponse is the verdict returned to the caller.
type ProcessResponse struct {
	Status          string `json:"status"`
	Message         string `json:"message"`
	InvoiceResultID string `json:"invoice_result_id,omitempty"`
	ResultSummary   string `json:"result_summary"`
}

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthCheck reports service liveness.
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ProcessDocuments accepts a multipart submission (invoice file, optional
// po file, session_id, po_indicated) and runs the pipeline to completion.
// The response is always a structured verdict, never a bare error: a run
// that fails internally still returns 200 with status "failed".
func (h *Handlers) ProcessDocuments(c *gin.Context) {
	sessionID := c.PostForm("session_id")
	poIndicated := c.PostForm("po_indicated") == "true"

	invoice, invoiceName, err := h.readUpload(c, "invoice")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invoice upload unreadable: %v", err)})
		return
	}
	po, poName, err := h.readUpload(c, "po")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("po upload unreadable: %v", err)})
		return
	}

	h.archiveUpload(sessionID, invoiceName, invoice)
	h.archiveUpload(sessionID, poName, po)

	result := h.processor.Process(c.Request.Context(), pipeline.Submission{
		Invoice:     invoice,
		PO:          po,
		POIndicated: poIndicated,
		SessionID:   sessionID,
	})

	c.JSON(http.StatusOK, ProcessResponse{
		Status:          result.Status.String(),
		Message:         result.Message,
		InvoiceResultID: result.ID,
		ResultSummary:   result.Summary,
	})
}

// GetResult returns the persisted result envelope.
func (h *Handlers) GetResult(c *gin.Context) {
	result, err := h.results.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("Failed to load result", zap.String("id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to load result"})
		return
	}
	if result == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "result not found"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetResultReport returns the Excel audit report for a persisted result.
func (h *Handlers) GetResultReport(c *gin.Context) {
	result, err := h.results.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("Failed to load result", zap.String("id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to load result"})
		return
	}
	if result == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "result not found"})
		return
	}

	payload, err := h.reports.Build(result)
	if err != nil {
		h.logger.Error("Failed to build audit report", zap.String("id", result.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to build report"})
		return
	}

	filename := fmt.Sprintf("audit-report-%s.xlsx", result.ID)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		payload)
}

// QueryRequest is a follow-up question about a persisted result.
type QueryRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// QueryResponse carries the answer and the session the turn belongs to.
type QueryResponse struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"answer"`
}

// QueryResult answers a follow-up question about a persisted result.
// A request without a session_id opens a fresh session; the response
// echoes the session so the caller can continue the conversation.
func (h *Handlers) QueryResult(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid query request: %v", err)})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "message is required"})
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	result, err := h.results.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("Failed to load result", zap.String("id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to load result"})
		return
	}
	if result == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "result not found"})
		return
	}

	answer, err := h.followUp.Answer(c.Request.Context(), req.SessionID, result, req.Message)
	if err != nil {
		if errors.Is(err, chat.ErrUnavailable) {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: chat.ErrUnavailable.Error()})
			return
		}
		h.logger.Error("Failed to answer follow-up query",
			zap.String("id", result.ID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to answer query"})
		return
	}

	c.JSON(http.StatusOK, QueryResponse{
		SessionID: req.SessionID,
		Answer:    answer,
	})
}

// readUpload reads an optional multipart file. A missing part is not an
// error; the pipeline decides what absence means.
func (h *Handlers) readUpload(c *gin.Context, field string) ([]byte, string, error) {
	fileHeader, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, "", nil
		}
		return nil, "", err
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, "", err
	}
	return content, fileHeader.Filename, nil
}

// archiveUpload stores the raw upload under <DD-MM-YYYY>/<session>/ for
// audit. Archival failure never fails the request.
func (h *Handlers) archiveUpload(sessionID, filename string, content []byte) {
	if len(content) == 0 || filename == "" {
		return
	}

	key := filepath.Join(time.Now().Format(uploadDateLayout), sessionID, filepath.Base(filename))
	if _, err := h.uploads.Save(key, content); err != nil {
		h.logger.Warn("Failed to archive upload",
			zap.String("key", key),
			zap.Error(err))
	}
}
