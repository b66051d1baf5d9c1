package extraction

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/invoiceflow/invoice-verifier/internal/config"
	"github.com/invoiceflow/invoice-verifier/internal/models"
)

// overrideDateLayout is the date segment of the deterministic-override
// path: <base>/<DD-MM-YYYY>/<session>/<document_kind>.json
const overrideDateLayout = "02-01-2006"

// Outcome is the tagged result of one extraction: either Fields is set or
// FailureReason is. A failed extraction never carries partial field data.
type Outcome struct {
	Fields        *models.DocumentFields
	Attempts      int
	FailureReason string
}

// Succeeded reports whether the extraction produced fields.
func (o Outcome) Succeeded() bool {
	return o.Fields != nil && o.FailureReason == ""
}

func success(fields *models.DocumentFields, attempts int) Outcome {
	return Outcome{Fields: fields, Attempts: attempts}
}

func failure(attempts int, reason string) Outcome {
	return Outcome{Attempts: attempts, FailureReason: reason}
}

// chatCompleter is the slice of the OpenAI client the adapter uses.
// *openai.Client satisfies it; tests substitute a scripted fake.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Adapter wraps the external document-understanding capability: it owns the
// retry envelope, response-shape validation and the deterministic override
// used for reproducible offline runs. It never panics and never returns an
// error past its boundary; every failure becomes an Outcome.
type Adapter struct {
	client chatCompleter
	cfg    config.ExtractionConfig
	schema *jsonschema.Schema
	logger *zap.Logger
}

// NewAdapter creates a new extraction adapter. A missing API key is not an
// error here: the deterministic override may be active, and live calls
// report the config failure per extraction instead.
func NewAdapter(cfg config.ExtractionConfig, logger *zap.Logger) (*Adapter, error) {
	schema, err := compileHarmonizedSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to compile harmonized schema: %w", err)
	}

	var client chatCompleter
	if cfg.APIKey != "" {
		client = openai.NewClient(cfg.APIKey)
	}

	// The retry loop assumes at least one attempt.
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	return &Adapter{
		client: client,
		cfg:    cfg,
		schema: schema,
		logger: logger,
	}, nil
}

// Extract extracts harmonized fields from a document payload. Up to
// MaxAttempts requests are issued with a fixed delay in between; transport
// and shape failures are retried identically, config failures are not.
func (a *Adapter) Extract(ctx context.Context, payload []byte, kind models.DocumentKind, session string) Outcome {
	if a.cfg.MockDataDir != "" {
		return a.loadOverride(kind, session)
	}

	if len(payload) == 0 {
		return failure(0, fmt.Sprintf("no %s payload supplied", kind))
	}

	if a.client == nil {
		a.logger.Error("Extraction requested without API key", zap.String("kind", kind.String()))
		return failure(0, configError(ErrMissingAPIKey).Error())
	}

	pages, err := renderPages(payload, a.logger)
	if err != nil {
		return failure(0, configError(err).Error())
	}

	req := a.buildRequest(pages, kind)

	var lastErr *AttemptError
	for attempt := 1; attempt <= a.cfg.MaxAttempts; attempt++ {
		fields, attemptErr := a.attempt(ctx, req)
		if attemptErr == nil {
			a.logger.Info("Extraction succeeded",
				zap.String("kind", kind.String()),
				zap.String("session", session),
				zap.Int("attempt", attempt))
			return success(fields, attempt)
		}

		lastErr = attemptErr
		a.logger.Warn("Extraction attempt failed",
			zap.String("kind", kind.String()),
			zap.String("session", session),
			zap.Int("attempt", attempt),
			zap.String("failure_kind", string(attemptErr.Kind)),
			zap.Error(attemptErr.Err))

		if !attemptErr.Retryable {
			return failure(attempt, attemptErr.Error())
		}
		if attempt < a.cfg.MaxAttempts {
			select {
			case <-time.After(a.cfg.RetryDelay):
			case <-ctx.Done():
				return failure(attempt, transportError(ctx.Err()).Error())
			}
		}
	}

	a.logger.Error("Extraction exhausted all attempts",
		zap.String("kind", kind.String()),
		zap.Int("attempts", a.cfg.MaxAttempts),
		zap.Error(lastErr))
	return failure(a.cfg.MaxAttempts, lastErr.Error())
}

// attempt issues one physical extraction request.
func (a *Adapter) attempt(ctx context.Context, req openai.ChatCompletionRequest) (*models.DocumentFields, *AttemptError) {
	attemptCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	resp, err := a.client.CreateChatCompletion(attemptCtx, req)
	if err != nil {
		return nil, transportError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, transportError(fmt.Errorf("empty response from extraction provider"))
	}

	content := stripCodeFence(resp.Choices[0].Message.Content)
	if content == "" {
		return nil, transportError(fmt.Errorf("empty message content from extraction provider"))
	}

	if err := validateShape(a.schema, []byte(content)); err != nil {
		return nil, shapeError(err)
	}

	var fields models.DocumentFields
	if err := json.Unmarshal([]byte(content), &fields); err != nil {
		return nil, shapeError(fmt.Errorf("decode harmonized fields: %w", err))
	}

	return &fields, nil
}

// buildRequest builds the vision chat-completion request for the document.
func (a *Adapter) buildRequest(pages [][]byte, kind models.DocumentKind) openai.ChatCompletionRequest {
	contentParts := []openai.ChatMessagePart{
		{
			Type: openai.ChatMessagePartTypeText,
			Text: buildPrompt(kind),
		},
	}

	for _, page := range pages {
		contentParts = append(contentParts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    fmt.Sprintf("data:image/jpeg;base64,%s", base64.StdEncoding.EncodeToString(page)),
				Detail: openai.ImageURLDetailHigh,
			},
		})
	}

	return openai.ChatCompletionRequest{
		Model:       a.cfg.Model,
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: a.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemInstruction,
			},
			{
				Role:         openai.ChatMessageRoleUser,
				MultiContent: contentParts,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
}

// stripCodeFence removes markdown code fences some models wrap JSON in.
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
