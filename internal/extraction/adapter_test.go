package extraction

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/invoiceflow/invoice-verifier/internal/config"
	"github.com/invoiceflow/invoice-verifier/internal/models"
)

const validResponse = `{
	"invoice_number": "INV-2024-001",
	"invoice_date": "2024-03-15",
	"po_number": "PO-77",
	"supplier": {"name": "Acme Supplies", "gstin": "29ABCDE1234F1Z5", "address": "Bengaluru"},
	"recipient": {"name": "Widget Corp", "gstin": "27FGHIJ5678K2Z9", "address": "Mumbai"},
	"line_items": [{"description": "Widgets", "quantity": 10, "unit_price": 50, "amount": 500}],
	"subtotal": 500,
	"tax_rate": "18%",
	"tax_amount": 90,
	"total_amount": 590,
	"currency": "INR",
	"payment_terms": "Net 30",
	"place_of_supply": "Karnataka"
}`

// scriptedClient returns one scripted reply per call, in order.
type scriptedClient struct {
	calls   int
	replies []func() (openai.ChatCompletionResponse, error)
}

func (c *scriptedClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	reply := c.replies[c.calls]
	c.calls++
	return reply()
}

func textResponse(content string) func() (openai.ChatCompletionResponse, error) {
	return func() (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: content}},
			},
		}, nil
	}
}

func errorResponse(err error) func() (openai.ChatCompletionResponse, error) {
	return func() (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{}, err
	}
}

func testAdapter(t *testing.T, client chatCompleter) *Adapter {
	t.Helper()
	adapter, err := NewAdapter(config.ExtractionConfig{
		Model:       "gpt-4o",
		MaxTokens:   4096,
		Timeout:     time.Second,
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)
	adapter.client = client
	return adapter
}

// jpegPayload is a minimal payload that passes image detection.
var jpegPayload = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}

func TestAdapter_Extract_Success(t *testing.T) {
	client := &scriptedClient{replies: []func() (openai.ChatCompletionResponse, error){
		textResponse(validResponse),
	}}
	adapter := testAdapter(t, client)

	outcome := adapter.Extract(context.Background(), jpegPayload, models.KindInvoice, "sess-1")

	require.True(t, outcome.Succeeded(), "reason: %s", outcome.FailureReason)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, "INV-2024-001", outcome.Fields.InvoiceNumber)
	assert.Equal(t, "Acme Supplies", outcome.Fields.Supplier.Name)
	assert.Equal(t, 590.0, outcome.Fields.TotalAmount)
	assert.Len(t, outcome.Fields.LineItems, 1)
}

func TestAdapter_Extract_StripsCodeFence(t *testing.T) {
	client := &scriptedClient{replies: []func() (openai.ChatCompletionResponse, error){
		textResponse("```json\n" + validResponse + "\n```"),
	}}
	adapter := testAdapter(t, client)

	outcome := adapter.Extract(context.Background(), jpegPayload, models.KindInvoice, "")

	require.True(t, outcome.Succeeded(), "reason: %s", outcome.FailureReason)
	assert.Equal(t, "INV-2024-001", outcome.Fields.InvoiceNumber)
}

func TestAdapter_Extract_RetriesThenSucceeds(t *testing.T) {
	client := &scriptedClient{replies: []func() (openai.ChatCompletionResponse, error){
		errorResponse(fmt.Errorf("request timed out")),
		textResponse(validResponse),
	}}
	adapter := testAdapter(t, client)

	outcome := adapter.Extract(context.Background(), jpegPayload, models.KindInvoice, "")

	require.True(t, outcome.Succeeded(), "reason: %s", outcome.FailureReason)
	assert.Equal(t, 2, outcome.Attempts, "attempt count must record which attempt succeeded")
	assert.Equal(t, 2, client.calls)
}

func TestAdapter_Extract_ExhaustsAttempts(t *testing.T) {
	client := &scriptedClient{replies: []func() (openai.ChatCompletionResponse, error){
		errorResponse(fmt.Errorf("connection refused")),
		errorResponse(fmt.Errorf("connection refused")),
		errorResponse(fmt.Errorf("connection refused")),
	}}
	adapter := testAdapter(t, client)

	outcome := adapter.Extract(context.Background(), jpegPayload, models.KindInvoice, "")

	assert.False(t, outcome.Succeeded())
	assert.Equal(t, 3, outcome.Attempts)
	assert.Equal(t, 3, client.calls, "no request may be issued after the last allowed failure")
	assert.Contains(t, outcome.FailureReason, "connection refused")
}

func TestAdapter_Extract_ShapeFailureIsRetried(t *testing.T) {
	client := &scriptedClient{replies: []func() (openai.ChatCompletionResponse, error){
		textResponse(`{"unexpected": "shape"}`),
		textResponse("not json at all"),
		textResponse(validResponse),
	}}
	adapter := testAdapter(t, client)

	outcome := adapter.Extract(context.Background(), jpegPayload, models.KindInvoice, "")

	require.True(t, outcome.Succeeded(), "reason: %s", outcome.FailureReason)
	assert.Equal(t, 3, outcome.Attempts)
}

func TestAdapter_Extract_EmptyResponseIsRetried(t *testing.T) {
	client := &scriptedClient{replies: []func() (openai.ChatCompletionResponse, error){
		textResponse(""),
		textResponse(validResponse),
	}}
	adapter := testAdapter(t, client)

	outcome := adapter.Extract(context.Background(), jpegPayload, models.KindInvoice, "")

	require.True(t, outcome.Succeeded(), "reason: %s", outcome.FailureReason)
	assert.Equal(t, 2, outcome.Attempts)
}

func TestAdapter_Extract_ZeroMaxAttemptsClamped(t *testing.T) {
	adapter, err := NewAdapter(config.ExtractionConfig{
		Timeout: time.Second,
	}, zap.NewNop())
	require.NoError(t, err)
	adapter.client = &scriptedClient{replies: []func() (openai.ChatCompletionResponse, error){
		errorResponse(fmt.Errorf("connection refused")),
	}}

	outcome := adapter.Extract(context.Background(), jpegPayload, models.KindInvoice, "")

	assert.False(t, outcome.Succeeded())
	assert.Equal(t, 1, outcome.Attempts, "a zero attempt budget must still issue one request")
	assert.Contains(t, outcome.FailureReason, "connection refused")
}

func TestAdapter_Extract_MissingAPIKey(t *testing.T) {
	adapter, err := NewAdapter(config.ExtractionConfig{
		MaxAttempts: 3,
		Timeout:     time.Second,
	}, zap.NewNop())
	require.NoError(t, err)

	outcome := adapter.Extract(context.Background(), jpegPayload, models.KindInvoice, "")

	assert.False(t, outcome.Succeeded())
	assert.Equal(t, 0, outcome.Attempts, "config failures must not consume attempts")
	assert.Contains(t, outcome.FailureReason, "API key")
}

func TestAdapter_Extract_EmptyPayload(t *testing.T) {
	adapter := testAdapter(t, &scriptedClient{})

	outcome := adapter.Extract(context.Background(), nil, models.KindPurchaseOrder, "")

	assert.False(t, outcome.Succeeded())
	assert.Contains(t, outcome.FailureReason, "purchase_order")
}

func TestAdapter_Override_Success(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, time.Now().Format(overrideDateLayout), "sess-9")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "invoice.json"), []byte(validResponse), 0644))

	adapter, err := NewAdapter(config.ExtractionConfig{
		MockDataDir: base,
		MaxAttempts: 3,
	}, zap.NewNop())
	require.NoError(t, err)

	outcome := adapter.Extract(context.Background(), nil, models.KindInvoice, "sess-9")

	require.True(t, outcome.Succeeded(), "reason: %s", outcome.FailureReason)
	assert.Equal(t, "INV-2024-001", outcome.Fields.InvoiceNumber)
	assert.Equal(t, 0, outcome.Attempts)
}

func TestAdapter_Override_MissingFile(t *testing.T) {
	base := t.TempDir()

	adapter, err := NewAdapter(config.ExtractionConfig{
		MockDataDir: base,
		MaxAttempts: 3,
	}, zap.NewNop())
	require.NoError(t, err)

	outcome := adapter.Extract(context.Background(), nil, models.KindInvoice, "sess-9")

	assert.False(t, outcome.Succeeded())
	assert.Contains(t, outcome.FailureReason, "invoice.json",
		"failure reason must include the attempted path")
}

func TestAdapter_Override_MalformedJSON(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, time.Now().Format(overrideDateLayout))
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "purchase_order.json"), []byte("{broken"), 0644))

	adapter, err := NewAdapter(config.ExtractionConfig{
		MockDataDir: base,
		MaxAttempts: 3,
	}, zap.NewNop())
	require.NoError(t, err)

	outcome := adapter.Extract(context.Background(), nil, models.KindPurchaseOrder, "")

	assert.False(t, outcome.Succeeded())
	assert.Contains(t, outcome.FailureReason, "malformed")
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"whitespace", "  {\"a\":1}  ", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripCodeFence(tt.in); got != tt.expected {
				t.Errorf("stripCodeFence() = %q, want %q", got, tt.expected)
			}
		})
	}
}
