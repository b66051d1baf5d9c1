package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/invoiceflow/invoice-verifier/internal/checklist"
	"github.com/invoiceflow/invoice-verifier/internal/extraction"
	"github.com/invoiceflow/invoice-verifier/internal/models"
)

// Extractor is the document-understanding capability the pipeline consumes.
type Extractor interface {
	Extract(ctx context.Context, payload []byte, kind models.DocumentKind, session string) extraction.Outcome
}

// ResultStore persists and reads back processing results.
type ResultStore interface {
	FingerprintReader
	Save(ctx context.Context, result *models.ProcessingResult) error
}

// Validator selects and applies the invoice checklist.
type Validator interface {
	SelectCriteria(f *models.DocumentFields) checklist.Selection
	Validate(f *models.DocumentFields, criteria []checklist.Criterion) (bool, []models.ValidationIssue, models.VendorCheck)
}

// Comparator reconciles an invoice against its purchase order.
type Comparator interface {
	Compare(invoice, po *models.DocumentFields) models.ComparisonResult
}

// Summarizer renders the human-readable verdict summary.
type Summarizer interface {
	Generate(result *models.ProcessingResult) string
}

// Submission is one processing request: invoice bytes (required), optional
// purchase order bytes, and whether the caller said a PO exists even if its
// bytes never arrived.
type Submission struct {
	Invoice     []byte
	PO          []byte
	POIndicated bool
	SessionID   string
}

// Orchestrator runs one invoice submission through the verification
// pipeline. Stages execute strictly sequentially; there is no cancellation
// once a run has started. The orchestrator never lets a raw fault escape:
// every outcome, including a collaborator panic, becomes a structured
// ProcessingResult.
type Orchestrator struct {
	extractor  Extractor
	store      ResultStore
	validator  Validator
	comparator Comparator
	summarizer Summarizer
	logger     *zap.Logger
}

// NewOrchestrator creates a new processing orchestrator.
func NewOrchestrator(
	extractor Extractor,
	store ResultStore,
	validator Validator,
	comparator Comparator,
	summarizer Summarizer,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		extractor:  extractor,
		store:      store,
		validator:  validator,
		comparator: comparator,
		summarizer: summarizer,
		logger:     logger,
	}
}

// Process runs the pipeline for one submission and always returns a result.
// Status is set exactly once per path; only accepted and rejected runs are
// persisted.
func (o *Orchestrator) Process(ctx context.Context, sub Submission) (result *models.ProcessingResult) {
	result = &models.ProcessingResult{
		Issues:     []models.ValidationIssue{},
		POProvided: sub.POIndicated || len(sub.PO) > 0,
	}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Pipeline stage panicked",
				zap.String("session", sub.SessionID),
				zap.Any("panic", r))
			result.ID = ""
			result.Status = models.StatusFailed
			result.Message = fmt.Sprintf("internal stage failure: %v", r)
			result.Summary = o.bestEffortSummary(result)
		}
	}()

	machine := newRunMachine()

	if len(sub.Invoice) == 0 {
		o.fire(ctx, machine, TriggerSkipInvoice, sub.SessionID)
		result.Status = models.StatusSkippedInvoice
		result.Message = "no invoice file in the request"
		result.Summary = o.summarizer.Generate(result)
		return result
	}

	o.fire(ctx, machine, TriggerBegin, sub.SessionID)

	outcome := o.extractor.Extract(ctx, sub.Invoice, models.KindInvoice, sub.SessionID)
	if !outcome.Succeeded() || outcome.Fields.IsEmpty() {
		o.fire(ctx, machine, TriggerStageFailed, sub.SessionID)
		result.Status = models.StatusFailed
		result.Message = extractionFailureMessage(outcome)
		result.Summary = o.summarizer.Generate(result)
		o.fire(ctx, machine, TriggerFinalize, sub.SessionID)
		return result
	}
	result.InvoiceFields = outcome.Fields
	result.Fingerprint = models.Fingerprint(outcome.Fields)
	o.fire(ctx, machine, TriggerInvoiceExtracted, sub.SessionID)

	originalID, originalSummary, found, err := FindDuplicate(ctx, o.store, outcome.Fields)
	if err != nil {
		o.fire(ctx, machine, TriggerStageFailed, sub.SessionID)
		result.Status = models.StatusFailed
		result.Message = err.Error()
		result.Summary = o.summarizer.Generate(result)
		o.fire(ctx, machine, TriggerFinalize, sub.SessionID)
		return result
	}
	if found {
		o.fire(ctx, machine, TriggerDuplicateFound, sub.SessionID)
		result.ID = originalID
		result.Status = models.StatusDuplicate
		result.Message = fmt.Sprintf("invoice already processed as result %s", originalID)
		result.Summary = originalSummary
		if result.Summary == "" {
			result.Summary = o.summarizer.Generate(result)
		}
		o.fire(ctx, machine, TriggerFinalize, sub.SessionID)
		o.logger.Info("Duplicate invoice suppressed",
			zap.String("session", sub.SessionID),
			zap.String("original_id", originalID))
		return result
	}
	o.fire(ctx, machine, TriggerNoDuplicate, sub.SessionID)

	selection := o.validator.SelectCriteria(result.InvoiceFields)
	result.ChecklistOption = selection.Option.String()
	passed, issues, vendor := o.validator.Validate(result.InvoiceFields, selection.Criteria)
	result.Issues = issues
	result.VendorCheck = vendor

	o.runComparison(ctx, machine, sub, result)

	result.Status, result.Message = deriveStatus(passed, result)
	result.Summary = o.summarizer.Generate(result)
	o.fire(ctx, machine, TriggerSummarized, sub.SessionID)

	if err := o.store.Save(ctx, result); err != nil {
		o.logger.Error("Failed to persist processing result",
			zap.String("session", sub.SessionID),
			zap.Error(err))
		result.ID = ""
		result.Status = models.StatusFailed
		result.Message = fmt.Sprintf("failed to persist result: %v", err)
	}
	o.fire(ctx, machine, TriggerPersisted, sub.SessionID)

	o.logger.Info("Pipeline run completed",
		zap.String("session", sub.SessionID),
		zap.String("status", result.Status.String()),
		zap.String("id", result.ID))
	return result
}

// runComparison executes the optional PO branch and always leaves the
// machine in the summarizing state with result.Comparison set.
func (o *Orchestrator) runComparison(ctx context.Context, machine StateMachine, sub Submission, result *models.ProcessingResult) {
	if len(sub.PO) > 0 {
		o.fire(ctx, machine, TriggerComparePO, sub.SessionID)

		outcome := o.extractor.Extract(ctx, sub.PO, models.KindPurchaseOrder, sub.SessionID)
		if outcome.Succeeded() && !outcome.Fields.IsEmpty() {
			result.POFields = outcome.Fields
			o.fire(ctx, machine, TriggerPOExtracted, sub.SessionID)
			comparison := o.comparator.Compare(result.InvoiceFields, result.POFields)
			result.Comparison = &comparison
			o.fire(ctx, machine, TriggerCompared, sub.SessionID)
			return
		}

		// A failed PO extraction does not abort the run: the comparison
		// is forced to a non-match and checklist results stand alone.
		forced := models.FailedComparison(
			"purchase order could not be read: " + extractionFailureMessage(outcome))
		result.Comparison = &forced
		o.fire(ctx, machine, TriggerPOMissing, sub.SessionID)
		return
	}

	if sub.POIndicated {
		forced := models.FailedComparison("purchase order was indicated but not supplied")
		result.Comparison = &forced
	} else {
		skipped := models.SkippedComparison()
		result.Comparison = &skipped
	}
	o.fire(ctx, machine, TriggerSkipComparison, sub.SessionID)
}

// deriveStatus applies the verdict precedence. Duplicate runs never reach
// here; they short-circuit at the duplicate check.
func deriveStatus(passed bool, result *models.ProcessingResult) (models.Status, string) {
	switch {
	case len(result.Issues) > 0:
		return models.StatusRejected,
			fmt.Sprintf("checklist validation found %d issue(s)", len(result.Issues))
	case result.POProvided && result.Comparison != nil && !result.Comparison.OverallMatch:
		return models.StatusRejected, "invoice does not match the purchase order"
	case passed && (result.Comparison == nil || result.Comparison.OverallMatch):
		return models.StatusAccepted, "all checks passed"
	default:
		return models.StatusRejected, "verification could not establish a clean result"
	}
}

func extractionFailureMessage(outcome extraction.Outcome) string {
	if outcome.FailureReason != "" {
		return outcome.FailureReason
	}
	return "extraction produced no usable fields"
}

// bestEffortSummary renders a summary after a panic without risking a
// second one.
func (o *Orchestrator) bestEffortSummary(result *models.ProcessingResult) (summary string) {
	defer func() {
		if recover() != nil {
			summary = result.Message
		}
	}()
	return o.summarizer.Generate(result)
}

// fire advances the machine and logs the transition. A refused transition
// is a programming error in the graph, not a run failure; it is logged and
// the run continues on the authoritative status bookkeeping.
func (o *Orchestrator) fire(ctx context.Context, machine StateMachine, trigger Trigger, session string) {
	from := machine.State()
	if err := machine.Fire(ctx, trigger); err != nil {
		o.logger.Error("Pipeline transition refused",
			zap.String("session", session),
			zap.String("from", from.String()),
			zap.String("trigger", trigger.String()),
			zap.Error(err))
		return
	}
	o.logger.Debug("Pipeline transition",
		zap.String("session", session),
		zap.String("from", from.String()),
		zap.String("to", machine.State().String()),
		zap.String("trigger", trigger.String()))
}
