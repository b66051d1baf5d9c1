package pipeline

// Trigger represents an event that advances a pipeline run.
type Trigger string

const (
	TriggerBegin            Trigger = "BEGIN"
	TriggerSkipInvoice      Trigger = "SKIP_INVOICE"
	TriggerInvoiceExtracted Trigger = "INVOICE_EXTRACTED"
	TriggerStageFailed      Trigger = "STAGE_FAILED"
	TriggerNoDuplicate      Trigger = "NO_DUPLICATE"
	TriggerDuplicateFound   Trigger = "DUPLICATE_FOUND"
	TriggerComparePO        Trigger = "COMPARE_PO"
	TriggerSkipComparison   Trigger = "SKIP_COMPARISON"
	TriggerPOExtracted      Trigger = "PO_EXTRACTED"
	TriggerPOMissing        Trigger = "PO_MISSING"
	TriggerCompared         Trigger = "COMPARED"
	TriggerSummarized       Trigger = "SUMMARIZED"
	TriggerFinalize         Trigger = "FINALIZE"
	TriggerPersisted        Trigger = "PERSISTED"
)

// String returns the string representation of the trigger.
func (t Trigger) String() string {
	return string(t)
}
