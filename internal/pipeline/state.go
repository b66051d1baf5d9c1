package pipeline

// State is one stage of a pipeline run.
type State string

const (
	StateStart               State = "start"
	StateExtractingInvoice   State = "extracting_invoice"
	StateDuplicateCheck      State = "duplicate_check"
	StateValidatingChecklist State = "validating_checklist"
	StateExtractingPO        State = "extracting_po"
	StateComparingPO         State = "comparing_po"
	StateSummarizing         State = "summarizing"
	StatePersisting          State = "persisting"
	StateDone                State = "done"
)

var validStates = map[State]bool{
	StateStart:               true,
	StateExtractingInvoice:   true,
	StateDuplicateCheck:      true,
	StateValidatingChecklist: true,
	StateExtractingPO:        true,
	StateComparingPO:         true,
	StateSummarizing:         true,
	StatePersisting:          true,
	StateDone:                true,
}

var terminalStates = map[State]bool{
	StateDone: true,
}

// IsTerminal returns true if the state allows no further transitions.
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid pipeline state.
func (s State) IsValid() bool {
	return validStates[s]
}
