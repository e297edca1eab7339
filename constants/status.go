package constants

// WorkflowState is the observable state of one attestation workflow.
type WorkflowState string

const (
	StateIdle                 WorkflowState = "Idle"
	StateHashing              WorkflowState = "Hashing"
	StateExtracting           WorkflowState = "Extracting"
	StateAwaitingConfirmation WorkflowState = "AwaitingConfirmation"
	StateSubmitting           WorkflowState = "Submitting"
	StateSucceeded            WorkflowState = "Succeeded"
	StateFailed               WorkflowState = "Failed"
)

// Busy reports whether an outbound operation is in flight in this state.
func (s WorkflowState) Busy() bool {
	return s == StateHashing || s == StateExtracting || s == StateSubmitting
}

// Terminal reports whether the state only leaves through an explicit reset.
func (s WorkflowState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}
