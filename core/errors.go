package core

import "errors"

// Sentinel errors shared across packages. Callers match them with errors.Is;
// producers wrap them with additional context using fmt.Errorf("...: %w").
var (
	// ErrInvalidState reports an operation attempted in the wrong lifecycle or
	// conversation state (e.g. stopping an inactive agent).
	ErrInvalidState = errors.New("invalid state")

	// ErrNotImplemented reports a missing lifecycle hook.
	ErrNotImplemented = errors.New("not implemented")

	// ErrUnknownCallID reports a tool result for a call id never issued.
	ErrUnknownCallID = errors.New("unknown tool call id")

	// ErrAlreadyResolved reports a second result for the same tool call id.
	ErrAlreadyResolved = errors.New("tool call already resolved")

	// ErrNotOwner reports a thread operation by an agent that does not own it.
	ErrNotOwner = errors.New("thread not owned by caller")

	// ErrThreadBusy reports a concurrent advance on the same thread.
	ErrThreadBusy = errors.New("thread busy")

	// ErrInvalidResponse reports a model result that is neither text nor tool calls.
	ErrInvalidResponse = errors.New("invalid model response")

	// ErrToolNotFound reports a tool call naming an unknown tool.
	ErrToolNotFound = errors.New("tool not found")

	// ErrValidation reports a schema validation failure of tool input or output.
	ErrValidation = errors.New("validation error")

	// ErrMissingCredentials reports a provider without a configured client.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrProvider reports a terminal provider failure.
	ErrProvider = errors.New("provider error")

	// ErrLimitExceeded reports a configured session limit being hit.
	ErrLimitExceeded = errors.New("limit exceeded")
)
