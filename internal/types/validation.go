package types

import "fmt"

// IssueCode identifies one class of validation finding.
type IssueCode string

// Blocking error codes.
const (
	CodeInitSegmentMissing  IssueCode = "init-segment-missing"
	CodeMissingTarget       IssueCode = "missing-target"
	CodeDuplicateTransition IssueCode = "duplicate-transition"
)

// Non-blocking warning codes.
const (
	CodeTerminalTransitions IssueCode = "terminal-has-transitions"
	CodeUnreachableSegment  IssueCode = "unreachable-segment"
	CodeCycle               IssueCode = "cycle-detected"
	CodeContextNoDefault    IssueCode = "context-missing-default"
	CodeUnknownSegmentType  IssueCode = "unknown-segment-type"
	CodeMissingConfigKey    IssueCode = "missing-config-key"
)

// ValidationIssue is one finding of the flow validator.
type ValidationIssue struct {
	Code       IssueCode `json:"code"`
	Location   string    `json:"location"` // segment name, or segment/result path
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
}

func (i ValidationIssue) String() string {
	if i.Location == "" {
		return fmt.Sprintf("[%s] %s", i.Code, i.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", i.Code, i.Location, i.Message)
}

// ValidationResult is the outcome of validating one flow. Errors block save
// and publish; warnings are always returned alongside success.
type ValidationResult struct {
	Errors   []ValidationIssue `json:"errors"`
	Warnings []ValidationIssue `json:"warnings"`
}

// IsValid reports whether the flow may be saved or published.
func (r *ValidationResult) IsValid() bool { return len(r.Errors) == 0 }

// AddError appends a blocking finding.
func (r *ValidationResult) AddError(code IssueCode, location, message, suggestion string) {
	r.Errors = append(r.Errors, ValidationIssue{Code: code, Location: location, Message: message, Suggestion: suggestion})
}

// AddWarning appends a non-blocking finding.
func (r *ValidationResult) AddWarning(code IssueCode, location, message, suggestion string) {
	r.Warnings = append(r.Warnings, ValidationIssue{Code: code, Location: location, Message: message, Suggestion: suggestion})
}
