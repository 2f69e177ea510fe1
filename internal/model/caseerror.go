package model

import "fmt"

// CaseErrorKind is the tagged-union discriminant for CaseError.
type CaseErrorKind string

const (
	CaseErrorLogic                CaseErrorKind = "logic"
	CaseErrorCancelled             CaseErrorKind = "cancelled"
	CaseErrorHardTimeLimitExceeded CaseErrorKind = "hardTimeLimitExceeded"
	CaseErrorCpuTimeExceeded       CaseErrorKind = "cpuTimeExceeded"
	CaseErrorMemoryLimitExceeded   CaseErrorKind = "memoryLimitExceeded"
	CaseErrorRuntime               CaseErrorKind = "runtime"
	CaseErrorCompilation           CaseErrorKind = "compilation"
	CaseErrorJudge                 CaseErrorKind = "judge"
)

// CaseError is the internal error taxonomy produced while executing one
// case (compile step or run step). It is folded into a CaseStatus by the
// job engine and never surfaces to callers directly.
type CaseError struct {
	Kind CaseErrorKind

	// Message carries the detail for Runtime/Compilation/Judge.
	Message string
	// Micros carries the observed CPU-time usage for CpuTimeExceeded.
	Micros int64
	// Bytes carries the observed peak memory for MemoryLimitExceeded.
	Bytes int64
}

func (e *CaseError) Error() string {
	return e.ToString(true)
}

// PenaltyApplies reports whether this error should carry a scoring penalty.
// CPU/memory/logic/runtime errors penalize; compilation, judge, cancelled,
// and hard-timeout do not.
func (e *CaseError) PenaltyApplies() bool {
	switch e.Kind {
	case CaseErrorLogic, CaseErrorRuntime, CaseErrorCpuTimeExceeded, CaseErrorMemoryLimitExceeded:
		return true
	default:
		return false
	}
}

// ToString renders the surface-level message. When details is false,
// Runtime/Compilation error bodies are suppressed to avoid leaking case
// content via crafted compiler/runtime output.
func (e *CaseError) ToString(details bool) string {
	switch e.Kind {
	case CaseErrorLogic:
		return "Logic Error"
	case CaseErrorRuntime:
		if details {
			return fmt.Sprintf("Runtime Error:\n%s", e.Message)
		}
		return "Runtime Error"
	case CaseErrorCompilation:
		if details {
			return fmt.Sprintf("Compilation Error:\n%s", e.Message)
		}
		return "Compilation Error"
	case CaseErrorJudge:
		return "Judge Error"
	case CaseErrorCancelled:
		return "Run Cancelled"
	case CaseErrorHardTimeLimitExceeded:
		return "Hard Time Limit Exceeded"
	case CaseErrorCpuTimeExceeded:
		return fmt.Sprintf("Time Limit Exceeded (%.3fs)", float64(e.Micros)/1_000_000)
	case CaseErrorMemoryLimitExceeded:
		return fmt.Sprintf("Memory Limit Exceeded (%.1fMiB)", float64(e.Bytes)/(1024*1024))
	default:
		return "Unknown Error"
	}
}

// NewJudgeError wraps an internal (never-user-facing) failure as a judge
// error, the CaseError analogue of Rust's `impl From<anyhow::Error> for
// CaseError`.
func NewJudgeError(err error) *CaseError {
	return &CaseError{Kind: CaseErrorJudge, Message: err.Error()}
}
