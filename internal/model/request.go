package model

import "fmt"

// JobRequest is one execution submission accepted by the RunManager.
type JobRequest struct {
	ID              uint64
	UserID          int64
	ProblemID       int64
	ContestID       int64
	Program         string
	LanguageKey     string
	Language        LanguageRecipe
	CpuTimeLimitSec int64
	// SoftMemoryLimitBytes is the per-problem memory.high ceiling; breaching
	// it fails the case with MemoryLimitExceeded instead of letting the
	// cgroup's hard memory.max OOM-kill the worker. 0 leaves no soft
	// ceiling in place.
	SoftMemoryLimitBytes int64
	Op                   JobOperation
}

// Validate enforces JobRequest's one invariant: program length is bounded.
func (r *JobRequest) Validate(maxProgramLength int) error {
	if len(r.Program) > maxProgramLength {
		return fmt.Errorf("program length %d exceeds maximum %d", len(r.Program), maxProgramLength)
	}
	return nil
}
