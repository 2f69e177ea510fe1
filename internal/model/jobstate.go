package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CaseStatusKind is the tagged-union discriminant for CaseStatus.
type CaseStatusKind string

const (
	CaseStatusPending CaseStatusKind = "pending"
	CaseStatusRunning CaseStatusKind = "running"
	CaseStatusPassed  CaseStatusKind = "passed"
	CaseStatusNotRun  CaseStatusKind = "notRun"
	CaseStatusFailed  CaseStatusKind = "failed"
)

// CaseStatus is the per-case outcome: Pending | Running | Passed(output) |
// NotRun | Failed(penaltyApplies, message).
type CaseStatus struct {
	Kind           CaseStatusKind
	Output         string
	PenaltyApplies bool
	Message        string
}

func PendingStatus() CaseStatus { return CaseStatus{Kind: CaseStatusPending} }
func RunningStatus() CaseStatus { return CaseStatus{Kind: CaseStatusRunning} }
func NotRunStatus() CaseStatus  { return CaseStatus{Kind: CaseStatusNotRun} }
func PassedStatus(output string) CaseStatus {
	return CaseStatus{Kind: CaseStatusPassed, Output: output}
}
func FailedStatus(penaltyApplies bool, message string) CaseStatus {
	return CaseStatus{Kind: CaseStatusFailed, PenaltyApplies: penaltyApplies, Message: message}
}

// CaseStatusFromCaseError translates a CaseError into a Failed CaseStatus.
// details controls whether Runtime/Compilation messages include the
// captured output (true for Testing operations, false for Judging, to
// keep leaked output out of a judging verdict).
func CaseStatusFromCaseError(e *CaseError, details bool) CaseStatus {
	return FailedStatus(e.PenaltyApplies(), e.ToString(details))
}

func (c CaseStatus) String() string {
	switch c.Kind {
	case CaseStatusPending:
		return "[ ]"
	case CaseStatusRunning:
		return "[running]"
	case CaseStatusPassed:
		return "[pass]"
	case CaseStatusNotRun:
		return "[/]"
	case CaseStatusFailed:
		return "[fail]"
	default:
		return "[?]"
	}
}

type caseStatusJSON struct {
	Status  CaseStatusKind  `json:"status"`
	Content json.RawMessage `json:"content,omitempty"`
}

// MarshalJSON renders CaseStatus as {"status":...,"content":...}, mirroring
// the Rust source's `#[serde(tag = "status", content = "content")]`.
func (c CaseStatus) MarshalJSON() ([]byte, error) {
	out := caseStatusJSON{Status: c.Kind}
	var content any
	switch c.Kind {
	case CaseStatusPassed:
		content = c.Output
	case CaseStatusFailed:
		content = []any{c.PenaltyApplies, c.Message}
	}
	if content != nil {
		raw, err := json.Marshal(content)
		if err != nil {
			return nil, err
		}
		out.Content = raw
	}
	return json.Marshal(out)
}

func (c *CaseStatus) UnmarshalJSON(data []byte) error {
	var in caseStatusJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	c.Kind = in.Status
	switch in.Status {
	case CaseStatusPassed:
		if len(in.Content) > 0 {
			return json.Unmarshal(in.Content, &c.Output)
		}
	case CaseStatusFailed:
		var tuple [2]json.RawMessage
		if err := json.Unmarshal(in.Content, &tuple); err != nil {
			return err
		}
		if err := json.Unmarshal(tuple[0], &c.PenaltyApplies); err != nil {
			return err
		}
		return json.Unmarshal(tuple[1], &c.Message)
	}
	return nil
}

// JobOperationKind distinguishes a scored Judging run from a one-shot Testing run.
type JobOperationKind string

const (
	OperationJudging JobOperationKind = "judging"
	OperationTesting JobOperationKind = "testing"
)

// JobOperation is the request payload: either a list of cases to judge
// against, or a single stdin string to test with.
type JobOperation struct {
	Kind        JobOperationKind
	Cases       []TestCase
	TestingStdin string
}

func JudgingOperation(cases []TestCase) JobOperation {
	return JobOperation{Kind: OperationJudging, Cases: cases}
}

func TestingOperation(stdin string) JobOperation {
	return JobOperation{Kind: OperationTesting, TestingStdin: stdin}
}

// JobStateKind distinguishes the Judging and Testing state shapes.
type JobStateKind string

const (
	JobStateJudging JobStateKind = "judging"
	JobStateTesting JobStateKind = "testing"
)

// JobState is the per-request state machine: either a Judging run tracking
// an ordered sequence of CaseStatus with a cursor, or a Testing run tracking
// a single CaseStatus.
type JobState struct {
	Kind JobStateKind

	// Judging fields.
	Cases    []CaseStatus
	Idx      int
	Complete bool

	// Testing field.
	Status CaseStatus
}

// NewJudgingState builds the initial state for a Judging operation: n
// Pending cases, cursor at 0, not complete.
func NewJudgingState(n int) JobState {
	cases := make([]CaseStatus, n)
	for i := range cases {
		cases[i] = PendingStatus()
	}
	return JobState{Kind: JobStateJudging, Cases: cases}
}

// NewTestingState builds the initial state for a Testing operation.
func NewTestingState() JobState {
	return JobState{Kind: JobStateTesting, Status: PendingStatus()}
}

// NewStateForOperation picks the right initial state for the request's operation.
func NewStateForOperation(op JobOperation) JobState {
	switch op.Kind {
	case OperationJudging:
		return NewJudgingState(len(op.Cases))
	default:
		return NewTestingState()
	}
}

func (s JobState) IsTesting() bool { return s.Kind == JobStateTesting }

// Len returns the number of cases (1 for Testing).
func (s JobState) Len() int {
	if s.Kind == JobStateJudging {
		return len(s.Cases)
	}
	return 1
}

// Complete reports whether the job has reached a terminal state.
func (s JobState) IsComplete() bool {
	if s.Kind == JobStateJudging {
		return s.Complete
	}
	switch s.Status.Kind {
	case CaseStatusPassed, CaseStatusFailed, CaseStatusNotRun:
		return true
	default:
		return false
	}
}

// StartFirst marks the first (only, for Testing) case Running. Mutates in place.
func (s *JobState) StartFirst() {
	switch s.Kind {
	case JobStateJudging:
		if len(s.Cases) > 0 {
			s.Cases[0] = RunningStatus()
		}
	case JobStateTesting:
		s.Status = RunningStatus()
	}
}

// CompleteCase records the outcome of the currently-running case, advancing
// the cursor or finalizing the job. On a Failed outcome for a Judging run,
// every case after the current one becomes NotRun and the job finalizes
// immediately — ported carefully from job.rs's complete_case, including the
// last-case completion check.
func (s *JobState) CompleteCase(status CaseStatus) {
	switch s.Kind {
	case JobStateJudging:
		if s.Idx == len(s.Cases)-1 {
			s.Complete = true
		} else if status.Kind == CaseStatusFailed {
			for i := s.Idx + 1; i < len(s.Cases); i++ {
				s.Cases[i] = NotRunStatus()
			}
			s.Complete = true
		} else {
			s.Cases[s.Idx+1] = RunningStatus()
		}
		s.Cases[s.Idx] = status
		if !s.Complete {
			s.Idx++
		}
	case JobStateTesting:
		s.Status = status
	}
}

// LastError returns the index, penalty flag, and message of the first
// failed case, or (Len(), false, "") if there is none.
func (s JobState) LastError() (int, bool, string) {
	switch s.Kind {
	case JobStateJudging:
		for i, c := range s.Cases {
			if c.Kind == CaseStatusFailed {
				return i, c.PenaltyApplies, c.Message
			}
		}
		return s.Len(), false, ""
	case JobStateTesting:
		if s.Status.Kind == CaseStatusFailed {
			return 0, s.Status.PenaltyApplies, s.Status.Message
		}
		return 0, false, ""
	default:
		return 0, false, ""
	}
}

func (s JobState) String() string {
	switch s.Kind {
	case JobStateJudging:
		parts := make([]string, len(s.Cases))
		for i, c := range s.Cases {
			parts[i] = c.String()
		}
		return strings.Join(parts, " ")
	case JobStateTesting:
		return s.Status.String()
	default:
		return ""
	}
}

type jobStateJSON struct {
	Type     JobStateKind `json:"type"`
	Cases    []CaseStatus `json:"cases,omitempty"`
	Idx      int          `json:"idx,omitempty"`
	Complete bool         `json:"complete,omitempty"`
	Status   *CaseStatus  `json:"status,omitempty"`
}

func (s JobState) MarshalJSON() ([]byte, error) {
	out := jobStateJSON{Type: s.Kind}
	switch s.Kind {
	case JobStateJudging:
		out.Cases = s.Cases
		out.Idx = s.Idx
		out.Complete = s.Complete
	case JobStateTesting:
		st := s.Status
		out.Status = &st
	}
	return json.Marshal(out)
}

func (s *JobState) UnmarshalJSON(data []byte) error {
	var in jobStateJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	s.Kind = in.Type
	switch in.Type {
	case JobStateJudging:
		s.Cases = in.Cases
		s.Idx = in.Idx
		s.Complete = in.Complete
	case JobStateTesting:
		if in.Status != nil {
			s.Status = *in.Status
		}
	default:
		return fmt.Errorf("unknown job state type %q", in.Type)
	}
	return nil
}
