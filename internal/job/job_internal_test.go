package job

import (
	"errors"
	"testing"

	"github.com/kkloberdanz/judgerun/internal/model"
	"github.com/kkloberdanz/judgerun/internal/protocol"
	"github.com/kkloberdanz/judgerun/internal/worker"
)

func TestCaseErrorFromExecErr(t *testing.T) {
	tests := []struct {
		err  error
		want model.CaseErrorKind
	}{
		{&worker.MemoryLimitExceededError{PeakBytes: 67108864}, model.CaseErrorMemoryLimitExceeded},
		{&worker.HardTimeLimitExceededError{}, model.CaseErrorHardTimeLimitExceeded},
		{&worker.CPUTimeExceededError{UsedMicros: 5_000_000}, model.CaseErrorCpuTimeExceeded},
		{errors.New("some other failure"), model.CaseErrorJudge},
	}
	for _, tt := range tests {
		got := caseErrorFromExecErr(tt.err)
		if got.Kind != tt.want {
			t.Errorf("caseErrorFromExecErr(%q).Kind = %v, want %v", tt.err, got.Kind, tt.want)
		}
	}
}

func TestCaseErrorFromExecErrPopulatesObservedUsage(t *testing.T) {
	cpu := caseErrorFromExecErr(&worker.CPUTimeExceededError{UsedMicros: 2_500_000})
	if cpu.Micros != 2_500_000 {
		t.Fatalf("expected Micros to carry the observed usage, got %d", cpu.Micros)
	}

	mem := caseErrorFromExecErr(&worker.MemoryLimitExceededError{PeakBytes: 128 * 1024 * 1024})
	if mem.Bytes != 128*1024*1024 {
		t.Fatalf("expected Bytes to carry the observed peak, got %d", mem.Bytes)
	}
}

func TestInterpretCaseResultPassed(t *testing.T) {
	tc := model.TestCase{ExpectedPattern: "42"}
	result := protocol.CmdResult{Success: &protocol.CmdOutput{Stdout: "42\n"}}

	status := interpretCaseResult(tc, result, nil)
	if status.Kind != model.CaseStatusPassed {
		t.Fatalf("expected passed, got %v (%s)", status.Kind, status.Message)
	}
}

func TestInterpretCaseResultLogicMismatch(t *testing.T) {
	tc := model.TestCase{ExpectedPattern: "42"}
	result := protocol.CmdResult{Success: &protocol.CmdOutput{Stdout: "43\n"}}

	status := interpretCaseResult(tc, result, nil)
	if status.Kind != model.CaseStatusFailed {
		t.Fatalf("expected failed, got %v", status.Kind)
	}
	if status.Message != "Logic Error" {
		t.Fatalf("expected Logic Error, got %q", status.Message)
	}
}

func TestInterpretCaseResultRuntimeFailure(t *testing.T) {
	tc := model.TestCase{ExpectedPattern: "42"}
	code := 1
	result := protocol.CmdResult{Failure: &protocol.CmdFailure{
		Output: protocol.CmdOutput{Stdout: "", Stderr: "panic"},
		Exit:   protocol.CmdExit{Status: &code},
	}}

	status := interpretCaseResult(tc, result, nil)
	if status.Kind != model.CaseStatusFailed {
		t.Fatalf("expected failed, got %v", status.Kind)
	}
	if status.PenaltyApplies != true {
		t.Fatalf("expected runtime errors to penalize, got penaltyApplies=%v", status.PenaltyApplies)
	}
}

func TestInterpretCaseResultExecError(t *testing.T) {
	tc := model.TestCase{ExpectedPattern: "42"}
	status := interpretCaseResult(tc, protocol.CmdResult{}, errors.New("memory limit exceeded"))
	if status.Kind != model.CaseStatusFailed {
		t.Fatalf("expected failed, got %v", status.Kind)
	}
	if status.Message == "" {
		t.Fatal("expected a rendered message")
	}
}

func TestInterpretCaseResultJudgeErrorOnBadRegex(t *testing.T) {
	tc := model.TestCase{ExpectedPattern: "[", UseRegex: true}
	result := protocol.CmdResult{Success: &protocol.CmdOutput{Stdout: "anything"}}

	status := interpretCaseResult(tc, result, nil)
	if status.Kind != model.CaseStatusFailed {
		t.Fatalf("expected failed, got %v", status.Kind)
	}
	if status.PenaltyApplies {
		t.Fatal("judge errors should never carry a scoring penalty")
	}
}

func TestResultToStatusDetailsFlag(t *testing.T) {
	result := protocol.CmdResult{Failure: &protocol.CmdFailure{
		Output: protocol.CmdOutput{Stdout: "leaked secret"},
		Exit:   protocol.CmdExit{},
	}}
	withDetails := resultToStatus(result, nil, true)
	withoutDetails := resultToStatus(result, nil, false)

	if withDetails.Message == withoutDetails.Message {
		t.Fatal("expected details=false to suppress the captured output")
	}
}
