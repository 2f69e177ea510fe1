package model_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/kkloberdanz/judgerun/internal/model"
)

func TestCaseErrorPenaltyApplies(t *testing.T) {
	tests := []struct {
		kind model.CaseErrorKind
		want bool
	}{
		{model.CaseErrorLogic, true},
		{model.CaseErrorRuntime, true},
		{model.CaseErrorCpuTimeExceeded, true},
		{model.CaseErrorMemoryLimitExceeded, true},
		{model.CaseErrorCompilation, false},
		{model.CaseErrorJudge, false},
		{model.CaseErrorCancelled, false},
		{model.CaseErrorHardTimeLimitExceeded, false},
	}
	for _, tt := range tests {
		e := &model.CaseError{Kind: tt.kind}
		if got := e.PenaltyApplies(); got != tt.want {
			t.Errorf("CaseError{Kind: %v}.PenaltyApplies() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestCaseErrorToStringHidesDetailsWhenRequested(t *testing.T) {
	e := &model.CaseError{Kind: model.CaseErrorRuntime, Message: "segfault at 0xdeadbeef"}
	if !strings.Contains(e.ToString(true), "segfault") {
		t.Fatal("expected details to include the captured message")
	}
	if strings.Contains(e.ToString(false), "segfault") {
		t.Fatal("expected details suppressed when details=false")
	}
}

func TestCaseErrorToStringFormatsLimits(t *testing.T) {
	cpu := &model.CaseError{Kind: model.CaseErrorCpuTimeExceeded, Micros: 1_500_000}
	if got := cpu.ToString(true); got != "Time Limit Exceeded (1.500s)" {
		t.Fatalf("unexpected message: %q", got)
	}

	mem := &model.CaseError{Kind: model.CaseErrorMemoryLimitExceeded, Bytes: 256 * 1024 * 1024}
	if got := mem.ToString(true); got != "Memory Limit Exceeded (256.0MiB)" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestNewJudgeError(t *testing.T) {
	wrapped := errors.New("boom")
	e := model.NewJudgeError(wrapped)
	if e.Kind != model.CaseErrorJudge {
		t.Fatalf("expected judge kind, got %v", e.Kind)
	}
	if e.Message != "boom" {
		t.Fatalf("expected wrapped message to be preserved, got %q", e.Message)
	}
}
