package model_test

import (
	"encoding/json"
	"testing"

	"github.com/kkloberdanz/judgerun/internal/model"
)

func TestCaseStatusJSONRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		status model.CaseStatus
	}{
		{"pending", model.PendingStatus()},
		{"running", model.RunningStatus()},
		{"notRun", model.NotRunStatus()},
		{"passed", model.PassedStatus("42\n")},
		{"failed", model.FailedStatus(true, "Logic Error")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(tt.status)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			var got model.CaseStatus
			if err := json.Unmarshal(raw, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got != tt.status {
				t.Fatalf("round trip mismatch: got %+v, want %+v", got, tt.status)
			}
		})
	}
}

func TestCaseStatusMarshalShape(t *testing.T) {
	raw, err := json.Marshal(model.FailedStatus(true, "boom"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["status"] != "failed" {
		t.Fatalf("expected status %q, got %v", "failed", decoded["status"])
	}
	content, ok := decoded["content"].([]any)
	if !ok || len(content) != 2 {
		t.Fatalf("expected 2-element content tuple, got %v", decoded["content"])
	}
	if content[0] != true || content[1] != "boom" {
		t.Fatalf("unexpected content tuple: %v", content)
	}
}

func TestJobStateJudgingCompleteCase(t *testing.T) {
	s := model.NewJudgingState(3)
	if s.IsComplete() {
		t.Fatal("fresh judging state should not be complete")
	}
	s.StartFirst()
	if s.Cases[0].Kind != model.CaseStatusRunning {
		t.Fatalf("expected case 0 running, got %v", s.Cases[0].Kind)
	}

	s.CompleteCase(model.PassedStatus("ok"))
	if s.IsComplete() {
		t.Fatal("should not be complete after first of three cases")
	}
	if s.Cases[1].Kind != model.CaseStatusRunning {
		t.Fatalf("expected case 1 running after advance, got %v", s.Cases[1].Kind)
	}

	s.CompleteCase(model.FailedStatus(true, "Logic Error"))
	if !s.IsComplete() {
		t.Fatal("a failed case should finalize the job immediately")
	}
	if s.Cases[2].Kind != model.CaseStatusNotRun {
		t.Fatalf("expected trailing case notRun after failure, got %v", s.Cases[2].Kind)
	}
}

func TestJobStateJudgingCompleteOnLastCase(t *testing.T) {
	s := model.NewJudgingState(2)
	s.StartFirst()
	s.CompleteCase(model.PassedStatus("ok"))
	s.CompleteCase(model.PassedStatus("ok"))
	if !s.IsComplete() {
		t.Fatal("job should be complete once the last case finishes, even when passed")
	}
	idx, penalty, msg := s.LastError()
	if idx != s.Len() || penalty || msg != "" {
		t.Fatalf("expected no error, got idx=%d penalty=%v msg=%q", idx, penalty, msg)
	}
}

func TestJobStateTestingLifecycle(t *testing.T) {
	s := model.NewTestingState()
	if s.IsComplete() {
		t.Fatal("fresh testing state should not be complete")
	}
	s.StartFirst()
	if s.Status.Kind != model.CaseStatusRunning {
		t.Fatalf("expected running, got %v", s.Status.Kind)
	}
	s.CompleteCase(model.PassedStatus("hello"))
	if !s.IsComplete() {
		t.Fatal("testing state should be complete after its single case finishes")
	}
}

func TestJobStateJSONRoundTrip(t *testing.T) {
	judging := model.NewJudgingState(2)
	judging.StartFirst()
	judging.CompleteCase(model.PassedStatus("1"))

	testing_ := model.NewTestingState()
	testing_.StartFirst()

	for _, s := range []model.JobState{judging, testing_} {
		raw, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var got model.JobState
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Kind != s.Kind || got.String() != s.String() {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, s)
		}
	}
}
