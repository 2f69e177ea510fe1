package grpcapi

import "github.com/kkloberdanz/judgerun/internal/model"

// SubmitJudgeRunRequest asks the service to admit and run a new job for the
// calling user.
type SubmitJudgeRunRequest struct {
	ProblemID            int64            `json:"problem_id"`
	ContestID            int64            `json:"contest_id"`
	Program              string           `json:"program"`
	LanguageKey          string           `json:"language_key"`
	CpuTimeLimitSec      int64            `json:"cpu_time_limit_sec"`
	SoftMemoryLimitBytes int64            `json:"soft_memory_limit_bytes"`
	Cases                []model.TestCase `json:"cases,omitempty"`
	TestingStdin         *string          `json:"testing_stdin,omitempty"`
}

// SubmitJudgeRunResponse carries the newly assigned job id.
type SubmitJudgeRunResponse struct {
	JobID uint64 `json:"job_id"`
}

// GetJobStateRequest identifies one job.
type GetJobStateRequest struct {
	JobID uint64 `json:"job_id"`
}

// GetJobStateResponse carries one point-in-time snapshot of a job's state.
type GetJobStateResponse struct {
	State model.JobState `json:"state"`
}

// CancelJudgeRunRequest identifies the job to cancel.
type CancelJudgeRunRequest struct {
	JobID uint64 `json:"job_id"`
}

// CancelJudgeRunResponse is empty; its presence lets the RPC signature stay
// symmetric with the rest of the service.
type CancelJudgeRunResponse struct{}

// StreamJobStateRequest identifies the job whose state updates to stream.
type StreamJobStateRequest struct {
	JobID uint64 `json:"job_id"`
}

// StreamJobStateResponse is one state transition pushed to the client.
type StreamJobStateResponse struct {
	State model.JobState `json:"state"`
}
