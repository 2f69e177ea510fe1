// Package job orchestrates one JobRequest end to end: spawn a worker,
// compile if needed, run each case (or the single testing invocation),
// translate results into the CaseStatus/JobState state machine, and publish
// every transition.
package job

import (
	"context"
	"errors"
	"time"

	"github.com/kkloberdanz/judgerun/internal/judgeio"
	"github.com/kkloberdanz/judgerun/internal/model"
	"github.com/kkloberdanz/judgerun/internal/protocol"
	"github.com/kkloberdanz/judgerun/internal/worker"
)

// Spawner creates a fresh, ready-to-use Worker for one job. Implementations
// own cgroup/isolation wiring; job only drives the protocol-level lifecycle.
type Spawner func(ctx context.Context, recipe model.LanguageRecipe, program string) (*worker.Worker, error)

// Handle is a running (or finished) job: its live state broadcaster and a
// way to cancel it early.
type Handle struct {
	Request model.JobRequest
	States  *judgeio.Broadcaster[model.JobState]
	cancel  context.CancelFunc
	done    chan struct{}
}

// Cancel requests early termination; the job finishes its current case's
// cgroup teardown and then reports Cancelled for any case still pending.
func (h *Handle) Cancel() {
	h.cancel()
}

// Wait blocks until the job has finished and its state broadcaster closed.
func (h *Handle) Wait() {
	<-h.done
}

// Start spawns the job's goroutine and returns immediately with a Handle
// whose broadcaster begins at the operation's initial Pending state.
func Start(parentCtx context.Context, req model.JobRequest, recipe model.LanguageRecipe, spawn Spawner) *Handle {
	ctx, cancel := context.WithCancel(parentCtx)

	initial := model.NewStateForOperation(req.Op)
	h := &Handle{
		Request: req,
		States:  judgeio.New(initial),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(h.done)
		defer cancel()
		runJob(ctx, h, recipe, spawn)
		h.States.Close()
	}()

	return h
}

func runJob(ctx context.Context, h *Handle, recipe model.LanguageRecipe, spawn Spawner) {
	w, err := spawn(ctx, recipe, h.Request.Program)
	if err != nil {
		failWhole(h, model.NewJudgeError(err))
		return
	}
	defer w.Finish(50*time.Millisecond, 4)

	if h.Request.SoftMemoryLimitBytes > 0 {
		if err := w.ApplySoftMemoryLimit(uint64(h.Request.SoftMemoryLimitBytes)); err != nil {
			failWhole(h, model.NewJudgeError(err))
			return
		}
	}

	cpuCeilingUsec := uint64(h.Request.CpuTimeLimitSec) * 1_000_000

	if recipe.CompileCommand != nil {
		result, _, err := w.Compile(ctx, recipe)
		if err != nil {
			failWhole(h, &model.CaseError{Kind: model.CaseErrorCompilation, Message: err.Error()})
			return
		}
		if result.Failure != nil {
			failWhole(h, &model.CaseError{
				Kind:    model.CaseErrorCompilation,
				Message: result.Failure.String(),
			})
			return
		}
	}

	state := h.States.Current()
	state.StartFirst()
	if err := h.States.Publish(state); err != nil {
		return
	}

	if state.IsTesting() {
		runTestingCase(ctx, h, w, recipe, cpuCeilingUsec)
		return
	}
	runJudgingCases(ctx, h, w, recipe, cpuCeilingUsec)
}

func runTestingCase(ctx context.Context, h *Handle, w *worker.Worker, recipe model.LanguageRecipe, cpuCeilingUsec uint64) {
	stdin := h.Request.Op.TestingStdin
	result, err := w.RunCmd(ctx, recipe.RunCommand, &stdin, recipe.Env, cpuCeilingUsec)
	status := resultToStatus(result, err, true)

	state := h.States.Current()
	state.CompleteCase(status)
	_ = h.States.Publish(state)
}

func runJudgingCases(ctx context.Context, h *Handle, w *worker.Worker, recipe model.LanguageRecipe, cpuCeilingUsec uint64) {
	cases := h.Request.Op.Cases
	for _, tc := range cases {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result, err := w.RunCase(ctx, recipe, tc, cpuCeilingUsec)
		status := interpretCaseResult(tc, result, err)

		state := h.States.Current()
		state.CompleteCase(status)
		if pubErr := h.States.Publish(state); pubErr != nil {
			return
		}
		if state.IsComplete() {
			return
		}
	}
}

func interpretCaseResult(tc model.TestCase, result protocol.CmdResult, execErr error) model.CaseStatus {
	if execErr != nil {
		return model.CaseStatusFromCaseError(caseErrorFromExecErr(execErr), false)
	}
	if result.Failure != nil {
		return model.CaseStatusFromCaseError(&model.CaseError{
			Kind:    model.CaseErrorRuntime,
			Message: result.Failure.String(),
		}, false)
	}
	output := result.Success.Stdout
	matched, err := tc.CheckOutput(output)
	if err != nil {
		return model.CaseStatusFromCaseError(&model.CaseError{Kind: model.CaseErrorJudge, Message: err.Error()}, false)
	}
	if matched {
		return model.PassedStatus(output)
	}
	return model.CaseStatusFromCaseError(&model.CaseError{Kind: model.CaseErrorLogic}, false)
}

func resultToStatus(result protocol.CmdResult, execErr error, details bool) model.CaseStatus {
	if execErr != nil {
		return model.CaseStatusFromCaseError(caseErrorFromExecErr(execErr), details)
	}
	if result.Failure != nil {
		return model.CaseStatusFromCaseError(&model.CaseError{
			Kind:    model.CaseErrorRuntime,
			Message: result.Failure.String(),
		}, details)
	}
	return model.PassedStatus(result.Success.Stdout)
}

func caseErrorFromExecErr(err error) *model.CaseError {
	var cpuErr *worker.CPUTimeExceededError
	if errors.As(err, &cpuErr) {
		return &model.CaseError{Kind: model.CaseErrorCpuTimeExceeded, Micros: cpuErr.UsedMicros}
	}
	var memErr *worker.MemoryLimitExceededError
	if errors.As(err, &memErr) {
		return &model.CaseError{Kind: model.CaseErrorMemoryLimitExceeded, Bytes: memErr.PeakBytes}
	}
	var hardErr *worker.HardTimeLimitExceededError
	if errors.As(err, &hardErr) {
		return &model.CaseError{Kind: model.CaseErrorHardTimeLimitExceeded}
	}
	return &model.CaseError{Kind: model.CaseErrorJudge, Message: err.Error()}
}

func failWhole(h *Handle, cerr *model.CaseError) {
	state := h.States.Current()
	state.StartFirst()
	status := model.CaseStatusFromCaseError(cerr, true)
	state.CompleteCase(status)
	_ = h.States.Publish(state)
}
