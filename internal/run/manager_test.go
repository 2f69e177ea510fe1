package run_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kkloberdanz/judgerun/internal/model"
	"github.com/kkloberdanz/judgerun/internal/run"
	"github.com/kkloberdanz/judgerun/internal/worker"
)

var errSpawnUnavailable = errors.New("worker spawning unavailable in this test")

func failingSpawner(ctx context.Context, recipe model.LanguageRecipe, program string) (*worker.Worker, error) {
	return nil, errSpawnUnavailable
}

func newJudgingRequest(userID int64) model.JobRequest {
	return model.JobRequest{
		UserID: userID,
		Op:     model.JudgingOperation([]model.TestCase{{ExpectedPattern: "ok"}}),
	}
}

func TestRequestJobRejectsSecondJobForSameUser(t *testing.T) {
	m := run.NewWithSpawner(failingSpawner, nil)

	h1, err := m.RequestJob(context.Background(), newJudgingRequest(1))
	if err != nil {
		t.Fatalf("first request: %v", err)
	}

	_, err = m.RequestJob(context.Background(), newJudgingRequest(1))
	if !errors.Is(err, run.ErrUserBusy) {
		t.Fatalf("expected ErrUserBusy, got %v", err)
	}

	h1.Wait()
}

func TestRequestJobAllowsDifferentUsersConcurrently(t *testing.T) {
	m := run.NewWithSpawner(failingSpawner, nil)

	h1, err := m.RequestJob(context.Background(), newJudgingRequest(1))
	if err != nil {
		t.Fatalf("user 1 request: %v", err)
	}
	h2, err := m.RequestJob(context.Background(), newJudgingRequest(2))
	if err != nil {
		t.Fatalf("user 2 request: %v", err)
	}
	if h1.Request.ID == h2.Request.ID {
		t.Fatal("expected distinct job ids for distinct requests")
	}

	h1.Wait()
	h2.Wait()
}

func TestActiveUserJobClearedAfterCompletion(t *testing.T) {
	m := run.NewWithSpawner(failingSpawner, nil)

	h, err := m.RequestJob(context.Background(), newJudgingRequest(7))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, ok := m.ActiveUserJob(7); !ok {
		t.Fatal("expected an active job for user 7 immediately after admission")
	}

	h.Wait()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := m.ActiveUserJob(7); !ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected user 7's slot to free up after the job finished")
}

func TestGetHandleUnknownJob(t *testing.T) {
	m := run.NewWithSpawner(failingSpawner, nil)
	if _, err := m.GetHandle(999); !errors.Is(err, run.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestShutdownJobUnknown(t *testing.T) {
	m := run.NewWithSpawner(failingSpawner, nil)
	if err := m.ShutdownJob(999); !errors.Is(err, run.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestShutdownCancelsAllLiveJobs(t *testing.T) {
	m := run.NewWithSpawner(failingSpawner, nil)
	if _, err := m.RequestJob(context.Background(), newJudgingRequest(1)); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := m.RequestJob(context.Background(), newJudgingRequest(2)); err != nil {
		t.Fatalf("request: %v", err)
	}

	done := make(chan struct{})
	go func() {
		m.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return in time")
	}
}

type recordingPersist struct {
	ch chan model.JobState
}

func (p *recordingPersist) SaveRun(ctx context.Context, req model.JobRequest, final model.JobState) error {
	p.ch <- final
	return nil
}

func TestRequestJobPersistsFinalStateOnSpawnFailure(t *testing.T) {
	persist := &recordingPersist{ch: make(chan model.JobState, 1)}
	m := run.NewWithSpawner(failingSpawner, persist)

	if _, err := m.RequestJob(context.Background(), newJudgingRequest(3)); err != nil {
		t.Fatalf("request: %v", err)
	}

	select {
	case final := <-persist.ch:
		if !final.IsComplete() {
			t.Fatal("expected the persisted state to be complete")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the job's final state to be persisted")
	}
}
