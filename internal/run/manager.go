// Package run implements RunManager, the per-user admission registry that
// guarantees at most one live job per user and wires each accepted
// JobRequest through internal/job to a freshly spawned internal/worker
// Worker.
package run

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/kkloberdanz/judgerun/internal/isolation"
	"github.com/kkloberdanz/judgerun/internal/job"
	"github.com/kkloberdanz/judgerun/internal/model"
	"github.com/kkloberdanz/judgerun/internal/worker"
)

// ErrUserBusy is returned by RequestJob when the user already has a job in
// flight.
var ErrUserBusy = fmt.Errorf("user already has a job in progress")

// ErrNotFound is returned by GetHandle/ShutdownJob for an unknown job id.
var ErrNotFound = fmt.Errorf("job not found")

// PersistencePort records a job's final outcome (score, pass/fail) once it
// completes. Implementations talk to whatever backing store the service
// deploys with; RunManager only needs the interface.
type PersistencePort interface {
	SaveRun(ctx context.Context, req model.JobRequest, final model.JobState) error
}

// WorkerFactory builds the Spawner used for one job, closing over the
// service's shared parent cgroup and isolation config.
type WorkerFactory struct {
	WorkerBinary string
	ParentCgroup *isolation.Cgroup
	Isolation    isolation.IsolationConfig
}

func (f WorkerFactory) spawner() job.Spawner {
	return func(ctx context.Context, recipe model.LanguageRecipe, program string) (*worker.Worker, error) {
		return worker.New(ctx, worker.Options{
			WorkerBinary: f.WorkerBinary,
			ParentCgroup: f.ParentCgroup,
			Isolation:    f.Isolation,
			Recipe:       recipe,
			Program:      program,
		})
	}
}

// Manager enforces the one-job-per-user invariant and tracks every live job
// by id for cancellation and state lookup.
type Manager struct {
	mu         sync.Mutex
	byUser     map[int64]uint64
	byID       map[uint64]*job.Handle
	nextID     atomic.Uint64
	spawn      job.Spawner
	persist    PersistencePort
	completion CompletionPort
	scoring    ScoringPort
}

// New creates a Manager backed by factory's worker spawner. persist may be
// nil, in which case completed job outcomes are only logged, not saved.
func New(factory WorkerFactory, persist PersistencePort) *Manager {
	return NewWithSpawner(factory.spawner(), persist)
}

// NewWithSpawner creates a Manager backed by an arbitrary Spawner, letting
// callers substitute a fake worker for admission-logic tests without
// exercising the real isolation/cgroup machinery.
func NewWithSpawner(spawn job.Spawner, persist PersistencePort) *Manager {
	return &Manager{
		byUser:  make(map[int64]uint64),
		byID:    make(map[uint64]*job.Handle),
		spawn:   spawn,
		persist: persist,
	}
}

// RequestJob admits req if the user has no job in flight, assigns it an id,
// and starts it. Returns ErrUserBusy otherwise.
func (m *Manager) RequestJob(ctx context.Context, req model.JobRequest) (*job.Handle, error) {
	m.mu.Lock()
	if _, busy := m.byUser[req.UserID]; busy {
		m.mu.Unlock()
		return nil, ErrUserBusy
	}

	id := m.nextID.Add(1)
	req.ID = id
	m.byUser[req.UserID] = id
	m.mu.Unlock()

	h := job.Start(ctx, req, req.Language, m.spawn)
	m.mu.Lock()
	m.byID[id] = h
	m.mu.Unlock()

	go m.awaitCompletion(req, h)

	return h, nil
}

func (m *Manager) awaitCompletion(req model.JobRequest, h *job.Handle) {
	h.Wait()

	final := h.States.Current()
	ctx := context.Background()

	if m.persist != nil {
		if err := m.persist.SaveRun(ctx, req, final); err != nil {
			slog.Error("save run failed", "job", req.ID, "user", req.UserID, "err", err)
		}
	}

	if m.completion != nil && m.scoring != nil {
		if err := m.recordCompletion(ctx, req, final); err != nil {
			slog.Error("record completion failed", "job", req.ID, "user", req.UserID, "err", err)
		}
	}

	m.mu.Lock()
	delete(m.byID, req.ID)
	if m.byUser[req.UserID] == req.ID {
		delete(m.byUser, req.UserID)
	}
	m.mu.Unlock()
}

// recordCompletion applies a finished job's outcome to the leaderboard,
// gated on the contest actually running and the submitting user not being a
// judge — practice submissions and judge test runs never touch it.
func (m *Manager) recordCompletion(ctx context.Context, req model.JobRequest, final model.JobState) error {
	running, err := m.scoring.ContestRunning(ctx, req.ContestID)
	if err != nil {
		return fmt.Errorf("check contest running: %w", err)
	}
	if !running {
		return nil
	}

	isJudge, err := m.scoring.IsJudge(ctx, req.ContestID, req.UserID)
	if err != nil {
		return fmt.Errorf("check judge status: %w", err)
	}
	if isJudge {
		return nil
	}

	_, penaltyApplies, _ := final.LastError()
	return m.completion.RecordCompletion(ctx, req, jobSucceeded(final), penaltyApplies)
}

// GetHandle returns the live (or just-finished, until GC'd by
// awaitCompletion) handle for a job id.
func (m *Manager) GetHandle(id uint64) (*job.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return h, nil
}

// ShutdownJob cancels a live job early.
func (m *Manager) ShutdownJob(id uint64) error {
	h, err := m.GetHandle(id)
	if err != nil {
		return err
	}
	h.Cancel()
	return nil
}

// Shutdown cancels every live job, for graceful service shutdown.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	handles := make([]*job.Handle, 0, len(m.byID))
	for _, h := range m.byID {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}
	for _, h := range handles {
		h.Wait()
	}
}

// WithScoring attaches contest-completion tracking: once set, every
// completed job is offered to scoring/completion after its outcome is
// persisted. Returns m so it can be chained onto New/NewWithSpawner.
func (m *Manager) WithScoring(completion CompletionPort, scoring ScoringPort) *Manager {
	m.completion = completion
	m.scoring = scoring
	return m
}

// ActiveUserJob returns the job id currently in flight for a user, if any.
func (m *Manager) ActiveUserJob(userID int64) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byUser[userID]
	return id, ok
}
