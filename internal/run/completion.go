package run

import (
	"context"
	"sync"
	"time"

	"github.com/kkloberdanz/judgerun/internal/model"
)

// ScoringPort reports the two gates checked before a job's outcome is
// allowed to affect a contest leaderboard: whether the contest is currently
// running, and whether the submitting user is a judge (judge submissions
// and practice runs never score).
type ScoringPort interface {
	ContestRunning(ctx context.Context, contestID int64) (bool, error)
	IsJudge(ctx context.Context, contestID, userID int64) (bool, error)
}

// CompletionPort records the leaderboard effect of one job's final outcome:
// the first accepted run for a problem sets CompletedAt, and each
// penalizable failure logged before that first success increments
// NumberWrong. RunManager only calls this once ScoringPort confirms the
// contest is running and the user isn't a judge.
type CompletionPort interface {
	RecordCompletion(ctx context.Context, req model.JobRequest, success bool, penaltyApplies bool) error
}

// CompletionRecord is one user's leaderboard-relevant state for a problem
// within a contest. A zero CompletedAt means the problem isn't solved yet.
type CompletionRecord struct {
	NumberWrong int64
	CompletedAt time.Time
}

type completionKey struct {
	ContestID int64
	ProblemID int64
	UserID    int64
}

// InMemoryCompletionPort is a process-local CompletionPort, sufficient for a
// single-instance deployment; a clustered deployment would back this with a
// shared store instead.
type InMemoryCompletionPort struct {
	mu      sync.Mutex
	records map[completionKey]*CompletionRecord
	now     func() time.Time
}

// NewInMemoryCompletionPort returns an empty InMemoryCompletionPort.
func NewInMemoryCompletionPort() *InMemoryCompletionPort {
	return &InMemoryCompletionPort{
		records: make(map[completionKey]*CompletionRecord),
		now:     time.Now,
	}
}

// RecordCompletion applies one run's outcome to the (contest, problem, user)
// completion record: a success sets CompletedAt if it isn't set already; a
// penalizable failure before that first success increments NumberWrong.
// Once CompletedAt is set, later runs for the same problem no longer affect
// the record, matching a contest leaderboard that only credits the first
// accepted submission.
func (p *InMemoryCompletionPort) RecordCompletion(ctx context.Context, req model.JobRequest, success bool, penaltyApplies bool) error {
	key := completionKey{ContestID: req.ContestID, ProblemID: req.ProblemID, UserID: req.UserID}

	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.records[key]
	if !ok {
		rec = &CompletionRecord{}
		p.records[key] = rec
	}
	if !rec.CompletedAt.IsZero() {
		return nil
	}
	if success {
		rec.CompletedAt = p.now()
	} else if penaltyApplies {
		rec.NumberWrong++
	}
	return nil
}

// Record returns a copy of the completion state for one (contest, problem,
// user), for leaderboard queries and tests.
func (p *InMemoryCompletionPort) Record(contestID, problemID, userID int64) (CompletionRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.records[completionKey{ContestID: contestID, ProblemID: problemID, UserID: userID}]
	if !ok {
		return CompletionRecord{}, false
	}
	return *rec, true
}

// StaticScoringPort is a fixed-answer ScoringPort, useful for tests and for
// deployments with a single always-running practice contest.
type StaticScoringPort struct {
	Running bool
	Judges  map[int64]bool
}

func (s StaticScoringPort) ContestRunning(ctx context.Context, contestID int64) (bool, error) {
	return s.Running, nil
}

func (s StaticScoringPort) IsJudge(ctx context.Context, contestID, userID int64) (bool, error) {
	return s.Judges[userID], nil
}

// jobSucceeded reports whether every case in a job's final state passed,
// the completion-tracking analogue of JobState.LastError finding nothing.
func jobSucceeded(final model.JobState) bool {
	switch final.Kind {
	case model.JobStateTesting:
		return final.Status.Kind == model.CaseStatusPassed
	case model.JobStateJudging:
		if len(final.Cases) == 0 {
			return false
		}
		for _, c := range final.Cases {
			if c.Kind != model.CaseStatusPassed {
				return false
			}
		}
		return true
	default:
		return false
	}
}
