package grpcapi

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kkloberdanz/judgerun/internal/authn"
	"github.com/kkloberdanz/judgerun/internal/model"
	"github.com/kkloberdanz/judgerun/internal/run"
)

// LanguageLookup resolves a language key from a submission to the recipe
// that runs it, and validates the request body, letting grpcapi stay
// independent of wherever recipes/config are loaded from.
type LanguageLookup func(key string) (model.LanguageRecipe, error)

// Server implements the hand-written JudgeRun service.
type Server struct {
	manager  *run.Manager
	recipes  LanguageLookup
	maxBytes int
}

// NewServer builds a Server backed by manager, resolving recipes via
// recipes and enforcing maxProgramBytes on submitted programs.
func NewServer(manager *run.Manager, recipes LanguageLookup, maxProgramBytes int) *Server {
	return &Server{manager: manager, recipes: recipes, maxBytes: maxProgramBytes}
}

// SubmitJudgeRun admits a new job for the caller's identity.
func (s *Server) SubmitJudgeRun(ctx context.Context, req *SubmitJudgeRunRequest) (*SubmitJudgeRunResponse, error) {
	id, err := authn.FromIncomingContext(ctx)
	if err != nil {
		return nil, err
	}

	recipe, err := s.recipes(req.LanguageKey)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "unknown language %q", req.LanguageKey)
	}

	var op model.JobOperation
	if req.TestingStdin != nil {
		op = model.TestingOperation(*req.TestingStdin)
	} else {
		op = model.JudgingOperation(req.Cases)
	}

	jobReq := model.JobRequest{
		UserID:               userHash(id.Username),
		ProblemID:            req.ProblemID,
		ContestID:            req.ContestID,
		Program:              req.Program,
		LanguageKey:          req.LanguageKey,
		Language:             recipe,
		CpuTimeLimitSec:      req.CpuTimeLimitSec,
		SoftMemoryLimitBytes: req.SoftMemoryLimitBytes,
		Op:                   op,
	}
	if err := jobReq.Validate(s.maxBytes); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	h, err := s.manager.RequestJob(ctx, jobReq)
	if err != nil {
		if errors.Is(err, run.ErrUserBusy) {
			return nil, status.Error(codes.FailedPrecondition, "you already have a job in progress")
		}
		return nil, status.Errorf(codes.Internal, "failed to start job: %v", err)
	}

	slog.Info("submitted judge run", "job", h.Request.ID, "user", id.Username, "language", req.LanguageKey)
	return &SubmitJudgeRunResponse{JobID: h.Request.ID}, nil
}

// GetJobState returns the current state snapshot for a job.
func (s *Server) GetJobState(ctx context.Context, req *GetJobStateRequest) (*GetJobStateResponse, error) {
	if _, err := authn.FromIncomingContext(ctx); err != nil {
		return nil, err
	}
	h, err := s.manager.GetHandle(req.JobID)
	if err != nil {
		return nil, status.Error(codes.NotFound, "job not found")
	}
	return &GetJobStateResponse{State: h.States.Current()}, nil
}

// CancelJudgeRun cancels a running job early.
func (s *Server) CancelJudgeRun(ctx context.Context, req *CancelJudgeRunRequest) (*CancelJudgeRunResponse, error) {
	if _, err := authn.FromIncomingContext(ctx); err != nil {
		return nil, err
	}
	if err := s.manager.ShutdownJob(req.JobID); err != nil {
		if errors.Is(err, run.ErrNotFound) {
			return nil, status.Error(codes.NotFound, "job not found")
		}
		return nil, status.Errorf(codes.Internal, "failed to cancel job: %v", err)
	}
	return &CancelJudgeRunResponse{}, nil
}

// StreamJobState streams every state transition of a job until it completes
// or the client disconnects.
func (s *Server) StreamJobState(req *StreamJobStateRequest, send func(*StreamJobStateResponse) error, ctx context.Context) error {
	if _, err := authn.FromIncomingContext(ctx); err != nil {
		return err
	}
	h, err := s.manager.GetHandle(req.JobID)
	if err != nil {
		return status.Error(codes.NotFound, "job not found")
	}

	sub := h.States.Subscribe()
	defer sub.Close()

	for {
		state, ok, err := sub.Next(ctx)
		if err != nil {
			return status.FromContextError(err).Err()
		}
		if !ok {
			return nil
		}
		if sendErr := send(&StreamJobStateResponse{State: state}); sendErr != nil {
			return sendErr
		}
		if state.IsComplete() {
			return nil
		}
	}
}

// userHash derives a stable numeric user id from the authenticated
// certificate's CN, used as the RunManager's per-user admission key. Real
// deployments with a user database should populate JobRequest.UserID from
// it directly instead; this is the identity-only fallback.
func userHash(username string) int64 {
	var h int64 = 1469598103934665603
	for _, b := range []byte(username) {
		h ^= int64(b)
		h *= 1099511628211
	}
	return h
}
