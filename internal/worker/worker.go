// Package worker is the service side of one isolated worker process: it
// spawns the self-reexec'd child, drives the namespace/cgroup/uid-gid-map
// handshake, and exchanges ServiceMessage/WorkerMessage lines with it over
// stdio.
package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"

	"github.com/kkloberdanz/judgerun/internal/isolation"
	"github.com/kkloberdanz/judgerun/internal/model"
	"github.com/kkloberdanz/judgerun/internal/protocol"
)

// ErrShuttingDown is returned from RunCmd/RunCase when Finish has already
// been called.
var ErrShuttingDown = fmt.Errorf("worker is shutting down")

// Worker is a single isolated child process plus the cgroup it runs in and
// the stdio pipes used to talk to it. One Worker serves exactly one job.
type Worker struct {
	id       string
	tmpDir   string
	cmd      *exec.Cmd
	cgroup   *isolation.Cgroup
	stdin    io.WriteCloser
	stdout   *bufio.Reader
	childErr chan error

	env       map[string]string
	isolation isolation.IsolationConfig
}

// Options configures the spawn of a new Worker.
type Options struct {
	WorkerBinary string // path to re-exec (os.Executable())
	ParentCgroup *isolation.Cgroup
	Isolation    isolation.IsolationConfig
	Recipe       model.LanguageRecipe
	Program      string
}

// New spawns the worker process, performs the uid/gid-map handshake, and
// waits for the worker to report Ready. The returned Worker is ready to
// accept Compile/RunCmd/RunCase calls.
func New(ctx context.Context, opts Options) (*Worker, error) {
	id := uuid.New().String()

	tmpDir, err := os.MkdirTemp(opts.Isolation.WorkersParent, "worker-")
	if err != nil {
		return nil, fmt.Errorf("create worker tmp dir: %w", err)
	}

	cg, err := opts.ParentCgroup.CreateChild(id, true)
	if err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("create worker cgroup: %w", err)
	}
	if err := cg.ApplyHardLimits(opts.Isolation.Limits); err != nil {
		return nil, fmt.Errorf("apply hard limits: %w", err)
	}

	fd, err := cg.OpenDirFD()
	if err != nil {
		return nil, fmt.Errorf("open cgroup dir fd: %w", err)
	}

	cmd := exec.CommandContext(ctx, opts.WorkerBinary, "--worker")
	cmd.Env = nil // env_clear(): the worker jail controls its own environment
	cmd.Dir = tmpDir
	cmd.SysProcAttr = isolation.BuildSysProcAttr()
	cmd.SysProcAttr.UseCgroupFD = true
	cmd.SysProcAttr.CgroupFD = fd

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open worker stdin: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open worker stdout: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		cg.CloseFD()
		return nil, fmt.Errorf("start worker process: %w", err)
	}

	w := &Worker{
		id:       id,
		tmpDir:   tmpDir,
		cmd:      cmd,
		cgroup:   cg,
		stdin:    stdinPipe,
		stdout:   bufio.NewReader(stdoutPipe),
		childErr:  make(chan error, 1),
		env:       opts.Recipe.Env,
		isolation: opts.Isolation,
	}

	go func() {
		w.childErr <- cmd.Wait()
	}()

	if err := w.bootstrap(opts); err != nil {
		w.killChild()
		return nil, err
	}

	return w, nil
}

// bootstrap drives the InitialInfo/RequestUidGidMap/Ready handshake, bounded
// by the worker's configured internal-message timeout so a child that never
// progresses past bootstrap (stuck mount, hung seccomp install) can't hang
// RequestJob forever. This ceiling only covers the handshake, not user code,
// which is bounded separately by HardTimeoutUserSecs in execCmd.
func (w *Worker) bootstrap(opts Options) error {
	result := make(chan error, 1)
	go func() {
		result <- w.runHandshake(opts)
	}()

	if internalTimeout := time.Duration(opts.Isolation.Limits.HardTimeoutInternalSecs) * time.Second; internalTimeout > 0 {
		select {
		case err := <-result:
			return err
		case <-time.After(internalTimeout):
			return fmt.Errorf("worker bootstrap handshake timed out after %s", internalTimeout)
		}
	}
	return <-result
}

func (w *Worker) runHandshake(opts Options) error {
	if err := w.sendMessage(protocol.NewInitialInfo(protocol.InitialWorkerInfo{
		DiagnosticInfo:  fmt.Sprintf("worker %s", w.id),
		IsolationConfig: opts.Isolation,
		Program:         opts.Program,
		FileName:        opts.Recipe.FileName,
	})); err != nil {
		return fmt.Errorf("send initial info: %w", err)
	}

	if err := w.handshakeUIDGID(); err != nil {
		return err
	}

	msg, err := w.waitForNewMessage()
	if err != nil {
		return fmt.Errorf("wait for Ready: %w", err)
	}
	if !msg.Ready {
		return fmt.Errorf("expected Ready, got %+v", msg)
	}
	return nil
}

func (w *Worker) handshakeUIDGID() error {
	msg, err := w.waitForNewMessage()
	if err != nil {
		return fmt.Errorf("wait for RequestUidGidMap: %w", err)
	}
	if msg.RequestUidGidMap == nil {
		return fmt.Errorf("expected RequestUidGidMap, got %+v", msg)
	}
	pid := *msg.RequestUidGidMap

	mapErr := isolation.MapUIDGID(pid, &w.isolation)
	ok := mapErr == nil
	if mapErr != nil {
		slog.Error("uid/gid mapping failed", "worker", w.id, "err", mapErr)
	}
	if err := w.sendMessage(protocol.NewUidGidMapResult(ok)); err != nil {
		return fmt.Errorf("send UidGidMapResult: %w", err)
	}
	if !ok {
		return fmt.Errorf("uid/gid mapping failed: %w", mapErr)
	}
	return nil
}

func (w *Worker) sendMessage(msg protocol.ServiceMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	_, err = w.stdin.Write(raw)
	return err
}

func (w *Worker) waitForNewMessage() (protocol.WorkerMessage, error) {
	line, err := w.stdout.ReadString('\n')
	if err != nil {
		if len(line) == 0 {
			return protocol.WorkerMessage{}, err
		}
	}
	var msg protocol.WorkerMessage
	if jerr := json.Unmarshal([]byte(line), &msg); jerr != nil {
		return protocol.WorkerMessage{}, fmt.Errorf("decode worker message %q: %w", line, jerr)
	}
	return msg, nil
}

// CPUTimeExceededError reports that the per-case soft CPU-time ceiling
// broke, carrying the cgroup's observed user_usec delta at the moment of
// the break.
type CPUTimeExceededError struct {
	UsedMicros int64
}

func (e *CPUTimeExceededError) Error() string { return "cpu time ceiling exceeded" }

// MemoryLimitExceededError reports that memory.high was breached, carrying
// the peak bytes read back from memory.peak.
type MemoryLimitExceededError struct {
	PeakBytes int64
}

func (e *MemoryLimitExceededError) Error() string { return "memory limit exceeded" }

// HardTimeLimitExceededError reports that the worker's configured
// wall-clock ceiling elapsed before the command finished.
type HardTimeLimitExceededError struct{}

func (e *HardTimeLimitExceededError) Error() string { return "hard time limit exceeded" }

// ApplySoftMemoryLimit sets the worker's cgroup memory.high, the per-problem
// soft memory ceiling whose breach is reported as a MemoryLimitExceededError
// rather than an unrecoverable OOM kill against memory.max.
func (w *Worker) ApplySoftMemoryLimit(bytes uint64) error {
	return w.cgroup.ApplySoftLimits(bytes)
}

// Compile runs the recipe's compile command, if any, returning nil if the
// language has no compile step. Compilation has no CPU-time ceiling of its
// own, only the worker's configured hard wall-clock timeout.
func (w *Worker) Compile(ctx context.Context, recipe model.LanguageRecipe) (protocol.CmdResult, bool, error) {
	if recipe.CompileCommand == nil {
		return protocol.CmdResult{}, false, nil
	}
	res, err := w.execCmd(ctx, *recipe.CompileCommand, nil, recipe.Env, 0)
	return res, true, err
}

// RunCmd runs an arbitrary command with optional stdin, polling the cgroup
// for CPU/memory limit breaks every 100ms. cpuCeilingUsec is the soft
// per-case CPU-time ceiling in microseconds (0 disables the check); the
// hard wall-clock ceiling always comes from the worker's own
// HardTimeoutUserSecs, independent of cpuCeilingUsec.
func (w *Worker) RunCmd(ctx context.Context, cmd model.CommandInfo, stdin *string, env map[string]string, cpuCeilingUsec uint64) (protocol.CmdResult, error) {
	return w.execCmd(ctx, cmd, stdin, env, cpuCeilingUsec)
}

func (w *Worker) execCmd(ctx context.Context, cmd model.CommandInfo, stdin *string, env map[string]string, cpuCeilingUsec uint64) (protocol.CmdResult, error) {
	if err := w.sendMessage(protocol.NewRunCmd(cmd, stdin, env)); err != nil {
		return protocol.CmdResult{}, fmt.Errorf("send RunCmd: %w", err)
	}

	type result struct {
		res protocol.CmdResult
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := w.waitForNewMessage()
		if err != nil {
			done <- result{err: err}
			return
		}
		if msg.InternalError != nil {
			done <- result{err: fmt.Errorf("worker internal error: %s", *msg.InternalError)}
			return
		}
		if msg.CmdComplete == nil {
			done <- result{err: fmt.Errorf("expected CmdComplete, got %+v", msg)}
			return
		}
		done <- result{res: *msg.CmdComplete}
	}()

	baseline, statErr := w.cgroup.GetStats()
	pollTick := time.NewTicker(100 * time.Millisecond)
	defer pollTick.Stop()

	var timeoutCh <-chan time.Time
	if hardTimeout := time.Duration(w.isolation.Limits.HardTimeoutUserSecs) * time.Second; hardTimeout > 0 {
		timer := time.NewTimer(hardTimeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	for {
		select {
		case r := <-done:
			return r.res, r.err
		case <-ctx.Done():
			w.cgroup.Kill()
			return protocol.CmdResult{}, ctx.Err()
		case <-timeoutCh:
			w.cgroup.Kill()
			return protocol.CmdResult{}, &HardTimeLimitExceededError{}
		case <-pollTick.C:
			if statErr != nil {
				continue
			}
			stats, err := w.cgroup.GetStats()
			if err != nil {
				continue
			}
			delta := stats.Sub(baseline)
			if cpuCeilingUsec > 0 && delta.BrokeCPUTime(cpuCeilingUsec) {
				w.cgroup.Kill()
				return protocol.CmdResult{}, &CPUTimeExceededError{UsedMicros: int64(delta.CPUUsageUsec)}
			}
			if delta.BrokeMemoryLimit() {
				w.cgroup.Kill()
				peak, err := w.cgroup.GetMemoryPeak()
				if err != nil {
					peak = 0
				}
				return protocol.CmdResult{}, &MemoryLimitExceededError{PeakBytes: int64(peak)}
			}
		}
	}
}

// RunCase executes a single test case's run command with the case's stdin,
// returning the raw CmdResult for the job engine to interpret against
// the CaseError taxonomy.
func (w *Worker) RunCase(ctx context.Context, recipe model.LanguageRecipe, tc model.TestCase, cpuCeilingUsec uint64) (protocol.CmdResult, error) {
	stdin := tc.Stdin
	return w.execCmd(ctx, recipe.RunCommand, &stdin, recipe.Env, cpuCeilingUsec)
}

func (w *Worker) killChild() {
	if w.cmd.Process != nil {
		_ = w.cmd.Process.Kill()
	}
}

// Finish sends Stop, waits briefly for graceful exit, then tears down the
// cgroup and temp directory. Safe to call multiple times.
func (w *Worker) Finish(killWait time.Duration, giveUpCount uint64) error {
	_ = w.sendMessage(protocol.NewStop())

	select {
	case <-w.childErr:
	case <-time.After(500 * time.Millisecond):
		w.killChild()
		<-w.childErr
	}

	w.stdin.Close()

	if err := w.cgroup.Shutdown(killWait, giveUpCount); err != nil {
		slog.Error("cgroup shutdown failed", "worker", w.id, "err", err)
	}
	if err := os.RemoveAll(w.tmpDir); err != nil {
		return fmt.Errorf("remove worker tmp dir: %w", err)
	}
	return nil
}

// ID returns this worker's identity, used for logging and cgroup naming.
func (w *Worker) ID() string { return w.id }

// TmpDir returns the worker's private tmpfs-backed root directory.
func (w *Worker) TmpDir() string { return w.tmpDir }
