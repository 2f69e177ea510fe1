package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// CmdOutput is the captured stdout/stderr of a finished command.
type CmdOutput struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// CmdExit carries whichever of status/signal the OS reported; exactly one
// is normally set.
type CmdExit struct {
	Status *int `json:"status"`
	Signal *int `json:"signal"`
}

// CmdFailure is a non-zero-exit or signaled command's result.
type CmdFailure struct {
	Output CmdOutput
	Exit   CmdExit
}

func (f CmdFailure) interpretExitStatus() string {
	switch {
	case f.Exit.Status != nil:
		return fmt.Sprintf("Process exited with exit code %d", *f.Exit.Status)
	case f.Exit.Signal != nil:
		if name := unix.SignalName(unix.Signal(*f.Exit.Signal)); name != "" {
			return fmt.Sprintf("Process exited with signal %s (%d)", name, *f.Exit.Signal)
		}
		return fmt.Sprintf("Process exited with signal %d", *f.Exit.Signal)
	default:
		return "Process exited unexpectedly"
	}
}

func (f CmdFailure) stdoutStderr() string {
	stderr := strings.TrimSpace(f.Output.Stderr)
	if stderr == "" {
		return f.Output.Stdout
	}
	return f.Output.Stdout + "\n" + stderr
}

// String renders a CmdFailure the way the service turns it into a Runtime
// error message: the interpreted exit reason, a blank line, then stdout
// with a trailing non-empty stderr appended.
func (f CmdFailure) String() string {
	return fmt.Sprintf("%s\n\n%s", f.interpretExitStatus(), f.stdoutStderr())
}

func (f CmdFailure) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{f.Output, f.Exit})
}

func (f *CmdFailure) UnmarshalJSON(data []byte) error {
	var tuple [2]json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if err := json.Unmarshal(tuple[0], &f.Output); err != nil {
		return err
	}
	return json.Unmarshal(tuple[1], &f.Exit)
}

// CmdResult is either a Success (CmdOutput) or a Failure (CmdFailure).
type CmdResult struct {
	Success *CmdOutput
	Failure *CmdFailure
}

type cmdResultWire struct {
	Success *CmdOutput  `json:"Success,omitempty"`
	Failure *CmdFailure `json:"Failure,omitempty"`
}

func (r CmdResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(cmdResultWire{Success: r.Success, Failure: r.Failure})
}

func (r *CmdResult) UnmarshalJSON(data []byte) error {
	var wire cmdResultWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	r.Success = wire.Success
	r.Failure = wire.Failure
	return nil
}

// ExitStatusToCmdResult builds a CmdResult from a completed os/exec
// invocation's captured output and exit state, mirroring the original
// isolation scheme's `impl From<std::process::Output> for CmdResult`.
func ExitStatusToCmdResult(stdout, stderr string, success bool, exitCode *int, signal *int) CmdResult {
	out := CmdOutput{Stdout: stdout, Stderr: stderr}
	if success {
		return CmdResult{Success: &out}
	}
	return CmdResult{Failure: &CmdFailure{Output: out, Exit: CmdExit{Status: exitCode, Signal: signal}}}
}

// WorkerMessage is one line sent from the worker to the service.
type WorkerMessage struct {
	CmdComplete      *CmdResult
	RequestUidGidMap *int
	InternalError    *string
	Ready            bool
	Cancelled        bool
}

type workerMessageWire struct {
	CmdComplete      *CmdResult `json:"CmdComplete,omitempty"`
	RequestUidGidMap *int       `json:"RequestUidGidMap,omitempty"`
	InternalError    *string    `json:"InternalError,omitempty"`
	Ready            *struct{}  `json:"Ready,omitempty"`
	Cancelled        *struct{}  `json:"Cancelled,omitempty"`
}

func (m WorkerMessage) MarshalJSON() ([]byte, error) {
	wire := workerMessageWire{
		CmdComplete:      m.CmdComplete,
		RequestUidGidMap: m.RequestUidGidMap,
		InternalError:    m.InternalError,
	}
	if m.Ready {
		wire.Ready = &struct{}{}
	}
	if m.Cancelled {
		wire.Cancelled = &struct{}{}
	}
	return json.Marshal(wire)
}

func (m *WorkerMessage) UnmarshalJSON(data []byte) error {
	var wire workerMessageWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	m.CmdComplete = wire.CmdComplete
	m.RequestUidGidMap = wire.RequestUidGidMap
	m.InternalError = wire.InternalError
	m.Ready = wire.Ready != nil
	m.Cancelled = wire.Cancelled != nil
	return nil
}

func NewCmdComplete(r CmdResult) WorkerMessage   { return WorkerMessage{CmdComplete: &r} }
func NewRequestUidGidMap(pid int) WorkerMessage  { return WorkerMessage{RequestUidGidMap: &pid} }
func NewInternalError(reason string) WorkerMessage {
	return WorkerMessage{InternalError: &reason}
}
func NewReady() WorkerMessage     { return WorkerMessage{Ready: true} }
func NewCancelled() WorkerMessage { return WorkerMessage{Cancelled: true} }
