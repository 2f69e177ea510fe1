// Package workerside implements the --worker entrypoint: the re-exec'd
// child that reads ServiceMessage lines from stdin, isolates itself, and
// writes WorkerMessage lines to stdout.
package workerside

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/kkloberdanz/judgerun/internal/isolation"
	"github.com/kkloberdanz/judgerun/internal/protocol"
)

// Run is the body of `judgerund --worker`: it never returns except by error
// or os.Exit, since by the time it's isolated and chrooted there is no
// meaningful way to unwind back into the service binary.
func Run() error {
	in := bufio.NewReader(os.Stdin)
	out := os.Stdout

	info, err := readInitialInfo(in)
	if err != nil {
		return fmt.Errorf("read initial info: %w", err)
	}

	waitForIDMapping := func() error {
		pid := os.Getpid()
		if err := writeMessage(out, protocol.NewRequestUidGidMap(pid)); err != nil {
			return err
		}
		msg, err := readServiceMessage(in)
		if err != nil {
			return err
		}
		if msg.UidGidMapResult == nil {
			return fmt.Errorf("expected UidGidMapResult, got %+v", msg)
		}
		if !*msg.UidGidMapResult {
			return fmt.Errorf("service reported uid/gid mapping failure")
		}
		return nil
	}

	root, err := os.MkdirTemp("", "jail-")
	if err != nil {
		return writeInternalError(out, fmt.Errorf("create jail root: %w", err))
	}

	if err := isolation.Isolate(&info.IsolationConfig, root, waitForIDMapping); err != nil {
		return writeInternalError(out, fmt.Errorf("isolate: %w", err))
	}

	programPath := filepath.Join("/home/runner", info.FileName)
	if err := os.WriteFile(programPath, []byte(info.Program), 0o644); err != nil {
		return writeInternalError(out, fmt.Errorf("write submitted program: %w", err))
	}

	if err := writeMessage(out, protocol.NewReady()); err != nil {
		return err
	}

	return serveLoop(in, out)
}

func serveLoop(in *bufio.Reader, out io.Writer) error {
	for {
		msg, err := readServiceMessage(in)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("read service message: %w", err)
		}

		switch {
		case msg.Stop:
			return nil
		case msg.RunCmd != nil:
			result := runOne(*msg.RunCmd)
			if err := writeMessage(out, protocol.NewCmdComplete(result)); err != nil {
				return err
			}
		default:
			if err := writeMessage(out, protocol.NewInternalError(fmt.Sprintf("unexpected message %+v", msg))); err != nil {
				return err
			}
		}
	}
}

func runOne(payload protocol.RunCmdPayload) protocol.CmdResult {
	cmd := exec.Command(payload.Command.Binary, payload.Command.Args...)
	cmd.Env = envSlice(payload.Env)

	if payload.Stdin != nil {
		cmd.Stdin = bytes.NewBufferString(*payload.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return protocol.ExitStatusToCmdResult(stdout.String(), stderr.String(), true, nil, nil)
	}

	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		// Command never started (binary missing, permission denied, ...).
		stderr.WriteString(err.Error())
		return protocol.ExitStatusToCmdResult(stdout.String(), stderr.String(), false, nil, nil)
	}

	var code *int
	var signal *int
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if ok && status.Signaled() {
		s := int(status.Signal())
		signal = &s
	} else {
		c := exitErr.ExitCode()
		code = &c
	}
	return protocol.ExitStatusToCmdResult(stdout.String(), stderr.String(), false, code, signal)
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

func readInitialInfo(in *bufio.Reader) (*protocol.InitialWorkerInfo, error) {
	msg, err := readServiceMessage(in)
	if err != nil {
		return nil, err
	}
	if msg.InitialInfo == nil {
		return nil, fmt.Errorf("expected InitialInfo, got %+v", msg)
	}
	return msg.InitialInfo, nil
}

func readServiceMessage(in *bufio.Reader) (protocol.ServiceMessage, error) {
	line, err := in.ReadString('\n')
	if err != nil && len(line) == 0 {
		return protocol.ServiceMessage{}, err
	}
	var msg protocol.ServiceMessage
	if jerr := json.Unmarshal([]byte(line), &msg); jerr != nil {
		return protocol.ServiceMessage{}, fmt.Errorf("decode service message %q: %w", line, jerr)
	}
	return msg, nil
}

func writeMessage(out io.Writer, msg protocol.WorkerMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	_, err = out.Write(raw)
	return err
}

func writeInternalError(out io.Writer, cause error) error {
	_ = writeMessage(out, protocol.NewInternalError(cause.Error()))
	return cause
}

// RunTestShell is the body of `judgerund --worker-test-shell`: it performs
// the same isolation sequence as Run but then exec's an interactive shell
// instead of serving the RunCmd protocol, for operators to manually poke at
// the jail. It never returns on success — exec replaces the process image.
func RunTestShell(cfg *isolation.IsolationConfig) error {
	root, err := os.MkdirTemp("", "jail-test-")
	if err != nil {
		return fmt.Errorf("create jail root: %w", err)
	}

	waitForIDMapping := func() error {
		// No service handshake in test-shell mode: the caller is expected
		// to have already run MapUIDGID against our own PID before we get
		// here (see cmd/judgerund's --worker-test-shell wiring).
		return nil
	}

	if err := isolation.Isolate(cfg, root, waitForIDMapping); err != nil {
		return fmt.Errorf("isolate: %w", err)
	}

	shell := "/bin/bash"
	return syscall.Exec(shell, []string{shell}, os.Environ())
}
