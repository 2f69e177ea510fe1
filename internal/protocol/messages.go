// Package protocol implements the newline-delimited JSON framing exchanged
// between the service and a worker process over the worker's stdio: the
// ServiceMessage/WorkerMessage/CmdResult tagged-union wire types and their
// single-key-object encoding.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/kkloberdanz/judgerun/internal/isolation"
	"github.com/kkloberdanz/judgerun/internal/model"
)

// InitialWorkerInfo is the payload of the first ServiceMessage a worker
// receives: everything it needs to isolate itself and start serving
// commands.
type InitialWorkerInfo struct {
	DiagnosticInfo  string                   `json:"diagnostic_info"`
	IsolationConfig isolation.IsolationConfig `json:"isolation_config"`
	Program         string                   `json:"program"`
	FileName        string                   `json:"file_name"`
}

// ServiceMessage is one line sent from the service to the worker.
type ServiceMessage struct {
	InitialInfo    *InitialWorkerInfo
	RunCmd         *RunCmdPayload
	UidGidMapResult *bool
	Stop           bool
}

// RunCmdPayload is the payload of a RunCmd ServiceMessage: the command to
// run, optional stdin, and the environment to run it with.
type RunCmdPayload struct {
	Command model.CommandInfo
	Stdin   *string
	Env     map[string]string
}

type serviceMessageWire struct {
	InitialInfo     *InitialWorkerInfo `json:"InitialInfo,omitempty"`
	RunCmd          *runCmdWire        `json:"RunCmd,omitempty"`
	UidGidMapResult *bool              `json:"UidGidMapResult,omitempty"`
	Stop            *struct{}          `json:"Stop,omitempty"`
}

type runCmdWire struct {
	Command model.CommandInfo `json:"0"`
	Stdin   *string           `json:"1"`
	Env     map[string]string `json:"2"`
}

// RunCmd's wire shape is a 3-tuple:
// {"RunCmd":[{"binary":...,"args":[...]}, <stdin or null>, {env...}]}
func (p *RunCmdPayload) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{p.Command, p.Stdin, p.Env})
}

func (p *RunCmdPayload) UnmarshalJSON(data []byte) error {
	var tuple [3]json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if err := json.Unmarshal(tuple[0], &p.Command); err != nil {
		return err
	}
	if err := json.Unmarshal(tuple[1], &p.Stdin); err != nil {
		return err
	}
	return json.Unmarshal(tuple[2], &p.Env)
}

func (m ServiceMessage) MarshalJSON() ([]byte, error) {
	wire := serviceMessageWire{}
	switch {
	case m.InitialInfo != nil:
		wire.InitialInfo = m.InitialInfo
	case m.RunCmd != nil:
		raw, err := m.RunCmd.MarshalJSON()
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]json.RawMessage{"RunCmd": raw})
	case m.UidGidMapResult != nil:
		wire.UidGidMapResult = m.UidGidMapResult
	case m.Stop:
		wire.Stop = &struct{}{}
	default:
		return nil, fmt.Errorf("empty ServiceMessage")
	}
	return json.Marshal(wire)
}

func (m *ServiceMessage) UnmarshalJSON(data []byte) error {
	var wire serviceMessageWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*m = ServiceMessage{}
	switch {
	case wire.InitialInfo != nil:
		m.InitialInfo = wire.InitialInfo
	case wire.UidGidMapResult != nil:
		m.UidGidMapResult = wire.UidGidMapResult
	case wire.Stop != nil:
		m.Stop = true
	default:
		// RunCmd needs manual extraction since its payload is a tuple, not
		// an object the wire struct above can decode generically.
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		if cmdRaw, ok := raw["RunCmd"]; ok {
			var p RunCmdPayload
			if err := p.UnmarshalJSON(cmdRaw); err != nil {
				return err
			}
			m.RunCmd = &p
			return nil
		}
		return fmt.Errorf("unrecognized ServiceMessage: %s", data)
	}
	return nil
}

func NewInitialInfo(info InitialWorkerInfo) ServiceMessage {
	return ServiceMessage{InitialInfo: &info}
}

func NewRunCmd(cmd model.CommandInfo, stdin *string, env map[string]string) ServiceMessage {
	return ServiceMessage{RunCmd: &RunCmdPayload{Command: cmd, Stdin: stdin, Env: env}}
}

func NewUidGidMapResult(ok bool) ServiceMessage {
	return ServiceMessage{UidGidMapResult: &ok}
}

func NewStop() ServiceMessage {
	return ServiceMessage{Stop: true}
}
