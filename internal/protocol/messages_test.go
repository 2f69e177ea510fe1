package protocol_test

import (
	"encoding/json"
	"testing"

	"github.com/kkloberdanz/judgerun/internal/isolation"
	"github.com/kkloberdanz/judgerun/internal/model"
	"github.com/kkloberdanz/judgerun/internal/protocol"
)

func TestServiceMessageInitialInfoRoundTrip(t *testing.T) {
	msg := protocol.NewInitialInfo(protocol.InitialWorkerInfo{
		DiagnosticInfo: "job-42",
		IsolationConfig: isolation.IsolationConfig{
			Limits: isolation.DefaultLimitConfig(),
		},
		Program:  "print(1)",
		FileName: "main.py",
	})
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got protocol.ServiceMessage
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.InitialInfo == nil {
		t.Fatal("expected InitialInfo to survive the round trip")
	}
	if got.InitialInfo.Program != "print(1)" || got.InitialInfo.FileName != "main.py" {
		t.Fatalf("unexpected InitialInfo: %+v", got.InitialInfo)
	}
}

func TestServiceMessageRunCmdTupleShape(t *testing.T) {
	stdin := "5\n"
	msg := protocol.NewRunCmd(model.CommandInfo{Binary: "/usr/bin/python3", Args: []string{"main.py"}}, &stdin, map[string]string{"HOME": "/home/runner"})

	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string][3]json.RawMessage
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("expected RunCmd to decode as a 3-tuple: %v", err)
	}
	tuple, ok := decoded["RunCmd"]
	if !ok {
		t.Fatalf("expected a RunCmd key, got %s", raw)
	}

	var cmd model.CommandInfo
	if err := json.Unmarshal(tuple[0], &cmd); err != nil {
		t.Fatalf("decode command: %v", err)
	}
	if cmd.Binary != "/usr/bin/python3" {
		t.Fatalf("unexpected command: %+v", cmd)
	}

	var gotStdin *string
	if err := json.Unmarshal(tuple[1], &gotStdin); err != nil {
		t.Fatalf("decode stdin: %v", err)
	}
	if gotStdin == nil || *gotStdin != stdin {
		t.Fatalf("expected stdin %q, got %v", stdin, gotStdin)
	}

	var got protocol.ServiceMessage
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("round trip unmarshal: %v", err)
	}
	if got.RunCmd == nil || got.RunCmd.Command.Binary != "/usr/bin/python3" {
		t.Fatalf("unexpected round trip: %+v", got.RunCmd)
	}
}

func TestServiceMessageRunCmdNilStdin(t *testing.T) {
	msg := protocol.NewRunCmd(model.CommandInfo{Binary: "/bin/true"}, nil, nil)
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got protocol.ServiceMessage
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.RunCmd.Stdin != nil {
		t.Fatalf("expected nil stdin to survive the round trip, got %v", *got.RunCmd.Stdin)
	}
}

func TestServiceMessageStopAndUidGidMapResult(t *testing.T) {
	stop := protocol.NewStop()
	raw, err := json.Marshal(stop)
	if err != nil {
		t.Fatalf("marshal stop: %v", err)
	}
	var got protocol.ServiceMessage
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal stop: %v", err)
	}
	if !got.Stop {
		t.Fatal("expected Stop to round trip true")
	}

	mapped := protocol.NewUidGidMapResult(true)
	raw, err = json.Marshal(mapped)
	if err != nil {
		t.Fatalf("marshal uidgidmapresult: %v", err)
	}
	got = protocol.ServiceMessage{}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal uidgidmapresult: %v", err)
	}
	if got.UidGidMapResult == nil || !*got.UidGidMapResult {
		t.Fatalf("expected UidGidMapResult true, got %v", got.UidGidMapResult)
	}
}
