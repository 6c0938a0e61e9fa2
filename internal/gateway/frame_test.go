package gateway

import (
	"encoding/json"
	"testing"

	"github.com/ourchat/ourchat-server/internal/message"
)

func TestNewHelloFrameRoundTrip(t *testing.T) {
	raw, err := NewHelloFrame(30_000)
	if err != nil {
		t.Fatalf("NewHelloFrame: %v", err)
	}

	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if frame.Op != OpcodeHello {
		t.Errorf("Op = %v, want OpcodeHello", frame.Op)
	}

	var data helloData
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		t.Fatalf("unmarshal hello data: %v", err)
	}
	if data.HeartbeatIntervalMS != 30_000 {
		t.Errorf("HeartbeatIntervalMS = %d, want 30000", data.HeartbeatIntervalMS)
	}
}

func TestNewDispatchFrameCarriesMsgID(t *testing.T) {
	raw, err := NewDispatchFrame(42, message.EventNewMessage, json.RawMessage(`{"text":"hi"}`))
	if err != nil {
		t.Fatalf("NewDispatchFrame: %v", err)
	}

	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if frame.Op != OpcodeDispatch {
		t.Errorf("Op = %v, want OpcodeDispatch", frame.Op)
	}
	if frame.MsgID == nil || *frame.MsgID != 42 {
		t.Errorf("MsgID = %v, want 42", frame.MsgID)
	}
	if frame.Type == nil || *frame.Type != message.EventNewMessage {
		t.Errorf("Type = %v, want EventNewMessage", frame.Type)
	}
}

func TestNewDispatchFrameNoIDOmitsMsgID(t *testing.T) {
	raw, err := NewDispatchFrameNoID(message.EventRecall, json.RawMessage(`{"message_id":1}`))
	if err != nil {
		t.Fatalf("NewDispatchFrameNoID: %v", err)
	}

	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if frame.MsgID != nil {
		t.Errorf("MsgID = %v, want nil", frame.MsgID)
	}
}
