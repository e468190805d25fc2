package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseClientMessage_Join(t *testing.T) {
	data := []byte(`{"type":"join","gender":"female","pref":"male"}`)

	msgType, msg, err := ParseClientMessage(data)
	if err != nil {
		t.Fatalf("ParseClientMessage error: %v", err)
	}
	if msgType != TypeJoin {
		t.Errorf("msgType = %q, want %q", msgType, TypeJoin)
	}

	join, ok := msg.(JoinMsg)
	if !ok {
		t.Fatalf("msg is %T, want JoinMsg", msg)
	}
	if join.Gender != "female" {
		t.Errorf("Gender = %q, want %q", join.Gender, "female")
	}
	if join.Pref != "male" {
		t.Errorf("Pref = %q, want %q", join.Pref, "male")
	}
}

func TestParseClientMessage_Text(t *testing.T) {
	data := []byte(`{"type":"text-message","message":"hey there"}`)

	msgType, msg, err := ParseClientMessage(data)
	if err != nil {
		t.Fatalf("ParseClientMessage error: %v", err)
	}
	if msgType != TypeTextMessage {
		t.Errorf("msgType = %q, want %q", msgType, TypeTextMessage)
	}

	text, ok := msg.(TextMsg)
	if !ok {
		t.Fatalf("msg is %T, want TextMsg", msg)
	}
	if text.Message != "hey there" {
		t.Errorf("Message = %q, want %q", text.Message, "hey there")
	}
}

func TestParseClientMessage_Signaling(t *testing.T) {
	tests := []struct {
		name    string
		msgType string
	}{
		{"offer", TypeCallOffer},
		{"answer", TypeCallAnswer},
		{"ice candidate", TypeICE},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := []byte(`{"type":"` + tt.msgType + `","payload":{"sdp":"v=0","kind":"test"}}`)

			msgType, msg, err := ParseClientMessage(data)
			if err != nil {
				t.Fatalf("ParseClientMessage error: %v", err)
			}
			if msgType != tt.msgType {
				t.Errorf("msgType = %q, want %q", msgType, tt.msgType)
			}

			sig, ok := msg.(SignalMsg)
			if !ok {
				t.Fatalf("msg is %T, want SignalMsg", msg)
			}

			// The payload must survive untouched.
			var payload map[string]string
			if err := json.Unmarshal(sig.Payload, &payload); err != nil {
				t.Fatalf("payload unmarshal: %v", err)
			}
			if payload["sdp"] != "v=0" {
				t.Errorf("payload sdp = %q, want %q", payload["sdp"], "v=0")
			}
		})
	}
}

func TestParseClientMessage_Report(t *testing.T) {
	data := []byte(`{"type":"report-user","target_id":"abc-123"}`)

	msgType, msg, err := ParseClientMessage(data)
	if err != nil {
		t.Fatalf("ParseClientMessage error: %v", err)
	}
	if msgType != TypeReportUser {
		t.Errorf("msgType = %q, want %q", msgType, TypeReportUser)
	}

	report, ok := msg.(ReportUserMsg)
	if !ok {
		t.Fatalf("msg is %T, want ReportUserMsg", msg)
	}
	if report.TargetID != "abc-123" {
		t.Errorf("TargetID = %q, want %q", report.TargetID, "abc-123")
	}
}

func TestParseClientMessage_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"invalid json", `{not json`},
		{"missing type", `{"message":"hi"}`},
		{"empty type", `{"type":""}`},
		{"unknown type", `{"type":"teleport"}`},
		{"server-only type", `{"type":"matched"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseClientMessage([]byte(tt.input))
			if err == nil {
				t.Errorf("ParseClientMessage(%q) succeeded, want error", tt.input)
			}
		})
	}
}

func TestNewServerMessage_InjectsType(t *testing.T) {
	data, err := NewServerMessage(TypeMatched, MatchedMsg{
		PartnerID: "p1",
		RoomID:    "r1",
	})
	if err != nil {
		t.Fatalf("NewServerMessage error: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if m["type"] != TypeMatched {
		t.Errorf("type = %v, want %q", m["type"], TypeMatched)
	}
	if m["partner_id"] != "p1" {
		t.Errorf("partner_id = %v, want %q", m["partner_id"], "p1")
	}
	if m["room_id"] != "r1" {
		t.Errorf("room_id = %v, want %q", m["room_id"], "r1")
	}
}

func TestNewServerMessage_OverridesStructType(t *testing.T) {
	// Even when the struct carries a stale Type field, the injected one wins.
	data, err := NewServerMessage(TypeBanned, BannedMsg{Type: "something-else"})
	if err != nil {
		t.Fatalf("NewServerMessage error: %v", err)
	}
	if !strings.Contains(string(data), `"type":"banned"`) {
		t.Errorf("output %s does not carry the banned type", data)
	}
}

func TestNewServerMessage_SignalRoundTrip(t *testing.T) {
	payload := json.RawMessage(`{"candidate":"candidate:1 1 UDP 2113","mid":"0"}`)
	data, err := NewServerMessage(TypeICE, ServerSignalMsg{
		From:    "sender-1",
		Payload: payload,
	})
	if err != nil {
		t.Fatalf("NewServerMessage error: %v", err)
	}

	var m struct {
		Type    string          `json:"type"`
		From    string          `json:"from"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Type != TypeICE {
		t.Errorf("type = %q, want %q", m.Type, TypeICE)
	}
	if m.From != "sender-1" {
		t.Errorf("from = %q, want %q", m.From, "sender-1")
	}

	var inner map[string]string
	if err := json.Unmarshal(m.Payload, &inner); err != nil {
		t.Fatalf("payload unmarshal: %v", err)
	}
	if inner["mid"] != "0" {
		t.Errorf("payload mid = %q, want %q", inner["mid"], "0")
	}
}
