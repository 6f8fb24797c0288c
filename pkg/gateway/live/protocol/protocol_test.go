package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeClientMessage_Variants(t *testing.T) {
	tests := []struct {
		raw  string
		want ClientMessage
	}{
		{`{"type":"warmup"}`, ClientWarmup{Type: TypeWarmup}},
		{`{"type":"language","lang":" pt "}`, ClientLanguage{Type: TypeLanguage, Lang: "pt"}},
		{`{"type":"chat","text":"What inspired your work?"}`, ClientChat{Type: TypeChat, Text: "What inspired your work?"}},
		{`{"type":"chat","text":"Hola","lang":"es"}`, ClientChat{Type: TypeChat, Text: "Hola", Lang: "es"}},
	}
	for _, tt := range tests {
		got, err := DecodeClientMessage([]byte(tt.raw))
		if err != nil {
			t.Fatalf("DecodeClientMessage(%s) error = %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("DecodeClientMessage(%s)=%#v, want %#v", tt.raw, got, tt.want)
		}
	}
}

func TestDecodeClientMessage_Errors(t *testing.T) {
	tests := []struct {
		raw  string
		code string
	}{
		{`not json`, "bad_request"},
		{`{}`, "bad_request"},
		{`{"type":"chat","text":"   "}`, "bad_request"},
		{`{"type":"chat","text":5}`, "bad_request"},
		{`{"type":"hello"}`, "unsupported"},
	}
	for _, tt := range tests {
		_, err := DecodeClientMessage([]byte(tt.raw))
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("DecodeClientMessage(%s) err=%T %v, want *DecodeError", tt.raw, err, err)
		}
		if de.Code != tt.code {
			t.Fatalf("DecodeClientMessage(%s) code=%q, want %q", tt.raw, de.Code, tt.code)
		}
	}
}

func TestServerMessages_RoundTrip(t *testing.T) {
	msgs := []ServerMessage{
		NewWarmupAck(),
		NewLanguageAck("es"),
		NewComplete("In my work, I've found that names matter."),
		NewError("upstream unavailable"),
	}
	for _, msg := range msgs {
		raw, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("marshal %T: %v", msg, err)
		}
		got, err := DecodeServerMessage(raw)
		if err != nil {
			t.Fatalf("DecodeServerMessage(%s): %v", raw, err)
		}
		if got != msg {
			t.Fatalf("round trip %s: got %#v want %#v", raw, got, msg)
		}
	}
}

func TestDecodeServerMessage_UnknownType(t *testing.T) {
	_, err := DecodeServerMessage([]byte(`{"type":"delta","text":"x"}`))
	var de *DecodeError
	if !errors.As(err, &de) || de.Code != "unsupported" || de.Param != "type" {
		t.Fatalf("err=%v, want unsupported type", err)
	}
	if de.Error() != "unsupported message type (type)" {
		t.Fatalf("Error()=%q", de.Error())
	}
}

func TestWireShape(t *testing.T) {
	raw, _ := json.Marshal(NewChat("Ola", ""))
	if string(raw) != `{"type":"chat","text":"Ola"}` {
		t.Fatalf("chat wire=%s", raw)
	}
	raw, _ = json.Marshal(NewLanguage("pt"))
	if string(raw) != `{"type":"language","lang":"pt"}` {
		t.Fatalf("language wire=%s", raw)
	}
}
