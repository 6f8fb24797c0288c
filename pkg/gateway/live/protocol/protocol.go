package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	TypeWarmup   = "warmup"
	TypeLanguage = "language"
	TypeChat     = "chat"

	TypeWarmupAck   = "warmup_ack"
	TypeLanguageAck = "language_ack"
	TypeComplete    = "complete"
	TypeError       = "error"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// ClientMessage is implemented by every client->server frame.
type ClientMessage interface {
	clientMessage()
	MessageType() string
}

// ServerMessage is implemented by every server->client frame.
type ServerMessage interface {
	serverMessage()
	MessageType() string
}

type ClientWarmup struct {
	Type string `json:"type"`
}

type ClientLanguage struct {
	Type string `json:"type"`
	Lang string `json:"lang"`
}

type ClientChat struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Lang string `json:"lang,omitempty"`
}

func (ClientWarmup) clientMessage()   {}
func (ClientLanguage) clientMessage() {}
func (ClientChat) clientMessage()     {}

func (ClientWarmup) MessageType() string   { return TypeWarmup }
func (ClientLanguage) MessageType() string { return TypeLanguage }
func (ClientChat) MessageType() string     { return TypeChat }

type ServerWarmupAck struct {
	Type string `json:"type"`
}

type ServerLanguageAck struct {
	Type string `json:"type"`
	Lang string `json:"lang"`
}

type ServerComplete struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ServerError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (ServerWarmupAck) serverMessage()   {}
func (ServerLanguageAck) serverMessage() {}
func (ServerComplete) serverMessage()    {}
func (ServerError) serverMessage()       {}

func (ServerWarmupAck) MessageType() string   { return TypeWarmupAck }
func (ServerLanguageAck) MessageType() string { return TypeLanguageAck }
func (ServerComplete) MessageType() string    { return TypeComplete }
func (ServerError) MessageType() string       { return TypeError }

func NewWarmup() ClientWarmup { return ClientWarmup{Type: TypeWarmup} }

func NewLanguage(lang string) ClientLanguage {
	return ClientLanguage{Type: TypeLanguage, Lang: lang}
}

func NewChat(text, lang string) ClientChat {
	return ClientChat{Type: TypeChat, Text: text, Lang: lang}
}

func NewWarmupAck() ServerWarmupAck { return ServerWarmupAck{Type: TypeWarmupAck} }

func NewLanguageAck(lang string) ServerLanguageAck {
	return ServerLanguageAck{Type: TypeLanguageAck, Lang: lang}
}

func NewComplete(text string) ServerComplete {
	return ServerComplete{Type: TypeComplete, Text: text}
}

func NewError(message string) ServerError {
	return ServerError{Type: TypeError, Message: message}
}

func decodeType(data []byte) (string, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return "", badRequest("missing type", "type")
	}
	return typ, nil
}

func DecodeClientMessage(data []byte) (ClientMessage, error) {
	typ, err := decodeType(data)
	if err != nil {
		return nil, err
	}

	switch typ {
	case TypeWarmup:
		return NewWarmup(), nil
	case TypeLanguage:
		var msg ClientLanguage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid language frame", "")
		}
		msg.Type = TypeLanguage
		msg.Lang = strings.TrimSpace(msg.Lang)
		return msg, nil
	case TypeChat:
		var msg ClientChat
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid chat frame", "")
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, badRequest("chat.text is required", "text")
		}
		msg.Type = TypeChat
		msg.Lang = strings.TrimSpace(msg.Lang)
		return msg, nil
	default:
		return nil, unsupported("unsupported message type", "type")
	}
}

func DecodeServerMessage(data []byte) (ServerMessage, error) {
	typ, err := decodeType(data)
	if err != nil {
		return nil, err
	}

	switch typ {
	case TypeWarmupAck:
		return NewWarmupAck(), nil
	case TypeLanguageAck:
		var msg ServerLanguageAck
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid language_ack frame", "")
		}
		msg.Type = TypeLanguageAck
		return msg, nil
	case TypeComplete:
		var msg ServerComplete
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid complete frame", "")
		}
		msg.Type = TypeComplete
		return msg, nil
	case TypeError:
		var msg ServerError
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid error frame", "")
		}
		msg.Type = TypeError
		return msg, nil
	default:
		return nil, unsupported("unsupported message type", "type")
	}
}
