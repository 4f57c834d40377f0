// Package protocol is the JSON wire format of the duplex turn channel.
//
// Client to server:
//
//	{"type":"audio","payload":"<base64 utterance>"}
//	{"type":"timeout"}
//
// Server to client:
//
//	{"type":"audio","content":"<reply text>","audio":"<base64 speech, optional>"}
//	{"type":"error","code":"turn_in_progress","message":"..."}
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	TypeAudio   = "audio"
	TypeTimeout = "timeout"
	TypeError   = "error"
)

// Error codes carried by server error frames.
const (
	CodeTurnInProgress = "turn_in_progress"
	CodeQueueFull      = "queue_full"
	CodeCapacity       = "capacity"
	CodeBadRequest     = "bad_request"
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
	return &DecodeError{Code: CodeBadRequest, Message: message, Param: param}
}

// ClientAudio is one finalized utterance. Payload is the decoded audio container.
type ClientAudio struct {
	Payload []byte
}

// ClientTimeout is the client's idle-deadline signal.
type ClientTimeout struct{}

type clientFrame struct {
	Type    string `json:"type"`
	Payload string `json:"payload,omitempty"`
	// Data is accepted as an alias of Payload for older clients.
	Data string `json:"data,omitempty"`
}

// DecodeClientMessage parses one inbound text frame into ClientAudio or ClientTimeout.
// Any other shape yields a *DecodeError; the caller drops the frame and keeps the call.
func DecodeClientMessage(data []byte) (any, error) {
	var f clientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	switch strings.TrimSpace(f.Type) {
	case "":
		return nil, badRequest("missing type", "type")
	case TypeAudio:
		raw := f.Payload
		if raw == "" {
			raw = f.Data
		}
		if strings.TrimSpace(raw) == "" {
			return nil, badRequest("audio.payload is required", "payload")
		}
		b, err := decodeBase64Payload(raw)
		if err != nil {
			return nil, badRequest("audio.payload is not valid base64", "payload")
		}
		if len(b) == 0 {
			return nil, badRequest("audio.payload is empty", "payload")
		}
		return ClientAudio{Payload: b}, nil
	case TypeTimeout:
		return ClientTimeout{}, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

// EncodeClientAudio builds the audio frame for one utterance.
func EncodeClientAudio(payload []byte) ([]byte, error) {
	return json.Marshal(clientFrame{Type: TypeAudio, Payload: base64.StdEncoding.EncodeToString(payload)})
}

// EncodeClientTimeout builds the idle-timeout frame.
func EncodeClientTimeout() ([]byte, error) {
	return json.Marshal(clientFrame{Type: TypeTimeout})
}

// decodeBase64Payload accepts bare base64 or a data URL ("data:audio/wav;base64,...").
func decodeBase64Payload(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "data:") {
		if i := strings.Index(raw, ","); i >= 0 {
			raw = raw[i+1:]
		}
	}
	return base64.StdEncoding.DecodeString(raw)
}

// ServerTurn is exactly one server turn. Audio is nil for a text-only reply.
type ServerTurn struct {
	Content string
	Audio   []byte
}

// ServerError reports a rejected inbound frame. It never ends the client's wait.
type ServerError struct {
	Code    string
	Message string
}

type serverFrame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Audio   string `json:"audio,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func EncodeServerTurn(t ServerTurn) ([]byte, error) {
	f := serverFrame{Type: TypeAudio, Content: t.Content}
	if len(t.Audio) > 0 {
		f.Audio = base64.StdEncoding.EncodeToString(t.Audio)
	}
	return json.Marshal(f)
}

func EncodeServerError(code, message string) ([]byte, error) {
	return json.Marshal(serverFrame{Type: TypeError, Code: code, Message: message})
}

// DecodeServerMessage parses a server frame into ServerTurn or ServerError.
func DecodeServerMessage(data []byte) (any, error) {
	var f serverFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	switch f.Type {
	case TypeAudio:
		t := ServerTurn{Content: f.Content}
		if strings.TrimSpace(f.Audio) != "" {
			b, err := decodeBase64Payload(f.Audio)
			if err != nil {
				// The turn still ends the client's wait; only playback is lost.
				return t, nil
			}
			t.Audio = b
		}
		return t, nil
	case TypeError:
		return ServerError{Code: f.Code, Message: f.Message}, nil
	case "":
		return nil, badRequest("missing type", "type")
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}
