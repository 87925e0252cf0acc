// Package media implements the telephony provider's inbound media-stream
// WebSocket endpoint: JSON text frames with an event discriminator of
// connected | start | media | stop, one logical audio stream per streamSid,
// several streams potentially multiplexed over one connection.
package media

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventStop      = "stop"
)

// SessionIDParam is the custom handshake parameter carrying the session
// correlation key on a start frame.
const SessionIDParam = "sessionId"

type DecodeError struct {
	Code    string
	Message string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func badFrame(message string) *DecodeError {
	return &DecodeError{Code: "bad_frame", Message: message}
}

func unsupportedFrame(message string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message}
}

type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// StartPayload is the per-stream handshake. The session identifier travels
// out-of-band in CustomParameters because the connection's own query string
// cannot distinguish multiplexed streams.
type StartPayload struct {
	StreamSid        string            `json:"streamSid"`
	AccountSid       string            `json:"accountSid,omitempty"`
	CallSid          string            `json:"callSid,omitempty"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
	MediaFormat      *MediaFormat      `json:"mediaFormat,omitempty"`
}

func (p *StartPayload) SessionID() string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p.CustomParameters[SessionIDParam])
}

// MediaPayload carries one base64-encoded chunk of narrowband mu-law audio.
type MediaPayload struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

type StopPayload struct {
	StreamSid string `json:"streamSid,omitempty"`
	CallSid   string `json:"callSid,omitempty"`
}

// Frame is the decoded wire envelope. SessionID on the envelope is the
// out-of-order fallback: a media frame may carry the session id directly
// when it races ahead of its start handshake.
type Frame struct {
	Event          string        `json:"event"`
	SequenceNumber string        `json:"sequenceNumber,omitempty"`
	StreamSid      string        `json:"streamSid,omitempty"`
	SessionID      string        `json:"sessionId,omitempty"`
	Start          *StartPayload `json:"start,omitempty"`
	Media          *MediaPayload `json:"media,omitempty"`
	Stop           *StopPayload  `json:"stop,omitempty"`
}

// ResolveStreamSid returns the stream id wherever the provider put it.
func (f Frame) ResolveStreamSid() string {
	if sid := strings.TrimSpace(f.StreamSid); sid != "" {
		return sid
	}
	if f.Start != nil {
		if sid := strings.TrimSpace(f.Start.StreamSid); sid != "" {
			return sid
		}
	}
	if f.Stop != nil {
		return strings.TrimSpace(f.Stop.StreamSid)
	}
	return ""
}

// DecodeFrame parses and shape-checks one inbound frame. Callers treat any
// returned error as a dropped frame, not a fatal one.
func DecodeFrame(data []byte) (Frame, *DecodeError) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Frame{}, badFrame("invalid json frame")
	}
	event := strings.TrimSpace(frame.Event)
	if event == "" {
		return Frame{}, badFrame("missing event")
	}
	frame.Event = event

	switch event {
	case EventConnected:
		return frame, nil
	case EventStart:
		if frame.Start == nil {
			return Frame{}, badFrame("start frame missing start payload")
		}
		if frame.ResolveStreamSid() == "" {
			return Frame{}, badFrame("start frame missing streamSid")
		}
		return frame, nil
	case EventMedia:
		if frame.Media == nil || strings.TrimSpace(frame.Media.Payload) == "" {
			return Frame{}, badFrame("media frame missing payload")
		}
		return frame, nil
	case EventStop:
		if frame.ResolveStreamSid() == "" {
			return Frame{}, badFrame("stop frame missing streamSid")
		}
		return frame, nil
	default:
		return Frame{}, unsupportedFrame("unsupported event " + event)
	}
}
