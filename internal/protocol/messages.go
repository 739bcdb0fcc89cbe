// Package protocol defines the signaling messages exchanged with the
// voice backend over the websocket channel. Control messages are JSON
// text frames; audio chunks travel as raw binary frames and never pass
// through this codec.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies signaling payload variants.
type MessageType string

const (
	TypeInit          MessageType = "init"
	TypeReady         MessageType = "ready"
	TypeOffer         MessageType = "offer"
	TypeAnswer        MessageType = "answer"
	TypeICECandidate  MessageType = "ice-candidate"
	TypeAudioEnd      MessageType = "audio-end"
	TypeTranscription MessageType = "transcription"
	TypeResponse      MessageType = "response"
	TypeError         MessageType = "error"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// SessionDescription mirrors the browser-shaped SDP object the backend
// expects inside offer/answer messages.
type SessionDescription struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

// Candidate mirrors RTCIceCandidateInit.
type Candidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

type Init struct {
	Type       MessageType `json:"type"`
	HospitalID string      `json:"hospital_id"`
	SessionID  string      `json:"session_id,omitempty"`
}

type Ready struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

type Offer struct {
	Type  MessageType        `json:"type"`
	Offer SessionDescription `json:"offer"`
}

type Answer struct {
	Type   MessageType        `json:"type"`
	Answer SessionDescription `json:"answer"`
}

type ICECandidate struct {
	Type      MessageType `json:"type"`
	Candidate Candidate   `json:"candidate"`
}

type AudioEnd struct {
	Type MessageType `json:"type"`
}

type Transcription struct {
	Type MessageType `json:"type"`
	Text string      `json:"text"`
}

// Response carries the assistant reply; Audio is base64-encoded MP3 when
// the backend synthesized speech for this turn.
type Response struct {
	Type  MessageType `json:"type"`
	Text  string      `json:"text"`
	Audio string      `json:"audio,omitempty"`
}

type ErrorMessage struct {
	Type   MessageType `json:"type"`
	Detail string      `json:"error"`
}

// NewInit builds the channel-opening message. SessionID resumes an
// existing backend handle when non-empty.
func NewInit(hospitalID, sessionID string) Init {
	return Init{Type: TypeInit, HospitalID: hospitalID, SessionID: sessionID}
}

func NewOffer(sdp, sdpType string) Offer {
	return Offer{Type: TypeOffer, Offer: SessionDescription{SDP: sdp, Type: sdpType}}
}

func NewICECandidate(c Candidate) ICECandidate {
	return ICECandidate{Type: TypeICECandidate, Candidate: c}
}

func NewAudioEnd() AudioEnd { return AudioEnd{Type: TypeAudioEnd} }

// Encode serializes an outbound message for the channel.
func Encode(msg any) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode signaling message: %w", err)
	}
	return b, nil
}

// ParseServerMessage dispatches an inbound text frame to its typed variant.
// Unknown or malformed frames are the caller's ProtocolError.
func ParseServerMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeReady:
		var msg Ready
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeAnswer:
		var msg Answer
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Answer.SDP == "" {
			return nil, errors.New("invalid answer: empty sdp")
		}
		return msg, nil
	case TypeICECandidate:
		var msg ICECandidate
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Candidate.Candidate == "" {
			return nil, errors.New("invalid ice-candidate: empty candidate")
		}
		return msg, nil
	case TypeTranscription:
		var msg Transcription
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeResponse:
		var msg Response
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeError:
		var msg ErrorMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
