package voiceagent

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
)

// Control message type tags.
const (
	TypeSettings     = "Settings"
	TypeUpdatePrompt = "UpdatePrompt"
	TypeUpdateSpeak  = "UpdateSpeak"
	TypeKeepAlive    = "KeepAlive"
)

// Event types the agent sends back as text frames.
const (
	EventWelcome              = "Welcome"
	EventSettingsApplied      = "SettingsApplied"
	EventConversationText     = "ConversationText"
	EventUserStartedSpeaking  = "UserStartedSpeaking"
	EventAgentThinking        = "AgentThinking"
	EventAgentStartedSpeaking = "AgentStartedSpeaking"
	EventAgentAudioDone       = "AgentAudioDone"
	EventFunctionCallRequest  = "FunctionCallRequest"
	EventError                = "Error"
	EventWarning              = "Warning"
)

// ControlMessage is one of *Settings, *UpdatePrompt, *UpdateSpeak or *KeepAlive.
type ControlMessage interface {
	MessageType() string
}

// Settings establishes the contract for the whole session and must be the
// first message after the socket opens.
type Settings struct {
	Audio        AudioSettings `json:"audio"`
	Agent        AgentSettings `json:"agent"`
	Language     string        `json:"language,omitempty"`
	Experimental bool          `json:"experimental,omitempty"`
}

type AudioSettings struct {
	Input  AudioInput  `json:"input"`
	Output AudioOutput `json:"output"`
}

type AudioInput struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

type AudioOutput struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
	Container  string `json:"container,omitempty"`
}

type AgentSettings struct {
	Listen   ListenSettings `json:"listen"`
	Think    ThinkSettings  `json:"think"`
	Speak    SpeakSettings  `json:"speak"`
	Greeting string         `json:"greeting,omitempty"`
}

type Provider struct {
	Type  string `json:"type"`
	Model string `json:"model"`
}

type ListenSettings struct {
	Provider Provider `json:"provider"`
}

type ThinkSettings struct {
	Provider  Provider   `json:"provider"`
	Prompt    string     `json:"prompt"`
	Functions []Function `json:"functions,omitempty"`
}

type SpeakSettings struct {
	Provider Provider `json:"provider"`
}

// Function is a callable the agent's think stage may invoke over HTTP.
type Function struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Parameters  Parameter        `json:"parameters"`
	Endpoint    FunctionEndpoint `json:"endpoint"`
}

// Parameter is a JSON-schema-like parameter description. The zero value
// encodes as an empty object.
type Parameter struct {
	Type        string               `json:"type,omitempty"`
	Description string               `json:"description,omitempty"`
	Properties  map[string]Parameter `json:"properties,omitempty"`
	Required    []string             `json:"required,omitempty"`
}

type FunctionEndpoint struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Method  string            `json:"method"`
}

type UpdatePrompt struct {
	Prompt string `json:"prompt"`
}

type UpdateSpeak struct {
	Speak SpeakSettings `json:"speak"`
}

type KeepAlive struct{}

func (Settings) MessageType() string     { return TypeSettings }
func (UpdatePrompt) MessageType() string { return TypeUpdatePrompt }
func (UpdateSpeak) MessageType() string  { return TypeUpdateSpeak }
func (KeepAlive) MessageType() string    { return TypeKeepAlive }

func (m Settings) MarshalJSON() ([]byte, error) {
	type alias Settings
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{TypeSettings, alias(m)})
}

func (m UpdatePrompt) MarshalJSON() ([]byte, error) {
	type alias UpdatePrompt
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{TypeUpdatePrompt, alias(m)})
}

func (m UpdateSpeak) MarshalJSON() ([]byte, error) {
	type alias UpdateSpeak
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{TypeUpdateSpeak, alias(m)})
}

func (KeepAlive) MarshalJSON() ([]byte, error) {
	return []byte(`{"type":"KeepAlive"}`), nil
}

// EncodeControlMessage renders msg as the payload of a single text frame.
func EncodeControlMessage(msg ControlMessage) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("encode control message: %w", ErrUnknownMessage)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.MessageType(), err)
	}
	return data, nil
}

// DecodeControlMessage parses a client control message.
func DecodeControlMessage(data []byte) (ControlMessage, error) {
	msgType, err := PeekEventType(data)
	if err != nil {
		return nil, err
	}

	var msg ControlMessage
	switch msgType {
	case TypeSettings:
		msg = &Settings{}
	case TypeUpdatePrompt:
		msg = &UpdatePrompt{}
	case TypeUpdateSpeak:
		msg = &UpdateSpeak{}
	case TypeKeepAlive:
		return &KeepAlive{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, msgType)
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", msgType, err)
	}
	return msg, nil
}

// PeekEventType returns the "type" tag of a JSON text frame.
func PeekEventType(data []byte) (string, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", fmt.Errorf("peek message type: %w", err)
	}
	if head.Type == "" {
		return "", fmt.Errorf("peek message type: %w: missing type", ErrUnknownMessage)
	}
	return head.Type, nil
}

// AgentEvent holds the common fields of agent events that consumers usually
// care about. Unknown fields are ignored.
type AgentEvent struct {
	Type        string `json:"type"`
	Role        string `json:"role,omitempty"`
	Content     string `json:"content,omitempty"`
	Description string `json:"description,omitempty"`
	Code        string `json:"code,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
}

// DecodeAgentEvent parses a text frame received from the agent.
func DecodeAgentEvent(data []byte) (*AgentEvent, error) {
	var ev AgentEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode agent event: %w", err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("decode agent event: %w: missing type", ErrUnknownMessage)
	}
	return &ev, nil
}

// frameKindFromWS maps a gorilla message type onto a FrameKind.
func frameKindFromWS(messageType int) (FrameKind, bool) {
	switch messageType {
	case websocket.TextMessage:
		return FrameText, true
	case websocket.BinaryMessage:
		return FrameBinary, true
	default:
		return 0, false
	}
}

// DefaultSettings builds a Settings message for linear16 audio at the
// configured rates.
func DefaultSettings(cfg *Config) *Settings {
	return &Settings{
		Audio: AudioSettings{
			Input: AudioInput{
				Encoding:   "linear16",
				SampleRate: cfg.InputSampleRate,
			},
			Output: AudioOutput{
				Encoding:   "linear16",
				SampleRate: cfg.OutputSampleRate,
				Container:  "none",
			},
		},
		Agent: AgentSettings{
			Listen: ListenSettings{Provider: Provider{Type: "deepgram", Model: "nova-3"}},
			Think: ThinkSettings{
				Provider: Provider{Type: "open_ai", Model: "gpt-4o-mini"},
				Prompt:   "You are a helpful voice assistant. Keep answers short and conversational.",
			},
			Speak:    SpeakSettings{Provider: Provider{Type: "deepgram", Model: "aura-2-thalia-en"}},
			Greeting: "Hello! How can I help you today?",
		},
	}
}
