// Package ipc handles inter-process communication between the daemon and clients.
package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/austinkregel/local-media/soundboardd/internal/sfx"
)

// CommandType represents the type of command
type CommandType string

const (
	CmdStatus CommandType = "status"
	CmdView   CommandType = "view"

	// Music transport
	CmdSelectTrack CommandType = "selectTrack"
	CmdToggleTrack CommandType = "toggleTrack"
	CmdPlay        CommandType = "play"
	CmdPause       CommandType = "pause"
	CmdTogglePause CommandType = "togglePause"
	CmdStop        CommandType = "stop"
	CmdSkip        CommandType = "skip"
	CmdRestart     CommandType = "restart"
	CmdSeek        CommandType = "seek"
	CmdSeekBegin   CommandType = "seekBegin"
	CmdSeekDrag    CommandType = "seekDrag"
	CmdSeekEnd     CommandType = "seekEnd"
	CmdVolume      CommandType = "volume"
	CmdMute        CommandType = "mute"
	CmdLoop        CommandType = "loop"
	CmdShuffle     CommandType = "shuffle"

	// Sound effects
	CmdSfxTrigger CommandType = "sfxTrigger"
	CmdSfxStopAll CommandType = "sfxStopAll"
	CmdSfxVolume  CommandType = "sfxVolume"
	CmdSfxStatus  CommandType = "sfxStatus"

	// Status push
	CmdSubscribe   CommandType = "subscribe"
	CmdUnsubscribe CommandType = "unsubscribe"
)

// PushMessage represents a server-initiated message (no request needed)
type PushMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Request represents a client request. Gesture names the user input that
// caused it (click, key, touch, pointer, wheel), if any.
type Request struct {
	Cmd     CommandType     `json:"cmd"`
	Gesture string          `json:"gesture,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Response represents a server response
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// TrackRequest is the data for selectTrack and toggleTrack
type TrackRequest struct {
	Filename string `json:"filename"`
}

// SeekRequest is the data for seek, seekDrag and seekEnd
type SeekRequest struct {
	Position float64 `json:"position"` // seconds
}

// VolumeRequest is the data for volume and sfxVolume
type VolumeRequest struct {
	Level float64 `json:"level"` // 0.0 - 1.0
}

// ToggleRequest is the data for mute, loop and shuffle. Without Enabled the
// current setting is flipped.
type ToggleRequest struct {
	Enabled *bool `json:"enabled,omitempty"`
}

// ViewRequest is the data for view
type ViewRequest struct {
	Filter string `json:"filter,omitempty"`
}

// SfxRequest is the data for sfxTrigger
type SfxRequest struct {
	Key string `json:"key"`
}

// SfxTriggerResponse is the response to sfxTrigger. Instance is nil when the
// trigger stopped a playing effect.
type SfxTriggerResponse struct {
	Playing  bool          `json:"playing"`
	Instance *sfx.Instance `json:"instance,omitempty"`
}

// SfxStatusResponse is the response to the sound-effect commands
type SfxStatusResponse struct {
	Volume float64  `json:"volume"`
	Active []string `json:"active"`
}

// EncodeRequest encodes a request to JSON
func EncodeRequest(req *Request) ([]byte, error) {
	return json.Marshal(req)
}

// DecodeRequest decodes a request from JSON
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	return &req, nil
}

// EncodeResponse encodes a response to JSON
func EncodeResponse(resp *Response) ([]byte, error) {
	return json.Marshal(resp)
}

// DecodeResponse decodes a response from JSON
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}

// NewRequest creates a request with data marshaled to JSON
func NewRequest(cmd CommandType, gesture string, data interface{}) (*Request, error) {
	req := &Request{Cmd: cmd, Gesture: gesture}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		req.Data = raw
	}
	return req, nil
}

// NewSuccessResponse creates a successful response
func NewSuccessResponse(data interface{}) (*Response, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}
	return &Response{
		Success: true,
		Data:    rawData,
	}, nil
}

// NewErrorResponse creates an error response
func NewErrorResponse(err string) *Response {
	return &Response{
		Success: false,
		Error:   err,
	}
}

// NewPushMessage creates a push message for subscribed clients
func NewPushMessage(msgType string, data interface{}) ([]byte, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}
	msg := PushMessage{
		Type: msgType,
		Data: rawData,
	}
	return json.Marshal(msg)
}
