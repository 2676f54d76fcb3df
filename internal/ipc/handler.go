package ipc

// Request and response logging used by the server

import (
	"log"
	"time"
)

// isPollingCmd reports commands clients send continuously; they are not logged
func isPollingCmd(cmd CommandType) bool {
	switch cmd {
	case CmdStatus, CmdView, CmdSfxStatus, CmdSeekDrag:
		return true
	}
	return false
}

// RequestLogger logs incoming requests
func RequestLogger(req *Request) {
	if req.Gesture != "" {
		log.Printf("[IPC] Command: %s (gesture=%s)", req.Cmd, req.Gesture)
		return
	}
	log.Printf("[IPC] Command: %s", req.Cmd)
}

// ResponseLogger logs outgoing responses
func ResponseLogger(resp *Response, duration time.Duration) {
	if resp.Success {
		log.Printf("[IPC] Response: success duration=%v", duration)
	} else {
		log.Printf("[IPC] Response: error=%q duration=%v", resp.Error, duration)
	}
}
