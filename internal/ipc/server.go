package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/austinkregel/local-media/soundboardd/internal/catalog"
	"github.com/austinkregel/local-media/soundboardd/internal/sfx"
	"github.com/austinkregel/local-media/soundboardd/internal/transport"
	"github.com/austinkregel/local-media/soundboardd/internal/view"
)

const pushWriteTimeout = time.Second

// Transport is the music controller driven by clients
type Transport interface {
	Status() transport.Status
	Catalog() *catalog.Catalog
	SelectTrack(filename string) error
	ToggleTrack(filename string) error
	Play() error
	Pause() error
	TogglePause() error
	Stop() error
	Skip() error
	Restart() error
	Seek(seconds float64) error
	BeginSeekDrag() error
	DragSeek(seconds float64) error
	EndSeekDrag(seconds float64) error
	SetVolume(v float64) error
	ToggleMute() error
	SetLoop(looping bool) error
	SetShuffle(shuffling bool) error
	UserActivation()
	Gesture(kind transport.GestureKind)
}

// Effects is the sound-effect player driven by clients
type Effects interface {
	Trigger(key string) (*sfx.Instance, error)
	StopAll()
	Active() map[string]bool
	SetMasterVolume(v float64)
	MasterVolume() float64
}

// client is a connected socket. Responses and pushes share the connection,
// so writes are serialized.
type client struct {
	conn net.Conn
	wmu  sync.Mutex
}

func (c *client) write(line []byte, timeout time.Duration) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if timeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(timeout))
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	_, err := c.conn.Write(line)
	return err
}

// Server handles IPC communication with clients
type Server struct {
	socketPath string
	transport  Transport
	effects    Effects
	paths      view.Paths
	verbose    bool
	listener   net.Listener
	mu         sync.Mutex
	clients    map[net.Conn]*client

	subsMu sync.RWMutex
	subs   map[net.Conn]*client // Clients subscribed to status pushes
}

// NewServer creates a new IPC server
func NewServer(socketPath string, t Transport, fx Effects, paths view.Paths) *Server {
	return &Server{
		socketPath: socketPath,
		transport:  t,
		effects:    fx,
		paths:      paths,
		clients:    make(map[net.Conn]*client),
		subs:       make(map[net.Conn]*client),
	}
}

// SetVerbose enables timing on logged responses
func (s *Server) SetVerbose(verbose bool) {
	s.verbose = verbose
}

// Start starts the IPC server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	// Remove existing socket file if it exists
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	log.Printf("[IPC] Creating socket at %s", s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	// Set socket permissions (user-only)
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	log.Printf("[IPC] Server listening, waiting for connections...")

	go s.acceptLoop(ctx, listener)

	<-ctx.Done()

	log.Printf("[IPC] Shutting down server...")

	s.mu.Lock()
	clientCount := len(s.clients)
	for conn := range s.clients {
		conn.Close()
	}
	s.mu.Unlock()

	log.Printf("[IPC] Closed %d client connections", clientCount)

	listener.Close()
	os.RemoveAll(s.socketPath)

	log.Printf("[IPC] Server stopped")

	return nil
}

func (s *Server) acceptLoop(ctx context.Context, listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.Printf("[IPC] Accept error: %v", err)
				continue
			}
		}

		c := &client{conn: conn}
		s.mu.Lock()
		s.clients[conn] = c
		clientCount := len(s.clients)
		s.mu.Unlock()

		log.Printf("[IPC] Client connected (active: %d)", clientCount)

		go s.handleConnection(ctx, c)
	}
}

func (s *Server) handleConnection(ctx context.Context, c *client) {
	conn := c.conn
	remoteAddr := conn.RemoteAddr().String()

	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.mu.Unlock()
		s.subsMu.Lock()
		delete(s.subs, conn)
		s.subsMu.Unlock()
		log.Printf("[IPC] Client disconnected: %s (active: %d)", remoteAddr, clientCount)
	}()

	reader := bufio.NewReader(conn)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Read line (newline-delimited JSON)
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF {
				log.Printf("[IPC] Read error from %s: %v", remoteAddr, err)
			}
			return
		}

		req, err := DecodeRequest(line)
		if err != nil {
			log.Printf("[IPC] Invalid request format from %s: %v", remoteAddr, err)
			s.sendResponse(c, NewErrorResponse("invalid request format"))
			continue
		}

		quiet := isPollingCmd(req.Cmd)
		if !quiet {
			RequestLogger(req)
		}

		start := time.Now()
		resp := s.handleRequest(c, req)

		if !quiet && (s.verbose || !resp.Success) {
			ResponseLogger(resp, time.Since(start))
		}

		if err := s.sendResponse(c, resp); err != nil {
			log.Printf("[IPC] Write error to %s: %v", remoteAddr, err)
			return
		}
	}
}

// handleRequest runs one command. A qualifying gesture counts as user
// activation for the command itself, then retries playback that was
// blocked before it.
func (s *Server) handleRequest(c *client, req *Request) *Response {
	if kind := transport.GestureKind(req.Gesture); kind.Qualifies() {
		s.transport.UserActivation()
		defer s.transport.Gesture(kind)
	}

	switch req.Cmd {
	case CmdStatus:
		return s.ok(s.transport.Status())
	case CmdView:
		return s.handleView(req)

	case CmdSelectTrack:
		return s.withTrack(req, s.transport.SelectTrack)
	case CmdToggleTrack:
		return s.withTrack(req, s.transport.ToggleTrack)
	case CmdPlay:
		return s.result(s.transport.Play())
	case CmdPause:
		return s.result(s.transport.Pause())
	case CmdTogglePause:
		return s.result(s.transport.TogglePause())
	case CmdStop:
		return s.result(s.transport.Stop())
	case CmdSkip:
		return s.result(s.transport.Skip())
	case CmdRestart:
		return s.result(s.transport.Restart())
	case CmdSeek:
		return s.withSeek(req, s.transport.Seek)
	case CmdSeekBegin:
		return s.result(s.transport.BeginSeekDrag())
	case CmdSeekDrag:
		return s.withSeek(req, s.transport.DragSeek)
	case CmdSeekEnd:
		return s.withSeek(req, s.transport.EndSeekDrag)
	case CmdVolume:
		var r VolumeRequest
		if err := decodeData(req, &r); err != nil {
			return NewErrorResponse(err.Error())
		}
		return s.result(s.transport.SetVolume(r.Level))
	case CmdMute:
		return s.withToggle(req, func(st transport.Status) bool { return st.Muted }, func(bool) error {
			return s.transport.ToggleMute()
		})
	case CmdLoop:
		return s.withToggle(req, func(st transport.Status) bool { return st.Looping }, s.transport.SetLoop)
	case CmdShuffle:
		return s.withToggle(req, func(st transport.Status) bool { return st.Shuffling }, s.transport.SetShuffle)

	case CmdSfxTrigger:
		return s.handleSfxTrigger(req)
	case CmdSfxStopAll:
		s.effects.StopAll()
		return s.ok(s.effectsStatus())
	case CmdSfxVolume:
		var r VolumeRequest
		if err := decodeData(req, &r); err != nil {
			return NewErrorResponse(err.Error())
		}
		s.effects.SetMasterVolume(r.Level)
		return s.ok(s.effectsStatus())
	case CmdSfxStatus:
		return s.ok(s.effectsStatus())

	case CmdSubscribe:
		return s.handleSubscribe(c)
	case CmdUnsubscribe:
		return s.handleUnsubscribe(c)

	default:
		return NewErrorResponse(fmt.Sprintf("unknown command: %s", req.Cmd))
	}
}

func decodeData(req *Request, v interface{}) error {
	if len(req.Data) == 0 {
		return fmt.Errorf("missing data for %s", req.Cmd)
	}
	if err := json.Unmarshal(req.Data, v); err != nil {
		return fmt.Errorf("invalid %s request: %w", req.Cmd, err)
	}
	return nil
}

func (s *Server) ok(data interface{}) *Response {
	resp, err := NewSuccessResponse(data)
	if err != nil {
		return NewErrorResponse(fmt.Sprintf("failed to encode response: %v", err))
	}
	return resp
}

// result answers with the transport status after a successful command
func (s *Server) result(err error) *Response {
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return s.ok(s.transport.Status())
}

func (s *Server) withTrack(req *Request, fn func(string) error) *Response {
	var r TrackRequest
	if err := decodeData(req, &r); err != nil {
		return NewErrorResponse(err.Error())
	}
	if r.Filename == "" {
		return NewErrorResponse("filename required")
	}
	return s.result(fn(r.Filename))
}

func (s *Server) withSeek(req *Request, fn func(float64) error) *Response {
	var r SeekRequest
	if err := decodeData(req, &r); err != nil {
		return NewErrorResponse(err.Error())
	}
	return s.result(fn(r.Position))
}

func (s *Server) withToggle(req *Request, current func(transport.Status) bool, set func(bool) error) *Response {
	var r ToggleRequest
	if len(req.Data) > 0 {
		if err := decodeData(req, &r); err != nil {
			return NewErrorResponse(err.Error())
		}
	}
	now := current(s.transport.Status())
	want := !now
	if r.Enabled != nil {
		want = *r.Enabled
	}
	if want == now {
		return s.ok(s.transport.Status())
	}
	return s.result(set(want))
}

func (s *Server) handleView(req *Request) *Response {
	var r ViewRequest
	if len(req.Data) > 0 {
		if err := decodeData(req, &r); err != nil {
			return NewErrorResponse(err.Error())
		}
	}
	m := view.Build(s.transport.Catalog(), s.transport.Status(), s.effects.Active(), r.Filter, s.paths)
	m.EffectsVolume = s.effects.MasterVolume()
	return s.ok(m)
}

func (s *Server) handleSfxTrigger(req *Request) *Response {
	var r SfxRequest
	if err := decodeData(req, &r); err != nil {
		return NewErrorResponse(err.Error())
	}
	inst, err := s.effects.Trigger(r.Key)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return s.ok(SfxTriggerResponse{Playing: inst != nil, Instance: inst})
}

func (s *Server) effectsStatus() SfxStatusResponse {
	active := lo.Keys(s.effects.Active())
	sort.Strings(active)
	return SfxStatusResponse{Volume: s.effects.MasterVolume(), Active: active}
}

// Status subscription handlers

func (s *Server) handleSubscribe(c *client) *Response {
	if c == nil {
		return NewErrorResponse("subscribe requires a connection")
	}
	s.subsMu.Lock()
	s.subs[c.conn] = c
	count := len(s.subs)
	s.subsMu.Unlock()

	log.Printf("[IPC] Client subscribed to status (total: %d)", count)
	return s.ok(map[string]bool{"subscribed": true})
}

func (s *Server) handleUnsubscribe(c *client) *Response {
	if c != nil {
		s.subsMu.Lock()
		delete(s.subs, c.conn)
		s.subsMu.Unlock()
	}
	return s.ok(map[string]bool{"subscribed": false})
}

// PushStatus sends the transport status to subscribed clients
func (s *Server) PushStatus(st transport.Status) {
	s.push("status", st)
}

// PushEffects sends the playing effects to subscribed clients
func (s *Server) PushEffects() {
	s.push("effects", s.effectsStatus())
}

func (s *Server) push(msgType string, data interface{}) {
	s.subsMu.RLock()
	if len(s.subs) == 0 {
		s.subsMu.RUnlock()
		return
	}
	// Copy subscriber list to avoid holding lock during I/O
	subs := lo.Values(s.subs)
	s.subsMu.RUnlock()

	msg, err := NewPushMessage(msgType, data)
	if err != nil {
		log.Printf("[IPC] Failed to encode %s push: %v", msgType, err)
		return
	}
	msg = append(msg, '\n')

	for _, c := range subs {
		if err := c.write(msg, pushWriteTimeout); err != nil {
			s.subsMu.Lock()
			delete(s.subs, c.conn)
			s.subsMu.Unlock()
		}
	}
}

func (s *Server) sendResponse(c *client, resp *Response) error {
	data, err := EncodeResponse(resp)
	if err != nil {
		return err
	}
	return c.write(append(data, '\n'), 0)
}
