package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hluisi/pausemon/model"
)

const dialProbeTimeout = 500 * time.Millisecond

// BootstrapFunc builds the message a newly connected client receives so it
// can render state without waiting a full tick.
type BootstrapFunc func() model.BootstrapMsg

// Server pushes scored samples to dashboard clients over a unix domain
// socket as newline-delimited JSON. Connection handling is fully decoupled
// from the sampling cadence: every write carries a deadline, and a client
// that fails or stalls is dropped, never waited on.
type Server struct {
	path         string
	writeTimeout time.Duration
	bootstrap    BootstrapFunc
	log          *slog.Logger

	ln         net.Listener
	mu         sync.Mutex
	clients    map[net.Conn]struct{}
	hasClients atomic.Bool
	closed     atomic.Bool
	wg         sync.WaitGroup
}

// New creates a server; Start binds the socket.
func New(path string, writeTimeout time.Duration, bootstrap BootstrapFunc, log *slog.Logger) *Server {
	return &Server{
		path:         path,
		writeTimeout: writeTimeout,
		bootstrap:    bootstrap,
		log:          log,
		clients:      map[net.Conn]struct{}{},
	}
}

// Start binds the socket path and begins accepting clients. A live socket
// at the path means another daemon owns it and binding fails; a stale one
// is removed. Bind failure is startup-fatal for the daemon.
func (s *Server) Start() error {
	if _, err := os.Stat(s.path); err == nil {
		conn, err := net.DialTimeout("unix", s.path, dialProbeTimeout)
		if err == nil {
			conn.Close()
			return fmt.Errorf("socket %s is already in use", s.path)
		}
		if err := os.Remove(s.path); err != nil {
			return fmt.Errorf("remove stale socket: %w", err)
		}
	}

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("bind socket: %w", err)
	}
	s.ln = ln

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				if s.closed.Load() {
					return
				}
				s.log.Warn("accept failed", "error", err)
				continue
			}
			s.wg.Add(1)
			go s.handle(conn)
		}
	}()
	return nil
}

// handle bootstraps and registers one client, then drains its reads until
// it disconnects.
func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()

	msg := s.bootstrap()
	if err := s.writeLine(conn, msg); err != nil {
		s.log.Warn("bootstrap write failed", "error", err)
		conn.Close()
		return
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.hasClients.Store(true)
	s.mu.Unlock()
	s.log.Info("client connected", "clients", s.ClientCount())

	// Clients never send anything meaningful; read until close so we
	// notice the disconnect promptly.
	buf := make([]byte, 256)
	for {
		if _, err := conn.Read(buf); err != nil {
			break
		}
	}
	s.drop(conn)
}

// HasClients is the fast path for the orchestrator: with no listeners the
// tick skips serialization entirely.
func (s *Server) HasClients() bool {
	return s.hasClients.Load()
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Broadcast serializes the tick once and writes it to every client. A
// failed or expired write drops that client; others are unaffected.
func (s *Server) Broadcast(msg model.TickMsg) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.log.Error("marshal tick", "error", err)
		return
	}
	data = append(data, '\n')

	s.mu.Lock()
	conns := make([]net.Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		if _, err := c.Write(data); err != nil {
			s.log.Warn("client write failed, dropping", "error", err)
			s.drop(c)
		}
	}
}

func (s *Server) writeLine(conn net.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	_, err = conn.Write(data)
	return err
}

func (s *Server) drop(conn net.Conn) {
	s.mu.Lock()
	if _, ok := s.clients[conn]; ok {
		delete(s.clients, conn)
		conn.Close()
	}
	s.hasClients.Store(len(s.clients) > 0)
	s.mu.Unlock()
}

// Stop closes the listener and all client connections, then removes the
// socket file. Connected clients observe EOF.
func (s *Server) Stop() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	if s.ln != nil {
		s.ln.Close()
	}
	s.mu.Lock()
	for c := range s.clients {
		c.Close()
		delete(s.clients, c)
	}
	s.hasClients.Store(false)
	s.mu.Unlock()
	s.wg.Wait()
	os.Remove(s.path)
}
