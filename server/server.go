package server

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chatd/config"
	"chatd/db"
	"chatd/logger"
	"chatd/metrics"
	"chatd/protocol"
)

// Session is one client connection. A session starts anonymous and becomes
// authenticated after a successful LOGIN; LOGOUT returns it to anonymous
// without dropping the connection.
type Session struct {
	ID            string
	Conn          net.Conn
	UserID        int64
	Username      string
	Authenticated bool
	LastActivity  time.Time

	buf     protocol.Buffer
	writeMu sync.Mutex
}

// Server accepts client connections and runs one goroutine per connection.
type Server struct {
	cfg *config.Config
	db  *db.DB
	log zerolog.Logger

	listener net.Listener

	mu       sync.Mutex
	sessions map[string]*Session // all open connections, by session id
	users    map[int64]*Session  // authenticated sessions, by user id
	closing  bool
}

// New builds a server over an opened database.
func New(cfg *config.Config, database *db.DB) *Server {
	return &Server{
		cfg:      cfg,
		db:       database,
		log:      logger.Get().With().Str("component", "server").Logger(),
		sessions: make(map[string]*Session),
		users:    make(map[int64]*Session),
	}
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.log.Info().Str("addr", s.cfg.Addr).Msg("listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.handleConnection(conn)
	}
}

// Shutdown stops accepting and drops every open connection.
func (s *Server) Shutdown() {
	s.mu.Lock()
	s.closing = true
	ln := s.listener
	open := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	for _, sess := range open {
		sess.Conn.Close()
	}
	s.log.Info().Msg("shutdown complete")
}

// GetStats reports connection counts for the control socket.
func (s *Server) GetStats() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("connections: %d, authenticated: %d", len(s.sessions), len(s.users))
}

// handleConnection owns one client socket from accept to teardown.
func (s *Server) handleConnection(conn net.Conn) {
	s.mu.Lock()
	if len(s.sessions) >= s.cfg.MaxClients {
		s.mu.Unlock()
		s.log.Warn().Str("remote", conn.RemoteAddr().String()).Msg("connection limit reached")
		conn.Close()
		return
	}
	sess := &Session{
		ID:           uuid.NewString(),
		Conn:         conn,
		LastActivity: time.Now(),
	}
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	metrics.ConnectionsActive.Inc()

	log := s.log.With().Str("session", sess.ID).Logger()
	log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("connected")
	defer s.evict(sess)

	s.respond(sess, protocol.StatusWelcome, "Welcome to chat server")

	chunk := make([]byte, 4096)
	for {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		n, err := conn.Read(chunk)
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			log.Debug().Err(err).Msg("disconnected")
			return
		}
		sess.LastActivity = time.Now()

		if err := sess.buf.Append(chunk[:n]); err != nil {
			log.Warn().Msg("receive buffer overflow, dropping connection")
			return
		}
		for {
			frame, ok := sess.buf.Extract()
			if !ok {
				break
			}
			cmd, err := protocol.Parse(frame)
			if err != nil {
				var fe *protocol.FieldError
				if errors.As(err, &fe) {
					s.respond(sess, fe.Code, fe.Reason)
					continue
				}
				s.respondSimple(sess, protocol.StatusUndefinedError)
				continue
			}
			s.dispatch(sess, cmd)
		}
	}
}

// evict tears a session down after its read loop exits.
func (s *Server) evict(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess.ID)
	wasAuth := sess.Authenticated
	userID := sess.UserID
	if wasAuth {
		delete(s.users, userID)
		sess.Authenticated = false
	}
	s.mu.Unlock()

	sess.Conn.Close()
	metrics.ConnectionsActive.Dec()
	if wasAuth {
		metrics.SessionsAuthenticated.Dec()
		if err := s.db.SetUserOnline(userID, false); err != nil {
			s.log.Error().Err(err).Int64("user", userID).Msg("mark offline failed")
		}
	}
}

// write sends raw bytes to one session. The per-session mutex keeps pushes
// from other connections' goroutines from interleaving with responses.
func (s *Server) write(sess *Session, data []byte) error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	sess.Conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if _, err := sess.Conn.Write(data); err != nil {
		s.log.Debug().Err(err).Str("session", sess.ID).Msg("write failed")
		return err
	}
	return nil
}

func (s *Server) respond(sess *Session, code int, body string) {
	s.write(sess, protocol.Render(code, body))
}

func (s *Server) respondSimple(sess *Session, code int) {
	s.write(sess, protocol.RenderSimple(code))
}

// pushToUser delivers a line to a user's live session, reporting whether the
// line actually went out. Offline user and failed write look the same to
// the caller: the push did not happen.
func (s *Server) pushToUser(userID int64, code int, body string) bool {
	s.mu.Lock()
	sess := s.users[userID]
	s.mu.Unlock()
	if sess == nil {
		return false
	}
	return s.write(sess, protocol.Render(code, body)) == nil
}
