// Package ws carries an editing session over a WebSocket: client messages
// drive the session Controller and every change is answered with a state frame.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aidanjnn/sketchy/internal/generation/prompt"
	genservice "github.com/aidanjnn/sketchy/internal/generation/service"
	"github.com/aidanjnn/sketchy/internal/metrics"
	"github.com/aidanjnn/sketchy/internal/platform/apierr"
	"github.com/aidanjnn/sketchy/internal/platform/logger"
	"github.com/aidanjnn/sketchy/internal/projects/domain"
	"github.com/aidanjnn/sketchy/internal/projects/utils"
	"github.com/aidanjnn/sketchy/internal/session"
)

const (
	// Canvas snapshots with freehand strokes get large.
	maxMessageBytes = 8 << 20
	writeTimeout    = 10 * time.Second
	closeTimeout    = 15 * time.Second
)

const (
	TypeEdit     = "edit"
	TypeGenerate = "generate"
	TypePreview  = "preview"
	TypeRestore  = "restore"
	TypeExit     = "exit"
	TypeVersions = "versions"
	TypeFlush    = "flush"

	TypeState     = "state"
	TypeGenerated = "generated"
	TypeError     = "error"
)

type ClientMessage struct {
	Type        string          `json:"type"`
	Snapshot    json.RawMessage `json:"snapshot,omitempty"`
	Style       prompt.Style    `json:"style"`
	Selection   []string        `json:"selection,omitempty"`
	Instruction string          `json:"instruction,omitempty"`
	Incremental bool            `json:"incremental,omitempty"`
	VersionID   string          `json:"version_id,omitempty"`
	Limit       int             `json:"limit,omitempty"`
}

type ServerMessage struct {
	Type       string                  `json:"type"`
	SessionID  string                  `json:"session_id,omitempty"`
	State      *session.State          `json:"state,omitempty"`
	Versions   []domain.VersionSummary `json:"versions,omitempty"`
	Generation *genservice.Result      `json:"generation,omitempty"`
	Error      *apierr.Error           `json:"error,omitempty"`
}

// NewUpgrader accepts same-origin requests and any origin in allowed.
// A "*" entry allows every origin.
func NewUpgrader(allowed []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  32 << 10,
		WriteBufferSize: 32 << 10,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || slices.Contains(allowed, "*") {
				return true
			}
			return slices.Contains(allowed, origin)
		},
	}
}

type Session struct {
	id   string
	conn *websocket.Conn
	ctl  *session.Controller
	log  *logger.Logger

	writeMu sync.Mutex
	jobs    sync.WaitGroup
}

func NewSession(conn *websocket.Conn, ctl *session.Controller, log *logger.Logger) *Session {
	if log == nil {
		log = logger.Nop()
	}
	id := utils.NewID("ses")
	return &Session{
		id:   id,
		conn: conn,
		ctl:  ctl,
		log:  log.With("component", "session_ws", "session_id", id, "project_id", ctl.ProjectID()),
	}
}

func (s *Session) ID() string {
	return s.id
}

// Serve loads the project, then reads client messages until the peer goes
// away or ctx ends. Pending edits are flushed before it returns.
func (s *Session) Serve(ctx context.Context) error {
	metrics.SessionsActive.Inc()
	defer metrics.SessionsActive.Dec()

	ctx, cancel := context.WithCancel(ctx)
	defer s.shutdown(cancel)

	s.conn.SetReadLimit(maxMessageBytes)
	go func() {
		<-ctx.Done()
		_ = s.conn.SetReadDeadline(time.Now())
	}()

	st, err := s.ctl.Load(ctx)
	if err != nil {
		s.sendError(err)
		return err
	}
	s.send(ServerMessage{Type: TypeState, SessionID: s.id, State: &st})
	s.log.Info("session opened")

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			s.log.Warn("session read failed", "error", err)
			return err
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.send(ServerMessage{Type: TypeError, Error: &apierr.Error{
				Status: http.StatusBadRequest, Reason: "bad_message", Message: "message is not valid JSON",
			}})
			continue
		}
		s.handle(ctx, msg)
	}
}

func (s *Session) handle(ctx context.Context, msg ClientMessage) {
	var (
		st  session.State
		err error
	)

	switch msg.Type {
	case TypeEdit:
		st, err = s.ctl.Edit(msg.Snapshot)
	case TypePreview:
		st, err = s.ctl.Preview(ctx, msg.VersionID)
	case TypeExit:
		st, err = s.ctl.ExitToLive()
	case TypeRestore:
		st, err = s.ctl.Restore(ctx)
	case TypeFlush:
		err = s.ctl.Flush(ctx)
		st = s.ctl.State()
	case TypeVersions:
		versions, err := s.ctl.Versions(ctx, msg.Limit)
		if err != nil {
			s.sendError(err)
			return
		}
		s.send(ServerMessage{Type: TypeVersions, Versions: versions})
		return
	case TypeGenerate:
		s.generate(ctx, msg)
		return
	default:
		s.send(ServerMessage{Type: TypeError, Error: &apierr.Error{
			Status: http.StatusBadRequest, Reason: "bad_message", Message: fmt.Sprintf("unknown message type %q", msg.Type),
		}})
		return
	}

	if err != nil {
		s.sendError(err)
		return
	}
	s.send(ServerMessage{Type: TypeState, State: &st})
}

// generate runs in the background so previews stay responsive meanwhile. The
// outcome arrives as a generated or error frame.
func (s *Session) generate(ctx context.Context, msg ClientMessage) {
	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		res, st, err := s.ctl.Generate(ctx, session.GenerateOptions{
			Style:       msg.Style,
			Selection:   msg.Selection,
			Instruction: msg.Instruction,
			Incremental: msg.Incremental,
		})
		if err != nil {
			s.sendError(err)
			return
		}
		s.send(ServerMessage{Type: TypeGenerated, State: &st, Generation: res})
	}()
}

func (s *Session) sendError(err error) {
	s.send(ServerMessage{Type: TypeError, Error: apierr.From(err)})
}

func (s *Session) send(msg ServerMessage) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteJSON(msg); err != nil {
		s.log.Debug("session write failed", "type", msg.Type, "error", err)
	}
}

func (s *Session) shutdown(cancel context.CancelFunc) {
	cancel()
	s.jobs.Wait()

	ctx, done := context.WithTimeout(context.Background(), closeTimeout)
	defer done()
	if err := s.ctl.Close(ctx); err != nil {
		s.log.Warn("final save failed", "error", err)
	}

	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	s.writeMu.Unlock()
	_ = s.conn.Close()
	s.log.Info("session closed")
}
