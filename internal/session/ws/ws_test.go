package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	genservice "github.com/aidanjnn/sketchy/internal/generation/service"
	"github.com/aidanjnn/sketchy/internal/projects/domain"
	"github.com/aidanjnn/sketchy/internal/projects/memstore"
	projectsvc "github.com/aidanjnn/sketchy/internal/projects/service"
	"github.com/aidanjnn/sketchy/internal/session"
)

type fixedGenerator struct{}

func (fixedGenerator) Run(_ context.Context, req genservice.Request) (*genservice.Result, error) {
	return &genservice.Result{Artifact: domain.Artifact{Markup: "<h1>generated</h1>"}}, nil
}

type harness struct {
	conn     *websocket.Conn
	store    *memstore.Store
	project  *domain.Project
	versions []*domain.Version
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	projects := projectsvc.NewProjectService(store)
	versions := projectsvc.NewVersionService(store, store.Versions())

	p, err := projects.Create(ctx, "user-1", "", json.RawMessage(`{"live":true}`))
	require.NoError(t, err)
	h := &harness{store: store, project: p}
	for i := 1; i <= 2; i++ {
		v, err := versions.Append(ctx, "user-1", p.ID, json.RawMessage(fmt.Sprintf(`{"v":%d}`, i)), domain.Artifact{Markup: fmt.Sprintf("<p>v%d</p>", i)})
		require.NoError(t, err)
		h.versions = append(h.versions, v)
	}

	upgrader := NewUpgrader(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ctl := session.NewController(session.Options{
			ProjectID: p.ID,
			OwnerID:   "user-1",
			Store:     projectsvc.NewOwnerStore("user-1", projects, versions),
			Generator: fixedGenerator{},
			Debounce:  time.Hour,
		})
		_ = NewSession(conn, ctl, nil).Serve(context.Background())
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	h.conn = conn
	return h
}

func (h *harness) send(t *testing.T, msg ClientMessage) {
	t.Helper()
	require.NoError(t, h.conn.WriteJSON(msg))
}

func (h *harness) read(t *testing.T) ServerMessage {
	t.Helper()
	require.NoError(t, h.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg ServerMessage
	require.NoError(t, h.conn.ReadJSON(&msg))
	return msg
}

// readType skips frames until one of the wanted type arrives.
func (h *harness) readType(t *testing.T, typ string) ServerMessage {
	t.Helper()
	for {
		msg := h.read(t)
		if msg.Type == typ {
			return msg
		}
	}
}

func TestSession_EditPreviewExit(t *testing.T) {
	h := newHarness(t)

	hello := h.read(t)
	require.Equal(t, TypeState, hello.Type)
	assert.NotEmpty(t, hello.SessionID)
	assert.Equal(t, session.ModeLive, hello.State.Mode)

	h.send(t, ClientMessage{Type: TypeEdit, Snapshot: json.RawMessage(`{"edit":1}`)})
	msg := h.read(t)
	assert.JSONEq(t, `{"edit":1}`, string(msg.State.Display.Snapshot))

	h.send(t, ClientMessage{Type: TypePreview, VersionID: h.versions[0].ID})
	msg = h.read(t)
	assert.Equal(t, session.ModePreviewing, msg.State.Mode)
	assert.Equal(t, "<p>v1</p>", msg.State.Display.Artifact.Markup)

	h.send(t, ClientMessage{Type: TypeEdit, Snapshot: json.RawMessage(`{"edit":2}`)})
	msg = h.read(t)
	require.Equal(t, TypeError, msg.Type)
	assert.Equal(t, "read_only_preview", msg.Error.Reason)

	h.send(t, ClientMessage{Type: TypeExit})
	msg = h.read(t)
	assert.Equal(t, session.ModeLive, msg.State.Mode)
	assert.JSONEq(t, `{"edit":1}`, string(msg.State.Display.Snapshot))
}

func TestSession_VersionsAndRestore(t *testing.T) {
	h := newHarness(t)
	h.read(t)

	h.send(t, ClientMessage{Type: TypeVersions})
	msg := h.read(t)
	require.Equal(t, TypeVersions, msg.Type)
	require.Len(t, msg.Versions, 2)
	assert.Equal(t, 2, msg.Versions[0].VersionNumber)

	h.send(t, ClientMessage{Type: TypePreview, VersionID: h.versions[0].ID})
	h.read(t)
	h.send(t, ClientMessage{Type: TypeRestore})
	msg = h.read(t)
	assert.Equal(t, session.ModeLive, msg.State.Mode)
	assert.JSONEq(t, `{"v":1}`, string(msg.State.Display.Snapshot))
	assert.Equal(t, 2, h.store.VersionCount(h.project.ID))
}

func TestSession_Generate(t *testing.T) {
	h := newHarness(t)
	h.read(t)

	h.send(t, ClientMessage{Type: TypeGenerate, Instruction: "make it blue"})
	msg := h.readType(t, TypeGenerated)
	require.NotNil(t, msg.Generation)
	assert.Equal(t, "<h1>generated</h1>", msg.Generation.Artifact.Markup)
	assert.Equal(t, "<h1>generated</h1>", msg.State.Display.Artifact.Markup)
	assert.False(t, msg.State.Generating)
}

func TestSession_BadMessages(t *testing.T) {
	h := newHarness(t)
	h.read(t)

	require.NoError(t, h.conn.WriteMessage(websocket.TextMessage, []byte("{nope")))
	msg := h.read(t)
	require.Equal(t, TypeError, msg.Type)
	assert.Equal(t, "bad_message", msg.Error.Reason)

	h.send(t, ClientMessage{Type: "dance"})
	msg = h.read(t)
	assert.Equal(t, "bad_message", msg.Error.Reason)

	h.send(t, ClientMessage{Type: TypePreview, VersionID: "missing"})
	msg = h.read(t)
	assert.Equal(t, "not_found", msg.Error.Reason)
}

func TestSession_FlushPersistsOnDisconnect(t *testing.T) {
	h := newHarness(t)
	h.read(t)

	h.send(t, ClientMessage{Type: TypeEdit, Snapshot: json.RawMessage(`{"final":1}`)})
	h.read(t)
	require.NoError(t, h.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	require.Eventually(t, func() bool {
		p, err := h.store.Get(context.Background(), "user-1", h.project.ID)
		return err == nil && string(p.CanvasSnapshot) == `{"final":1}`
	}, 5*time.Second, 10*time.Millisecond)
}

func TestNewUpgrader_CheckOrigin(t *testing.T) {
	u := NewUpgrader([]string{"https://app.example.com"})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, u.CheckOrigin(r))

	r.Header.Set("Origin", "https://app.example.com")
	assert.True(t, u.CheckOrigin(r))

	r.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, u.CheckOrigin(r))

	assert.True(t, NewUpgrader([]string{"*"}).CheckOrigin(r))
}
