package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/errprop/errprop/pkg/propagation"
	"github.com/errprop/errprop/server/internal/api"
	"github.com/errprop/errprop/server/internal/store"
	wsHub "github.com/errprop/errprop/server/internal/ws"
)

const testInterval = 20 * time.Millisecond

// --- helpers ----------------------------------------------------------------

func newStore() *store.Store {
	return store.New(store.Options{
		TTL:  5 * time.Minute,
		Seed: propagation.Input{Value: 3.2, Error: 0.5, Unit: "cm", Operation: propagation.OpAdd},
	})
}

func create(t *testing.T, st *store.Store) string {
	t.Helper()
	snap, err := st.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return snap.ID
}

// startHub starts a test HTTP server routing /ws/sessions/{id} to the hub.
// The hub's Run loop is started with a cancellable context.
// Returns the ws:// base URL, the hub, and a cancel function.
func startHub(t *testing.T, st *store.Store, interval time.Duration) (wsURL string, hub *wsHub.Hub, cancel func()) {
	t.Helper()

	hub = wsHub.New(st, api.NewPresenter(propagation.DefaultPrecision), interval)
	ctx, cancelFn := context.WithCancel(context.Background())

	r := chi.NewRouter()
	r.Get("/ws/sessions/{id}", hub.ServeHTTP)
	srv := httptest.NewServer(r)
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancelFn()
		srv.Close()
	})

	wsURL = "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/sessions/"
	return wsURL, hub, cancelFn
}

// dial connects a WebSocket client to wsURL and returns the connection.
func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readMessage reads and decodes one message from conn with a short deadline.
func readMessage(t *testing.T, conn *websocket.Conn) wsHub.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var m wsHub.Message
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal %s: %v", raw, err)
	}
	return m
}

func appendTerm(t *testing.T, st *store.Store, id string, v, e float64) {
	t.Helper()
	_, err := st.Update(id, func(seq *propagation.Sequence) error {
		_, err := seq.Append(propagation.Input{Value: v, Error: e, Unit: "cm"})
		return err
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
}

// --- tests ------------------------------------------------------------------

func TestHub_Connect_ReceivesImmediateState(t *testing.T) {
	st := newStore()
	id := create(t, st)
	wsURL, _, _ := startHub(t, st, time.Hour)

	m := readMessage(t, dial(t, wsURL+id))
	if m.Event != wsHub.EventSession {
		t.Fatalf("event: got %q, want %q", m.Event, wsHub.EventSession)
	}
	if m.Data == nil || m.Data.ID != id {
		t.Fatalf("data: got %+v", m.Data)
	}
	if m.Data.Result.Headline != "[3.2 cm ± 0.5 cm]" {
		t.Errorf("headline: got %q", m.Data.Result.Headline)
	}
}

func TestHub_ConnectedClientKeepsSessionAlive(t *testing.T) {
	st := newStore()
	id := create(t, st)
	created, _ := st.Get(id)
	wsURL, _, _ := startHub(t, st, time.Hour)

	time.Sleep(5 * time.Millisecond)
	conn := dial(t, wsURL+id)
	readMessage(t, conn)

	connected, _ := st.Get(id)
	if !connected.UpdatedAt.After(created.UpdatedAt) {
		t.Fatalf("connect did not touch session: %v -> %v", created.UpdatedAt, connected.UpdatedAt)
	}
	if connected.Revision != created.Revision {
		t.Errorf("revision: got %d, want %d", connected.Revision, created.Revision)
	}

	time.Sleep(5 * time.Millisecond)
	if err := conn.WriteControl(websocket.PongMessage, nil, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("WriteControl pong: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, _ := st.Get(id)
		if snap.UpdatedAt.After(connected.UpdatedAt) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("pong did not touch session")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_UnknownSession_Returns404(t *testing.T) {
	wsURL, _, _ := startHub(t, newStore(), time.Hour)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"missing", nil)
	if err == nil {
		t.Fatal("dial: expected an error for an unknown session")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("status: got %v, want 404", resp)
	}
}

func TestHub_NotifyPushesOnlyToFollowers(t *testing.T) {
	st := newStore()
	a, b := create(t, st), create(t, st)
	wsURL, hub, _ := startHub(t, st, time.Hour)

	connA := dial(t, wsURL+a)
	readMessage(t, connA)
	connB := dial(t, wsURL+b)
	readMessage(t, connB)

	appendTerm(t, st, a, 120, 2)
	hub.Notify(a)

	m := readMessage(t, connA)
	if len(m.Data.Terms) != 2 {
		t.Fatalf("terms: got %d, want 2", len(m.Data.Terms))
	}
	if m.Data.Result.Headline != "[123.2 cm ± 2.5 cm]" {
		t.Errorf("headline: got %q", m.Data.Result.Headline)
	}

	connB.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	if _, _, err := connB.ReadMessage(); err == nil {
		t.Error("client of another session received a push")
	}
}

func TestHub_NotifyDeletedSessionSendsExpired(t *testing.T) {
	st := newStore()
	id := create(t, st)
	wsURL, hub, _ := startHub(t, st, time.Hour)

	conn := dial(t, wsURL+id)
	readMessage(t, conn)

	st.Delete(id)
	hub.Notify(id)

	m := readMessage(t, conn)
	if m.Event != wsHub.EventExpired || m.Data != nil {
		t.Errorf("message: got %+v, want bare expired event", m)
	}
	if n := hub.Count(); n != 0 {
		t.Errorf("Count: got %d, want 0", n)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNoStatusReceived, websocket.CloseNormalClosure) {
		t.Errorf("read after expiry: got %v, want close", err)
	}
}

func TestHub_ReceivesBroadcastOnTick(t *testing.T) {
	st := newStore()
	id := create(t, st)
	wsURL, _, _ := startHub(t, st, testInterval)

	conn := dial(t, wsURL+id)
	readMessage(t, conn)

	// No Notify: the next tick carries the change.
	appendTerm(t, st, id, 1, 1)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m := readMessage(t, conn); len(m.Data.Terms) == 2 {
			return
		}
	}
	t.Fatal("tick broadcast never carried the appended term")
}

func TestHub_CountClients(t *testing.T) {
	st := newStore()
	id := create(t, st)
	wsURL, hub, _ := startHub(t, st, time.Hour)

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conns[i] = dial(t, wsURL+id)
		readMessage(t, conns[i]) // consume initial message
	}
	if n := hub.Count(); n != 3 {
		t.Errorf("Count: got %d, want 3", n)
	}

	conns[0].Close()
	time.Sleep(50 * time.Millisecond) // let readPump detect the close
	if n := hub.Count(); n != 2 {
		t.Errorf("Count after disconnect: got %d, want 2", n)
	}
}

func TestHub_CancelContextClosesConnections(t *testing.T) {
	st := newStore()
	id := create(t, st)
	wsURL, hub, cancel := startHub(t, st, time.Hour)

	conn := dial(t, wsURL+id)
	readMessage(t, conn)

	cancel() // signal shutdown

	time.Sleep(50 * time.Millisecond)
	if n := hub.Count(); n != 0 {
		t.Errorf("Count after cancel: got %d, want 0", n)
	}
}

func TestHub_NonWebSocketRequest_Returns400(t *testing.T) {
	st := newStore()
	id := create(t, st)
	hub := wsHub.New(st, api.NewPresenter(propagation.DefaultPrecision), testInterval)
	r := chi.NewRouter()
	r.Get("/ws/sessions/{id}", hub.ServeHTTP)
	srv := httptest.NewServer(r)
	defer srv.Close()

	// Plain HTTP GET without WebSocket upgrade headers.
	resp, err := http.Get(srv.URL + "/ws/sessions/" + id)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}
