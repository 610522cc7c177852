package connection

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeClient is a Client that never touches the network.
type fakeClient struct {
	msgs   chan TimestampedMessage
	errs   chan error
	done   chan struct{}
	once   sync.Once
	closed atomic.Bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		msgs: make(chan TimestampedMessage, 10),
		errs: make(chan error, 1),
		done: make(chan struct{}),
	}
}

func (f *fakeClient) Connect(context.Context) error       { return nil }
func (f *fakeClient) Messages() <-chan TimestampedMessage { return f.msgs }
func (f *fakeClient) Errors() <-chan error                { return f.errs }
func (f *fakeClient) Done() <-chan struct{}               { return f.done }
func (f *fakeClient) IsConnected() bool                   { return !f.closed.Load() }

func (f *fakeClient) Close() error {
	f.once.Do(func() {
		f.closed.Store(true)
		close(f.done)
	})
	return nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func fastConfig() ManagerConfig {
	return ManagerConfig{
		ReconnectBaseDelay: time.Millisecond,
		ReconnectMaxDelay:  4 * time.Millisecond,
		MaxAttempts:        5,
		MessageBufferSize:  10,
	}
}

func TestBackoff(t *testing.T) {
	base, max := time.Second, 30*time.Second
	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		16000 * time.Millisecond,
	}

	prev := time.Duration(0)
	for n := 1; n <= 5; n++ {
		got := Backoff(n, base, max)
		if got != want[n-1] {
			t.Errorf("Backoff(%d) = %v, want %v", n, got, want[n-1])
		}
		if got < prev {
			t.Errorf("Backoff(%d) = %v decreased from %v", n, got, prev)
		}
		prev = got
	}

	for _, n := range []int{6, 7, 10, 64, 1000} {
		if got := Backoff(n, base, max); got != max {
			t.Errorf("Backoff(%d) = %v, want cap %v", n, got, max)
		}
	}
	if got := Backoff(0, base, max); got != base {
		t.Errorf("Backoff(0) = %v, want %v", got, base)
	}
}

func TestManager_StartRequiresAuth(t *testing.T) {
	var dials atomic.Int32
	m := NewManager(fastConfig(), func(context.Context) (Client, error) {
		dials.Add(1)
		return newFakeClient(), nil
	}, nil)
	defer m.Shutdown()

	if err := m.Start(); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("Start() = %v, want ErrNotAuthenticated", err)
	}
	if got := m.State().Phase; got != PhaseIdle {
		t.Errorf("State = %v, want idle", got)
	}
	if dials.Load() != 0 {
		t.Errorf("dialed %d times without auth", dials.Load())
	}
}

func TestManager_SingleSocket(t *testing.T) {
	var active, total, peak atomic.Int32
	server := mockWSServer(t, func(conn *websocket.Conn) {
		n := active.Add(1)
		total.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		defer active.Add(-1)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	m := NewManager(fastConfig(), NewDialer(ClientConfig{URL: wsURL(server)}, nil), nil)
	defer m.Shutdown()
	m.SetAuthenticated(true)

	for i := 0; i < 5; i++ {
		if err := m.Start(); err != nil {
			t.Fatalf("Start() #%d = %v", i, err)
		}
	}
	waitFor(t, "open", m.IsConnected)

	for i := 0; i < 5; i++ {
		m.Start()
	}
	time.Sleep(50 * time.Millisecond)

	if total.Load() != 1 {
		t.Errorf("server saw %d connections, want 1", total.Load())
	}
	if peak.Load() != 1 {
		t.Errorf("peak concurrent connections = %d, want 1", peak.Load())
	}
}

func TestManager_GivesUpAfterMaxAttempts(t *testing.T) {
	var dials atomic.Int32
	m := NewManager(fastConfig(), func(context.Context) (Client, error) {
		dials.Add(1)
		return nil, errors.New("connection refused")
	}, nil)
	defer m.Shutdown()
	m.SetAuthenticated(true)

	if err := m.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	waitFor(t, "closed", func() bool { return m.State().Phase == PhaseClosed })

	// The initial dial plus five reconnect attempts.
	if got := dials.Load(); got != 6 {
		t.Errorf("dials = %d, want 6", got)
	}
	if m.IsConnected() {
		t.Error("IsConnected() = true after giving up")
	}

	time.Sleep(30 * time.Millisecond)
	if got := dials.Load(); got != 6 {
		t.Errorf("kept dialing after giving up: %d", got)
	}

	// Start resets the budget.
	if err := m.Start(); err != nil {
		t.Fatalf("Start() after giving up = %v", err)
	}
	waitFor(t, "closed again", func() bool { return m.State().Phase == PhaseClosed })
	if got := dials.Load(); got != 12 {
		t.Errorf("dials after restart = %d, want 12", got)
	}
}

func TestManager_ReconnectStates(t *testing.T) {
	var (
		mu     sync.Mutex
		states []State
	)
	fail := errors.New("refused")
	var dials atomic.Int32
	m := NewManager(ManagerConfig{
		ReconnectBaseDelay: 40 * time.Millisecond,
		ReconnectMaxDelay:  40 * time.Millisecond,
		MaxAttempts:        2,
	}, func(context.Context) (Client, error) {
		dials.Add(1)
		return nil, fail
	}, nil)
	defer m.Shutdown()
	m.SetAuthenticated(true)
	m.Start()

	seen := func(s State) bool {
		mu.Lock()
		defer mu.Unlock()
		for _, x := range states {
			if x == s {
				return true
			}
		}
		return false
	}
	waitFor(t, "closed", func() bool {
		s := m.State()
		mu.Lock()
		if len(states) == 0 || states[len(states)-1] != s {
			states = append(states, s)
		}
		mu.Unlock()
		return s.Phase == PhaseClosed
	})

	for _, want := range []State{
		{Phase: PhaseReconnecting, Attempt: 1},
		{Phase: PhaseReconnecting, Attempt: 2},
	} {
		if !seen(want) {
			t.Errorf("never observed %v in %v", want, states)
		}
	}
	if got := dials.Load(); got != 3 {
		t.Errorf("dials = %d, want 3", got)
	}
}

func TestManager_StopDuringConnecting(t *testing.T) {
	release := make(chan struct{})
	late := newFakeClient()
	m := NewManager(fastConfig(), func(context.Context) (Client, error) {
		<-release
		return late, nil
	}, nil)
	defer m.Shutdown()
	m.SetAuthenticated(true)

	m.Start()
	if got := m.State().Phase; got != PhaseConnecting {
		t.Fatalf("State = %v, want connecting", got)
	}

	m.Stop()
	if got := m.State().Phase; got != PhaseClosed {
		t.Fatalf("State after Stop = %v, want closed", got)
	}

	close(release)
	waitFor(t, "late client closed", late.closed.Load)

	if got := m.State().Phase; got != PhaseClosed {
		t.Errorf("State after late dial = %v, want closed", got)
	}
}

func TestManager_StopIdleIsNoop(t *testing.T) {
	m := NewManager(fastConfig(), func(context.Context) (Client, error) {
		return newFakeClient(), nil
	}, nil)
	defer m.Shutdown()

	m.Stop()
	if got := m.State().Phase; got != PhaseIdle {
		t.Errorf("State = %v, want idle", got)
	}
}

func TestManager_LosingAuthCloses(t *testing.T) {
	c := newFakeClient()
	m := NewManager(fastConfig(), func(context.Context) (Client, error) {
		return c, nil
	}, nil)
	defer m.Shutdown()
	m.SetAuthenticated(true)
	m.Start()
	waitFor(t, "open", m.IsConnected)

	m.SetAuthenticated(false)

	if got := m.State().Phase; got != PhaseClosed {
		t.Errorf("State = %v, want closed", got)
	}
	if !c.closed.Load() {
		t.Error("client not closed after losing auth")
	}
	if err := m.Start(); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Start() = %v, want ErrNotAuthenticated", err)
	}
}

func TestManager_ReconnectsAfterError(t *testing.T) {
	var clients []*fakeClient
	var mu sync.Mutex
	m := NewManager(fastConfig(), func(context.Context) (Client, error) {
		c := newFakeClient()
		mu.Lock()
		clients = append(clients, c)
		mu.Unlock()
		return c, nil
	}, nil)
	defer m.Shutdown()
	m.SetAuthenticated(true)
	m.Start()
	waitFor(t, "open", m.IsConnected)

	mu.Lock()
	first := clients[0]
	mu.Unlock()
	first.errs <- errors.New("connection reset")

	waitFor(t, "second client", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(clients) == 2
	})
	waitFor(t, "reopen", m.IsConnected)

	if !first.closed.Load() {
		t.Error("failed client was not closed")
	}

	mu.Lock()
	second := clients[1]
	mu.Unlock()
	second.msgs <- TimestampedMessage{Data: []byte(`{"event":"order_event"}`), ReceivedAt: time.Now()}

	select {
	case msg := <-m.Messages():
		if string(msg.Data) != `{"event":"order_event"}` {
			t.Errorf("Data = %s", msg.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestManager_MessagesFromServer(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"close_position","data":{}}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	m := NewManager(fastConfig(), NewDialer(ClientConfig{URL: wsURL(server)}, nil), nil)
	m.SetAuthenticated(true)
	m.Start()

	select {
	case msg := <-m.Messages():
		if string(msg.Data) != `{"event":"close_position","data":{}}` {
			t.Errorf("Data = %s", msg.Data)
		}
		if msg.ReceivedAt.IsZero() {
			t.Error("ReceivedAt should not be zero")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}

	m.Shutdown()
	if err := m.Start(); !errors.Is(err, ErrAlreadyClosed) {
		t.Errorf("Start() after Shutdown = %v, want ErrAlreadyClosed", err)
	}
}

func TestNewDialer_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	dial := NewDialer(ClientConfig{URL: wsURL(server)}, nil)
	c, err := dial(context.Background())
	if err == nil {
		c.Close()
		t.Fatal("expected dial error")
	}
	if c != nil {
		t.Error("expected nil client on error")
	}
}
