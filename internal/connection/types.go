package connection

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Errors
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrStaleConnection  = errors.New("connection stale (no ping)")
	ErrAlreadyClosed    = errors.New("already closed")
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// RawMessage is a frame handed from the Manager to the event router.
type RawMessage struct {
	Data       []byte    // Raw frame bytes
	ReceivedAt time.Time // Local timestamp when the client read the frame
	Generation uint64    // Which physical connection produced it
}

// Phase is the coarse channel state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseOpen
	PhaseReconnecting
	PhaseClosed
)

var phaseNames = []string{"idle", "connecting", "open", "reconnecting", "closed"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// State is the channel state. Attempt is set only while reconnecting.
type State struct {
	Phase   Phase
	Attempt int
}

func (s State) String() string {
	if s.Phase == PhaseReconnecting {
		return fmt.Sprintf("reconnecting(%d)", s.Attempt)
	}
	return s.Phase.String()
}

// Active reports whether the state requires a signed-in user.
func (s State) Active() bool {
	return s.Phase != PhaseIdle && s.Phase != PhaseClosed
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string             // WebSocket URL (e.g., ws://127.0.0.1:8765)
	Jar              http.CookieJar     // Session cookies sent with the handshake
	Header           func() http.Header // Extra handshake headers, evaluated per dial
	HandshakeTimeout time.Duration      // Max time for the opening handshake
	PingInterval     time.Duration      // How often we ping the server
	PingTimeout      time.Duration      // Max time without ping/pong before considering connection stale
	WriteTimeout     time.Duration      // Write deadline for control frames
	BufferSize       int                // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     25 * time.Second,
		PingTimeout:      60 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1000,
	}
}

// ManagerConfig configures the Manager.
type ManagerConfig struct {
	ReconnectBaseDelay time.Duration // Delay before the first reconnect attempt
	ReconnectMaxDelay  time.Duration // Cap on any reconnect delay
	MaxAttempts        int           // Reconnect attempts before giving up
	MessageBufferSize  int           // Buffer size for the output message channel
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		ReconnectBaseDelay: 1 * time.Second,
		ReconnectMaxDelay:  30 * time.Second,
		MaxAttempts:        5,
		MessageBufferSize:  1000,
	}
}

// Backoff returns the delay before reconnect attempt n (1-based):
// min(base * 2^(n-1), max).
func Backoff(n int, base, max time.Duration) time.Duration {
	if n < 1 {
		n = 1
	}
	d := base
	for i := 1; i < n; i++ {
		if d >= max {
			return max
		}
		d *= 2
	}
	if d > max {
		return max
	}
	return d
}
