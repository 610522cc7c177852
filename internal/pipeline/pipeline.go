package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/tradeline/internal/api"
	"github.com/rickgao/tradeline/internal/auth"
	"github.com/rickgao/tradeline/internal/cache"
	"github.com/rickgao/tradeline/internal/config"
	"github.com/rickgao/tradeline/internal/connection"
	"github.com/rickgao/tradeline/internal/model"
	"github.com/rickgao/tradeline/internal/notify"
	"github.com/rickgao/tradeline/internal/router"
	"github.com/rickgao/tradeline/internal/version"
)

// tokenReadTimeout bounds the cache read done for every handshake.
const tokenReadTimeout = 2 * time.Second

// Pipeline owns one instance of each component.
type Pipeline struct {
	cfg    *config.ClientConfig
	logger *slog.Logger

	store  cache.Store
	api    *api.Client
	auth   *auth.Resolver
	conn   *connection.Manager
	router *router.Router
	center *notify.Center

	unrouted func()

	mu              sync.Mutex
	unwatchIdentity func()
	lastUser        string

	started   atomic.Bool
	closeOnce sync.Once
}

// Open opens the configured cache store and builds a Pipeline on it.
func Open(ctx context.Context, cfg *config.ClientConfig, logger *slog.Logger) (*Pipeline, error) {
	store, err := cache.Open(ctx, cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	p, err := New(cfg, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return p, nil
}

// New builds a Pipeline on store. The Pipeline owns store and closes it.
func New(cfg *config.ClientConfig, store cache.Store, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	policy, err := auth.ParsePolicy(cfg.Auth.OnTransportError)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:    cfg,
		logger: logger.With("component", "pipeline"),
		store:  store,
	}

	p.api = api.NewClient(
		cfg.API.BaseURL,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
		api.WithRateLimit(cfg.API.RateLimit, cfg.API.RateBurst),
		api.WithPaths(api.Paths{
			Session:  cfg.API.SessionPath,
			Login:    cfg.API.LoginPath,
			Register: cfg.API.RegisterPath,
			Logout:   cfg.API.LogoutPath,
			Verify:   cfg.API.VerifyPath,
		}),
	)

	p.auth = auth.NewResolver(p.api, store, auth.Config{
		RevalidateInterval: cfg.Auth.RevalidateInterval,
		OnTransportError:   policy,
	}, logger)

	dial := connection.NewDialer(connection.ClientConfig{
		URL:              cfg.Connection.WSURL,
		Jar:              p.api.Jar(),
		Header:           p.handshakeHeader,
		HandshakeTimeout: cfg.Connection.HandshakeTimeout,
		PingInterval:     cfg.Connection.PingInterval,
		PingTimeout:      cfg.Connection.PingTimeout,
		WriteTimeout:     cfg.Connection.WriteTimeout,
		BufferSize:       cfg.Connection.BufferSize,
	}, logger)

	p.conn = connection.NewManager(connection.ManagerConfig{
		ReconnectBaseDelay: cfg.Connection.ReconnectBaseDelay,
		ReconnectMaxDelay:  cfg.Connection.ReconnectMaxDelay,
		MaxAttempts:        cfg.Connection.MaxAttempts,
		MessageBufferSize:  cfg.Connection.BufferSize,
	}, dial, logger)

	p.router = router.NewRouter(router.DefaultConfig(), p.conn.Messages(), logger)
	p.center = notify.NewCenter(
		notify.Config{MaxActive: cfg.Notifications.MaxActive},
		notify.WithLogger(logger),
	)

	p.unrouted = p.router.SubscribeAll(func(ev model.Event) {
		p.center.HandleEvent(ev)
	})

	return p, nil
}

// Run gates the channel on the identity, resolves it, starts routing and
// re-validates the session until ctx is done. It returns nil on
// cancellation. Without Run the identity can be used but no socket opens.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return errors.New("pipeline already running")
	}

	p.mu.Lock()
	p.unwatchIdentity = p.auth.Watch(p.onIdentity)
	p.mu.Unlock()
	if id := p.auth.Current(); id.Authenticated {
		p.onIdentity(id)
	}

	if err := p.router.Start(ctx); err != nil {
		return fmt.Errorf("start router: %w", err)
	}

	id := p.auth.Resolve(ctx)
	p.logger.Info("pipeline running",
		"identity", id.String(),
		"ws_url", p.cfg.Connection.WSURL,
	)

	err := p.auth.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close shuts every component down. It is safe to call more than once.
func (p *Pipeline) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		if p.unwatchIdentity != nil {
			p.unwatchIdentity()
		}
		p.mu.Unlock()
		p.unrouted()

		p.conn.Shutdown()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if stopErr := p.router.Stop(ctx); stopErr != nil {
			p.logger.Warn("router did not drain", "error", stopErr)
		}

		p.center.Close()
		p.auth.Close()
		err = p.store.Close()
		p.logger.Info("pipeline stopped")
	})
	return err
}

// onIdentity keeps the channel in step with the identity. A different
// user means a new handshake, so an open channel is restarted.
func (p *Pipeline) onIdentity(id auth.Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !id.Authenticated {
		p.lastUser = ""
		p.conn.SetAuthenticated(false)
		return
	}

	user := id.User.ID + "/" + id.User.Username
	if p.lastUser != "" && p.lastUser != user {
		p.logger.Info("user changed, restarting channel", "user", id.User.DisplayName())
		p.conn.Stop()
	}
	p.lastUser = user

	p.conn.SetAuthenticated(true)
	if err := p.conn.Start(); err != nil && !errors.Is(err, connection.ErrAlreadyClosed) {
		p.logger.Warn("failed to start channel", "error", err)
	}
}

// handshakeHeader sends the stored legacy token, if any, on every dial.
func (p *Pipeline) handshakeHeader() http.Header {
	h := http.Header{}
	h.Set("User-Agent", version.UserAgent())

	ctx, cancel := context.WithTimeout(context.Background(), tokenReadTimeout)
	defer cancel()

	token, ok, err := p.store.Get(ctx, cache.KeyToken)
	if err != nil {
		p.logger.Warn("failed to read token for handshake", "error", err)
		return h
	}
	if ok && token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

// IsAuthenticated reports whether a user is signed in.
func (p *Pipeline) IsAuthenticated() bool {
	return p.auth.Current().Authenticated
}

// CurrentUser returns the signed-in user, or nil.
func (p *Pipeline) CurrentUser() *model.UserRef {
	return p.auth.Current().User
}

// Identity returns the full identity state.
func (p *Pipeline) Identity() auth.Identity {
	return p.auth.Current()
}

// WatchIdentity registers fn for identity changes.
func (p *Pipeline) WatchIdentity(fn func(auth.Identity)) func() {
	return p.auth.Watch(fn)
}

// ChannelState returns the event channel state.
func (p *Pipeline) ChannelState() connection.State {
	return p.conn.State()
}

// RouterStats returns event routing counters.
func (p *Pipeline) RouterStats() router.Stats {
	return p.router.Stats()
}

// OnOrderEvent subscribes to executed orders.
func (p *Pipeline) OnOrderEvent(fn func(model.OrderExecuted)) func() {
	return p.router.OnOrderEvent(fn)
}

// OnClosePosition subscribes to close-all-positions results.
func (p *Pipeline) OnClosePosition(fn func(model.PositionsClosed)) func() {
	return p.router.OnClosePosition(fn)
}

// OnCancelOrder subscribes to cancel results.
func (p *Pipeline) OnCancelOrder(fn func(model.OrderCancelled)) func() {
	return p.router.OnCancelOrder(fn)
}

// OnModifyOrder subscribes to modify results.
func (p *Pipeline) OnModifyOrder(fn func(model.OrderModified)) func() {
	return p.router.OnModifyOrder(fn)
}

// OnMasterContractDownload subscribes to reference data refresh results.
func (p *Pipeline) OnMasterContractDownload(fn func(model.ReferenceDataRefresh)) func() {
	return p.router.OnMasterContractDownload(fn)
}

// ActiveNotifications returns the visible notifications, oldest first.
func (p *Pipeline) ActiveNotifications() []notify.Notification {
	return p.center.Active()
}

// WatchNotifications registers fn for changes to the active set.
func (p *Pipeline) WatchNotifications(fn func(notify.Change)) func() {
	return p.center.Watch(fn)
}

// Dismiss removes a notification before its TTL.
func (p *Pipeline) Dismiss(id uuid.UUID) bool {
	return p.center.Dismiss(id)
}

// DismissAll clears every active notification and returns how many there were.
func (p *Pipeline) DismissAll() int {
	return p.center.DismissAll()
}

// Reconnect asks for the channel again after it gave up or was stopped.
// An open channel is left alone. It fails with connection.ErrNotAuthenticated
// while signed out.
func (p *Pipeline) Reconnect() error {
	if err := p.conn.Start(); err != nil {
		return err
	}
	p.logger.Info("channel reconnect requested")
	return nil
}

// Login signs in through the legacy endpoint.
func (p *Pipeline) Login(ctx context.Context, username, password string) (auth.Identity, error) {
	return p.auth.Login(ctx, username, password)
}

// Register creates an account and returns the server's message.
func (p *Pipeline) Register(ctx context.Context, username, email, password string) (string, error) {
	return p.auth.Register(ctx, username, email, password)
}

// Logout signs out locally and on the server. The channel closes at once.
func (p *Pipeline) Logout(ctx context.Context) error {
	return p.auth.Logout(ctx)
}

// Resolve re-runs identity resolution now.
func (p *Pipeline) Resolve(ctx context.Context) auth.Identity {
	return p.auth.Resolve(ctx)
}
