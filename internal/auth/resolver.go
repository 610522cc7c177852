package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/tradeline/internal/api"
	"github.com/rickgao/tradeline/internal/cache"
	"github.com/rickgao/tradeline/internal/metrics"
	"github.com/rickgao/tradeline/internal/model"
)

// SessionAPI is the subset of *api.Client the resolver talks to.
type SessionAPI interface {
	SessionStatus(ctx context.Context) (*api.SessionStatus, error)
	Verify(ctx context.Context, token string) (*api.LegacyResponse, error)
	Login(ctx context.Context, req api.LoginRequest) (*api.LegacyResponse, error)
	Register(ctx context.Context, req api.RegisterRequest) (*api.LegacyResponse, error)
	Logout(ctx context.Context, token string) (*api.LegacyResponse, error)
}

var (
	// errNoUser is a definite "not signed in" answer from a scheme.
	errNoUser = errors.New("no user")
	// errSkipped marks a step that had nothing to ask, e.g. no stored token.
	errSkipped = errors.New("step skipped")
)

// step asks one auth scheme for the current user.
type step struct {
	source Source
	run    func(ctx context.Context) (model.UserRef, error)
}

type cacheOp int

const (
	cacheKeep cacheOp = iota
	cacheWriteUser
	cacheRemoveUser
)

// Resolver owns the client's identity.
type Resolver struct {
	api    SessionAPI
	store  cache.Store
	cfg    Config
	logger *slog.Logger
	steps  []step

	// resolveMu serializes resolutions so steps never interleave.
	resolveMu sync.Mutex

	mu       sync.Mutex
	current  Identity
	gen      uint64
	watchers map[int]func(Identity)
	nextID   int

	// notifyMu is taken before mu is released so watchers see changes in
	// commit order.
	notifyMu sync.Mutex

	wg sync.WaitGroup
}

// NewResolver creates a resolver. The identity starts anonymous until the
// first Resolve.
func NewResolver(client SessionAPI, store cache.Store, cfg Config, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.RevalidateInterval <= 0 {
		cfg.RevalidateInterval = def.RevalidateInterval
	}
	if cfg.ValidateTimeout <= 0 {
		cfg.ValidateTimeout = def.ValidateTimeout
	}
	if cfg.OnTransportError == "" {
		cfg.OnTransportError = def.OnTransportError
	}

	r := &Resolver{
		api:      client,
		store:    store,
		cfg:      cfg,
		logger:   logger.With("component", "auth"),
		current:  Anonymous(),
		watchers: make(map[int]func(Identity)),
	}
	r.steps = []step{
		{source: SourcePrimary, run: r.primary},
		{source: SourceLegacy, run: r.legacy},
	}
	return r
}

// Current returns the committed identity without any I/O.
func (r *Resolver) Current() Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Watch registers fn to be called after each identity change and after every
// Invalidate. fn must not call Invalidate, Resolve or Login. The returned
// function removes the watcher.
func (r *Resolver) Watch(fn func(Identity)) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.watchers[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.watchers, id)
		r.mu.Unlock()
	}
}

// Resolve determines the identity. A cached user is returned at once with
// source "cache" and checked against the server in the background; otherwise
// the remote schemes are asked in order before returning.
func (r *Resolver) Resolve(ctx context.Context) Identity {
	r.resolveMu.Lock()
	defer r.resolveMu.Unlock()

	gen := r.generation()

	if user, ok := r.cachedUser(ctx); ok {
		id := Authenticated(user, SourceCache)
		if !r.commit(ctx, gen, id, cacheKeep) {
			return r.Current()
		}

		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			vctx, cancel := context.WithTimeout(context.Background(), r.cfg.ValidateTimeout)
			defer cancel()

			r.resolveMu.Lock()
			defer r.resolveMu.Unlock()
			r.validate(vctx, gen)
		}()
		return id
	}

	return r.validate(ctx, gen)
}

// Revalidate asks the remote schemes again, skipping the cache.
func (r *Resolver) Revalidate(ctx context.Context) Identity {
	r.resolveMu.Lock()
	defer r.resolveMu.Unlock()
	return r.validate(ctx, r.generation())
}

// Invalidate signs the client out locally: both cache keys and the in-memory
// identity are cleared and any resolution still in flight is discarded.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.gen++
	if err := r.store.Delete(context.Background(), cache.KeyUser, cache.KeyToken); err != nil {
		r.logger.Warn("failed to clear auth cache", "error", err)
	}
	r.current = Anonymous()
	watchers := r.snapshotWatchers()

	r.notifyMu.Lock()
	r.mu.Unlock()
	defer r.notifyMu.Unlock()

	r.logger.Info("identity invalidated")
	for _, fn := range watchers {
		fn(Anonymous())
	}
}

// Login signs in through the legacy endpoint and stores the bearer token.
func (r *Resolver) Login(ctx context.Context, username, password string) (Identity, error) {
	r.Invalidate()
	gen := r.generation()

	resp, err := r.api.Login(ctx, api.LoginRequest{Username: username, Password: password})
	if err != nil {
		return r.Current(), fmt.Errorf("login: %w", err)
	}

	if resp.Token != "" {
		if !r.storeToken(ctx, gen, resp.Token) {
			return r.Current(), errors.New("login: superseded by sign-out")
		}
	}

	if resp.User != nil && resp.User.Ref().Valid() {
		r.resolveMu.Lock()
		defer r.resolveMu.Unlock()
		id := Authenticated(resp.User.Ref(), SourceLegacy)
		if !r.commit(ctx, gen, id, cacheWriteUser) {
			return r.Current(), errors.New("login: superseded by sign-out")
		}
		return id, nil
	}

	return r.Revalidate(ctx), nil
}

// Register creates an account. It does not sign in.
func (r *Resolver) Register(ctx context.Context, username, email, password string) (string, error) {
	resp, err := r.api.Register(ctx, api.RegisterRequest{
		Username: username,
		Email:    email,
		Password: password,
	})
	if err != nil {
		return "", fmt.Errorf("register: %w", err)
	}
	return resp.Message, nil
}

// Logout clears local state first and then tells the server. The local
// sign-out stands even if the server call fails.
func (r *Resolver) Logout(ctx context.Context) error {
	token, _, err := r.store.Get(ctx, cache.KeyToken)
	if err != nil {
		r.logger.Warn("failed to read token", "error", err)
	}

	r.Invalidate()

	if _, err := r.api.Logout(ctx, token); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Run re-validates the identity every RevalidateInterval until ctx is done.
func (r *Resolver) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.RevalidateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !r.Current().Authenticated {
				continue
			}
			id := r.Revalidate(ctx)
			r.logger.Debug("identity revalidated", "identity", id.String())
		}
	}
}

// Close waits for background validations to finish.
func (r *Resolver) Close() {
	r.wg.Wait()
}

// validate runs the remote steps under generation gen. Caller holds resolveMu.
func (r *Resolver) validate(ctx context.Context, gen uint64) Identity {
	asked, unreachable := 0, 0

	for _, s := range r.steps {
		user, err := s.run(ctx)
		if err == nil {
			id := Authenticated(user, s.source)
			if !r.commit(ctx, gen, id, cacheWriteUser) {
				return r.Current()
			}
			return id
		}

		// Shutdown is not an answer; leave identity and cache untouched.
		if errors.Is(ctx.Err(), context.Canceled) {
			r.logger.Debug("auth validation cancelled", "source", s.source)
			return r.Current()
		}

		switch {
		case errors.Is(err, errSkipped):
			r.logger.Debug("auth step skipped", "source", s.source)
			continue
		case errors.Is(err, errNoUser) || !api.IsTransport(err):
			r.logger.Debug("auth step rejected", "source", s.source, "error", err)
		default:
			unreachable++
			r.logger.Warn("auth step unreachable", "source", s.source, "error", err)
		}
		asked++
	}

	if asked > 0 && asked == unreachable && r.cfg.OnTransportError == PolicyRetain {
		cur := r.Current()
		if cur.Authenticated && r.generation() == gen {
			r.logger.Warn("auth server unreachable, keeping identity", "identity", cur.String())
			return cur
		}
	}

	id := Anonymous()
	if !r.commit(ctx, gen, id, cacheRemoveUser) {
		return r.Current()
	}
	return id
}

// commit installs id if no Invalidate happened since gen was read. It
// performs at most one cache operation.
func (r *Resolver) commit(ctx context.Context, gen uint64, id Identity, op cacheOp) bool {
	ctx = context.WithoutCancel(ctx)

	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		metrics.IdentityStale.Inc()
		r.logger.Debug("discarding stale identity", "identity", id.String())
		return false
	}

	switch op {
	case cacheWriteUser:
		data, err := json.Marshal(id.User)
		if err == nil {
			err = r.store.Set(ctx, cache.KeyUser, string(data))
		}
		if err != nil {
			r.logger.Warn("failed to cache user", "error", err)
		}
	case cacheRemoveUser:
		if err := r.store.Delete(ctx, cache.KeyUser); err != nil {
			r.logger.Warn("failed to remove cached user", "error", err)
		}
	}

	changed := !r.current.Equal(id)
	r.current = id
	watchers := r.snapshotWatchers()

	r.notifyMu.Lock()
	r.mu.Unlock()
	defer r.notifyMu.Unlock()

	metrics.IdentityResolutions.WithLabelValues(string(id.Source)).Inc()
	if changed {
		r.logger.Info("identity changed", "identity", id.String())
		for _, fn := range watchers {
			fn(id)
		}
	}
	return true
}

func (r *Resolver) storeToken(ctx context.Context, gen uint64, token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen {
		return false
	}
	if err := r.store.Set(context.WithoutCancel(ctx), cache.KeyToken, token); err != nil {
		r.logger.Warn("failed to cache token", "error", err)
	}
	return true
}

func (r *Resolver) generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}

// snapshotWatchers copies the watcher list. Caller holds mu.
func (r *Resolver) snapshotWatchers() []func(Identity) {
	out := make([]func(Identity), 0, len(r.watchers))
	for i := 0; i < r.nextID; i++ {
		if fn, ok := r.watchers[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func (r *Resolver) cachedUser(ctx context.Context) (model.UserRef, bool) {
	raw, ok, err := r.store.Get(ctx, cache.KeyUser)
	if err != nil {
		r.logger.Warn("failed to read cached user", "error", err)
		return model.UserRef{}, false
	}
	if !ok || raw == "" {
		return model.UserRef{}, false
	}

	var rec api.UserRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		r.logger.Warn("ignoring malformed cached user", "error", err)
		return model.UserRef{}, false
	}
	user := rec.Ref()
	if !user.Valid() {
		return model.UserRef{}, false
	}
	return user, true
}

func (r *Resolver) primary(ctx context.Context) (model.UserRef, error) {
	status, err := r.api.SessionStatus(ctx)
	if err != nil {
		return model.UserRef{}, err
	}
	if !status.Authenticated || status.User == nil {
		return model.UserRef{}, errNoUser
	}
	user := status.User.Ref()
	if !user.Valid() {
		return model.UserRef{}, errNoUser
	}
	return user, nil
}

func (r *Resolver) legacy(ctx context.Context) (model.UserRef, error) {
	token, ok, err := r.store.Get(ctx, cache.KeyToken)
	if err != nil {
		return model.UserRef{}, fmt.Errorf("%w: read token: %v", errSkipped, err)
	}
	if !ok || token == "" {
		return model.UserRef{}, errSkipped
	}

	resp, err := r.api.Verify(ctx, token)
	if err != nil {
		return model.UserRef{}, err
	}
	if resp.User == nil || !resp.User.Ref().Valid() {
		return model.UserRef{}, errNoUser
	}
	return resp.User.Ref(), nil
}
