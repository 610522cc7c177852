package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rickgao/tradeline/internal/api"
	"github.com/rickgao/tradeline/internal/cache"
	"github.com/rickgao/tradeline/internal/metrics"
	"github.com/rickgao/tradeline/internal/model"
)

type fakeAPI struct {
	session func(ctx context.Context) (*api.SessionStatus, error)
	verify  func(ctx context.Context, token string) (*api.LegacyResponse, error)
	login   func(ctx context.Context, req api.LoginRequest) (*api.LegacyResponse, error)

	mu          sync.Mutex
	verifyToken string
	logoutToken string
	logoutCalls int
}

func (f *fakeAPI) SessionStatus(ctx context.Context) (*api.SessionStatus, error) {
	if f.session == nil {
		return &api.SessionStatus{Authenticated: false}, nil
	}
	return f.session(ctx)
}

func (f *fakeAPI) Verify(ctx context.Context, token string) (*api.LegacyResponse, error) {
	f.mu.Lock()
	f.verifyToken = token
	f.mu.Unlock()
	if f.verify == nil {
		return nil, &api.APIError{StatusCode: 401, Message: "invalid token"}
	}
	return f.verify(ctx, token)
}

func (f *fakeAPI) Login(ctx context.Context, req api.LoginRequest) (*api.LegacyResponse, error) {
	if f.login == nil {
		return nil, &api.APIError{StatusCode: 401, Message: "bad credentials"}
	}
	return f.login(ctx, req)
}

func (f *fakeAPI) Register(_ context.Context, req api.RegisterRequest) (*api.LegacyResponse, error) {
	return &api.LegacyResponse{Status: api.StatusSuccess, Message: "registered " + req.Username}, nil
}

func (f *fakeAPI) Logout(_ context.Context, token string) (*api.LegacyResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutToken = token
	f.logoutCalls++
	return &api.LegacyResponse{Status: api.StatusSuccess}, nil
}

// countingStore counts mutations so tests can assert one cache operation per
// resolution.
type countingStore struct {
	*cache.MemoryStore
	mu      sync.Mutex
	sets    int
	deletes int
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: cache.NewMemoryStore()}
}

func (s *countingStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	s.sets++
	s.mu.Unlock()
	return s.MemoryStore.Set(ctx, key, value)
}

func (s *countingStore) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	s.deletes++
	s.mu.Unlock()
	return s.MemoryStore.Delete(ctx, keys...)
}

func (s *countingStore) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets, s.deletes
}

func (s *countingStore) reset() {
	s.mu.Lock()
	s.sets, s.deletes = 0, 0
	s.mu.Unlock()
}

func seedUser(t *testing.T, s *countingStore, u model.UserRef) {
	t.Helper()
	data, err := json.Marshal(u)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.MemoryStore.Set(context.Background(), cache.KeyUser, string(data)); err != nil {
		t.Fatal(err)
	}
}

func cachedUserOf(t *testing.T, s *countingStore) (model.UserRef, bool) {
	t.Helper()
	raw, ok, err := s.MemoryStore.Get(context.Background(), cache.KeyUser)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		return model.UserRef{}, false
	}
	var u model.UserRef
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		t.Fatal(err)
	}
	return u, true
}

func sessionWith(u *api.UserRecord) func(context.Context) (*api.SessionStatus, error) {
	return func(context.Context) (*api.SessionStatus, error) {
		return &api.SessionStatus{Authenticated: u != nil, User: u}, nil
	}
}

var (
	alice = &api.UserRecord{ID: "7", Username: "alice", Email: "alice@example.com"}
	bob   = &api.UserRecord{ID: "9", Username: "bob"}
)

func TestIdentityConstructors(t *testing.T) {
	id := Authenticated(model.UserRef{ID: "1", Username: "x"}, SourcePrimary)
	if !id.Authenticated || id.User == nil || id.Source != SourcePrimary {
		t.Errorf("Authenticated() = %+v", id)
	}
	anon := Anonymous()
	if anon.Authenticated || anon.User != nil || anon.Source != SourceNone {
		t.Errorf("Anonymous() = %+v", anon)
	}
	if !anon.Equal(Anonymous()) {
		t.Error("Anonymous should equal itself")
	}
	if id.Equal(Authenticated(model.UserRef{ID: "1", Username: "x"}, SourceLegacy)) {
		t.Error("identities with different sources should differ")
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"retain", PolicyRetain, false},
		{"drop", PolicyDrop, false},
		{"", PolicyRetain, false},
		{"keep", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePolicy(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParsePolicy(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolve_Steps(t *testing.T) {
	tests := []struct {
		name        string
		session     func(context.Context) (*api.SessionStatus, error)
		verify      func(context.Context, string) (*api.LegacyResponse, error)
		token       string
		wantSource  Source
		wantUser    string
		wantSets    int
		wantDeletes int
	}{
		{
			name:       "primary",
			session:    sessionWith(alice),
			wantSource: SourcePrimary,
			wantUser:   "alice",
			wantSets:   1,
		},
		{
			name:    "legacy",
			session: sessionWith(nil),
			token:   "tok-1",
			verify: func(context.Context, string) (*api.LegacyResponse, error) {
				return &api.LegacyResponse{Status: api.StatusSuccess, User: bob}, nil
			},
			wantSource: SourceLegacy,
			wantUser:   "bob",
			wantSets:   1,
		},
		{
			name: "primary unreachable falls through to legacy",
			session: func(context.Context) (*api.SessionStatus, error) {
				return nil, errors.New("connection refused")
			},
			token: "tok-1",
			verify: func(context.Context, string) (*api.LegacyResponse, error) {
				return &api.LegacyResponse{Status: api.StatusSuccess, User: bob}, nil
			},
			wantSource: SourceLegacy,
			wantUser:   "bob",
			wantSets:   1,
		},
		{
			name:        "none without token",
			session:     sessionWith(nil),
			wantSource:  SourceNone,
			wantDeletes: 1,
		},
		{
			name:    "none with rejected token",
			session: sessionWith(nil),
			token:   "expired",
			verify: func(context.Context, string) (*api.LegacyResponse, error) {
				resp := &api.LegacyResponse{Status: api.StatusError, Message: "expired"}
				return resp, &api.APIError{StatusCode: 200, Message: "expired"}
			},
			wantSource:  SourceNone,
			wantDeletes: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newCountingStore()
			if tt.token != "" {
				store.MemoryStore.Set(context.Background(), cache.KeyToken, tt.token)
			}
			fake := &fakeAPI{session: tt.session, verify: tt.verify}
			r := NewResolver(fake, store, Config{}, nil)
			defer r.Close()

			id := r.Resolve(context.Background())

			if id.Source != tt.wantSource {
				t.Errorf("Source = %q, want %q", id.Source, tt.wantSource)
			}
			if id.Authenticated != (tt.wantUser != "") {
				t.Errorf("Authenticated = %v", id.Authenticated)
			}
			if tt.wantUser != "" && id.User.Username != tt.wantUser {
				t.Errorf("User = %q, want %q", id.User.Username, tt.wantUser)
			}
			if !r.Current().Equal(id) {
				t.Errorf("Current() = %v, want %v", r.Current(), id)
			}

			sets, deletes := store.counts()
			if sets != tt.wantSets || deletes != tt.wantDeletes {
				t.Errorf("cache ops = %d sets, %d deletes; want %d, %d", sets, deletes, tt.wantSets, tt.wantDeletes)
			}

			cached, ok := cachedUserOf(t, store)
			if tt.wantUser != "" {
				if !ok || cached.Username != tt.wantUser {
					t.Errorf("cached user = %+v, %v", cached, ok)
				}
			} else if ok {
				t.Errorf("auth_user should be removed, got %+v", cached)
			}

			if tt.token != "" {
				fake.mu.Lock()
				if fake.verifyToken != tt.token {
					t.Errorf("Verify token = %q, want %q", fake.verifyToken, tt.token)
				}
				fake.mu.Unlock()
			}
		})
	}
}

func TestResolve_CacheThenBackground(t *testing.T) {
	store := newCountingStore()
	seedUser(t, store, model.UserRef{ID: "7", Username: "alice-cached"})

	release := make(chan struct{})
	fake := &fakeAPI{session: func(context.Context) (*api.SessionStatus, error) {
		<-release
		return &api.SessionStatus{Authenticated: true, User: alice}, nil
	}}
	r := NewResolver(fake, store, Config{}, nil)

	id := r.Resolve(context.Background())
	if id.Source != SourceCache || id.User.Username != "alice-cached" {
		t.Fatalf("Resolve() = %v, want cached identity", id)
	}
	if sets, deletes := store.counts(); sets != 0 || deletes != 0 {
		t.Errorf("cache hit should not touch the store, got %d sets %d deletes", sets, deletes)
	}

	close(release)
	r.Close()

	cur := r.Current()
	if cur.Source != SourcePrimary || cur.User.Username != "alice" {
		t.Errorf("after validation Current() = %v", cur)
	}
	if sets, _ := store.counts(); sets != 1 {
		t.Errorf("sets = %d, want 1", sets)
	}
}

func TestResolve_CachedNumericID(t *testing.T) {
	store := newCountingStore()
	store.MemoryStore.Set(context.Background(), cache.KeyUser, `{"id":42,"username":"carol"}`)

	fake := &fakeAPI{session: sessionWith(&api.UserRecord{ID: "42", Username: "carol"})}
	r := NewResolver(fake, store, Config{}, nil)
	defer r.Close()

	id := r.Resolve(context.Background())
	if id.Source != SourceCache || id.User.ID != "42" {
		t.Errorf("Resolve() = %+v", id)
	}
}

func TestInvalidate_DiscardsInFlight(t *testing.T) {
	store := newCountingStore()

	entered := make(chan struct{})
	release := make(chan struct{})
	fake := &fakeAPI{session: func(context.Context) (*api.SessionStatus, error) {
		close(entered)
		<-release
		return &api.SessionStatus{Authenticated: true, User: alice}, nil
	}}
	r := NewResolver(fake, store, Config{}, nil)
	defer r.Close()

	staleBefore := testutil.ToFloat64(metrics.IdentityStale)

	done := make(chan Identity)
	go func() {
		done <- r.Resolve(context.Background())
	}()

	<-entered
	r.Invalidate()
	store.reset()
	close(release)

	select {
	case id := <-done:
		if id.Authenticated {
			t.Errorf("Resolve() after Invalidate = %v, want anonymous", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Resolve did not return")
	}

	if r.Current().Authenticated {
		t.Errorf("Current() = %v, want anonymous", r.Current())
	}
	if sets, deletes := store.counts(); sets != 0 || deletes != 0 {
		t.Errorf("stale result touched the cache: %d sets, %d deletes", sets, deletes)
	}
	if _, ok := cachedUserOf(t, store); ok {
		t.Error("auth_user should stay cleared")
	}
	if got := testutil.ToFloat64(metrics.IdentityStale) - staleBefore; got != 1 {
		t.Errorf("stale counter delta = %v, want 1", got)
	}
}

func TestInvalidate_ClearsBothKeys(t *testing.T) {
	store := newCountingStore()
	store.MemoryStore.Set(context.Background(), cache.KeyToken, "tok")

	r := NewResolver(&fakeAPI{session: sessionWith(alice)}, store, Config{}, nil)
	defer r.Close()

	var seen []Identity
	cancel := r.Watch(func(id Identity) { seen = append(seen, id) })
	defer cancel()

	r.Resolve(context.Background())
	r.Invalidate()

	for _, key := range []string{cache.KeyUser, cache.KeyToken} {
		if _, ok, _ := store.MemoryStore.Get(context.Background(), key); ok {
			t.Errorf("%s still cached", key)
		}
	}
	if len(seen) != 2 || !seen[0].Authenticated || seen[1].Authenticated {
		t.Errorf("watcher saw %v", seen)
	}
}

func TestTransportPolicy(t *testing.T) {
	unreachable := func(context.Context) (*api.SessionStatus, error) {
		return nil, &api.APIError{StatusCode: 503, Message: "unavailable"}
	}
	unauthorized := func(context.Context) (*api.SessionStatus, error) {
		return nil, &api.APIError{StatusCode: 401, Message: "unauthorized"}
	}
	malformed := func(context.Context) (*api.SessionStatus, error) {
		return nil, fmt.Errorf("%w: unexpected end of JSON input", api.ErrMalformedResponse)
	}

	tests := []struct {
		name     string
		policy   Policy
		session  func(context.Context) (*api.SessionStatus, error)
		wantAuth bool
	}{
		{"retain keeps identity", PolicyRetain, unreachable, true},
		{"drop clears identity", PolicyDrop, unreachable, false},
		{"explicit rejection clears under retain", PolicyRetain, unauthorized, false},
		{"malformed body clears under retain", PolicyRetain, malformed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newCountingStore()
			seedUser(t, store, model.UserRef{ID: "7", Username: "alice"})

			r := NewResolver(&fakeAPI{session: tt.session}, store, Config{OnTransportError: tt.policy}, nil)
			if id := r.Resolve(context.Background()); id.Source != SourceCache {
				t.Fatalf("Resolve() = %v, want cache", id)
			}
			r.Close()

			cur := r.Current()
			if cur.Authenticated != tt.wantAuth {
				t.Errorf("Current() = %v, want authenticated=%v", cur, tt.wantAuth)
			}
			_, cached := cachedUserOf(t, store)
			if cached != tt.wantAuth {
				t.Errorf("auth_user cached = %v, want %v", cached, tt.wantAuth)
			}
		})
	}
}

func TestTransportPolicy_CancelledKeepsIdentity(t *testing.T) {
	for _, policy := range []Policy{PolicyRetain, PolicyDrop} {
		t.Run(string(policy), func(t *testing.T) {
			store := newCountingStore()
			fake := &fakeAPI{session: sessionWith(alice)}
			r := NewResolver(fake, store, Config{OnTransportError: policy}, nil)
			defer r.Close()

			if id := r.Resolve(context.Background()); !id.Authenticated || id.Source != SourcePrimary {
				t.Fatalf("Resolve() = %v, want alice from primary", id)
			}
			store.reset()

			fake.session = func(ctx context.Context) (*api.SessionStatus, error) {
				return nil, fmt.Errorf("do request: %w", ctx.Err())
			}
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			if id := r.Revalidate(ctx); !id.Authenticated || id.User.Username != "alice" {
				t.Errorf("Revalidate() = %v, want alice kept", id)
			}
			if cur := r.Current(); !cur.Authenticated {
				t.Errorf("Current() = %v, want authenticated", cur)
			}
			if u, ok := cachedUserOf(t, store); !ok || u.Username != "alice" {
				t.Errorf("cached user = %+v, %v; want alice", u, ok)
			}
			if sets, deletes := store.counts(); sets != 0 || deletes != 0 {
				t.Errorf("cache writes = %d sets, %d deletes; want none", sets, deletes)
			}
		})
	}
}

func TestTransportPolicy_AnonymousStaysAnonymous(t *testing.T) {
	fake := &fakeAPI{session: func(context.Context) (*api.SessionStatus, error) {
		return nil, errors.New("dial tcp: connection refused")
	}}
	r := NewResolver(fake, newCountingStore(), Config{OnTransportError: PolicyRetain}, nil)
	defer r.Close()

	if id := r.Resolve(context.Background()); id.Authenticated {
		t.Errorf("Resolve() = %v, want anonymous", id)
	}
}

func TestLoginLogout(t *testing.T) {
	store := newCountingStore()
	fake := &fakeAPI{
		login: func(_ context.Context, req api.LoginRequest) (*api.LegacyResponse, error) {
			if req.Username != "alice" || req.Password != "secret" {
				return nil, &api.APIError{StatusCode: 401, Message: "bad credentials"}
			}
			return &api.LegacyResponse{Status: api.StatusSuccess, Token: "tok-42", User: alice}, nil
		},
	}
	r := NewResolver(fake, store, Config{}, nil)
	defer r.Close()

	if _, err := r.Login(context.Background(), "alice", "wrong"); err == nil {
		t.Fatal("expected error for bad credentials")
	}

	id, err := r.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if id.Source != SourceLegacy || id.User.Username != "alice" {
		t.Errorf("Login() = %v", id)
	}
	token, ok, _ := store.MemoryStore.Get(context.Background(), cache.KeyToken)
	if !ok || token != "tok-42" {
		t.Errorf("token = %q, %v", token, ok)
	}

	if err := r.Logout(context.Background()); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if r.Current().Authenticated {
		t.Error("still authenticated after Logout")
	}
	fake.mu.Lock()
	if fake.logoutCalls != 1 || fake.logoutToken != "tok-42" {
		t.Errorf("Logout sent token %q (%d calls)", fake.logoutToken, fake.logoutCalls)
	}
	fake.mu.Unlock()
	if _, ok, _ := store.MemoryStore.Get(context.Background(), cache.KeyToken); ok {
		t.Error("token still cached after Logout")
	}
}

func TestRegister(t *testing.T) {
	r := NewResolver(&fakeAPI{}, newCountingStore(), Config{}, nil)
	msg, err := r.Register(context.Background(), "dave", "dave@example.com", "pw")
	if err != nil {
		t.Fatal(err)
	}
	if msg != "registered dave" {
		t.Errorf("message = %q", msg)
	}
	if r.Current().Authenticated {
		t.Error("Register should not sign in")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	r := NewResolver(&fakeAPI{}, newCountingStore(), Config{RevalidateInterval: 10 * time.Millisecond}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := r.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() = %v, want deadline exceeded", err)
	}
}
