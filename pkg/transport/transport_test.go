package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablerohq/tablero/pkg/csrf"
	"github.com/tablerohq/tablero/pkg/observability"
	"github.com/tablerohq/tablero/pkg/session"
)

// staticSource serves a fixed cookie value.
type staticSource struct {
	mu    sync.Mutex
	token string
}

func (s *staticSource) set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func (s *staticSource) CSRFCookie() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.token != ""
}

// fakeRefresher scripts the refresh outcome.
type fakeRefresher struct {
	store *session.Store

	mu            sync.Mutex
	refreshCalls  int
	resyncCalls   int
	expiredCalls  int
	refreshErr    error
	refreshDelay  time.Duration
	nextAccess    string
	nextCSRF      string
	lastCSRFToken string
}

func (f *fakeRefresher) RefreshCredentials(ctx context.Context, csrfToken string) error {
	f.mu.Lock()
	f.refreshCalls++
	f.lastCSRFToken = csrfToken
	err := f.refreshErr
	delay := f.refreshDelay
	access, csrfTok := f.nextAccess, f.nextCSRF
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return err
	}
	f.store.SetAccessToken(ctx, access)
	f.store.SetCSRFToken(ctx, csrfTok)
	return nil
}

func (f *fakeRefresher) ResyncSession(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resyncCalls++
	return nil
}

func (f *fakeRefresher) HandleSessionExpired(ctx context.Context) {
	f.mu.Lock()
	f.expiredCalls++
	f.mu.Unlock()
	f.store.Clear(ctx)
}

func (f *fakeRefresher) counts() (refresh, resync, expired int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls, f.resyncCalls, f.expiredCalls
}

type fixture struct {
	store     *session.Store
	source    *staticSource
	refresher *fakeRefresher
	transport *AuthTransport
	client    *http.Client
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := session.NewStore(session.NewMemoryStorage(), session.WithLogger(observability.NopLogger()))
	source := &staticSource{}
	syn := csrf.NewSynchronizer(source, store, observability.NopLogger(), nil)
	syn.Timeout = 200 * time.Millisecond
	syn.PollInterval = 20 * time.Millisecond

	refresher := &fakeRefresher{store: store}
	opts = append([]Option{WithLogger(observability.NopLogger())}, opts...)
	tr := New(store, syn, refresher, opts...)

	return &fixture{
		store:     store,
		source:    source,
		refresher: refresher,
		transport: tr,
		client:    &http.Client{Transport: tr},
	}
}

func (f *fixture) seed(t *testing.T, access, csrfToken string) {
	t.Helper()
	ctx := context.Background()
	f.store.SetAccessToken(ctx, access)
	f.store.SetCSRFToken(ctx, csrfToken)
}

func TestOutboundAttachesCredentialHeaders(t *testing.T) {
	var gotAuth, gotCSRF string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCSRF = r.Header.Get(CSRFHeader)
	}))
	defer server.Close()

	f := newFixture(t)
	f.seed(t, "A1", "C1")

	resp, err := f.client.Get(server.URL + "/users")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer A1", gotAuth)
	assert.Equal(t, "C1", gotCSRF)
}

func TestOutboundSkipsHeadersWhenTokensAbsent(t *testing.T) {
	var hasAuth, hasCSRF bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasAuth = r.Header["Authorization"]
		_, hasCSRF = r.Header[http.CanonicalHeaderKey(CSRFHeader)]
	}))
	defer server.Close()

	f := newFixture(t)

	resp, err := f.client.Get(server.URL + "/public/roles")
	require.NoError(t, err)
	resp.Body.Close()

	assert.False(t, hasAuth)
	assert.False(t, hasCSRF)
}

func TestRefreshAndReplayCarriesNewTokens(t *testing.T) {
	var mu sync.Mutex
	var headerLog []http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		headerLog = append(headerLog, r.Header.Clone())
		mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer A2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	f := newFixture(t)
	f.seed(t, "A1", "C1")
	f.source.set("C1")
	f.refresher.nextAccess = "A2"
	f.refresher.nextCSRF = "C2"

	resp, err := f.client.Get(server.URL + "/users")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	refresh, resync, expired := f.refresher.counts()
	assert.Equal(t, 1, refresh)
	assert.Equal(t, 1, resync)
	assert.Equal(t, 0, expired)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, headerLog, 2, "original attempt plus exactly one replay")
	assert.Equal(t, "Bearer A1", headerLog[0].Get("Authorization"))
	assert.Equal(t, "C1", headerLog[0].Get(CSRFHeader))
	assert.Equal(t, "Bearer A2", headerLog[1].Get("Authorization"))
	assert.Equal(t, "C2", headerLog[1].Get(CSRFHeader))
}

func TestAtMostOneRetryPerRequest(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	f := newFixture(t)
	f.seed(t, "A1", "C1")
	f.source.set("C1")
	f.refresher.nextAccess = "A2"
	f.refresher.nextCSRF = "C2"

	resp, err := f.client.Get(server.URL + "/users")
	require.NoError(t, err)
	defer resp.Body.Close()

	// Refresh succeeded but the replay still failed: the second 401 is
	// returned untouched, no second recovery.
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))

	refresh, _, _ := f.refresher.counts()
	assert.Equal(t, 1, refresh)
}

func TestAuthEndpointsNeverRecover(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	f := newFixture(t)
	f.seed(t, "A1", "C1")

	for _, path := range []string{"/auth/login", "/auth/logout", "/auth/refresh-token"} {
		resp, err := f.client.Post(server.URL+path, "application/json", strings.NewReader("{}"))
		require.NoError(t, err, path)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}

	refresh, _, _ := f.refresher.counts()
	assert.Equal(t, 0, refresh, "auth endpoints must not trigger the recovery phase")
}

func TestSkipHeaderRespected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	f := newFixture(t)
	f.seed(t, "A1", "C1")

	req, err := http.NewRequest(http.MethodGet, server.URL+"/users", nil)
	require.NoError(t, err)
	req.Header.Set(SkipRefreshHeader, "true")

	resp, err := f.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	refresh, _, _ := f.refresher.counts()
	assert.Equal(t, 0, refresh)
}

func TestRefreshFailureClearsSessionAndSurfacesError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	f := newFixture(t)
	f.seed(t, "A1", "C1")
	f.source.set("C1")
	f.refresher.refreshErr = assert.AnError

	_, err := f.client.Get(server.URL + "/users")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session refresh failed")

	_, _, expired := f.refresher.counts()
	assert.Equal(t, 1, expired)
	assert.False(t, f.store.IsAuthenticated())
	assert.Empty(t, f.store.AccessToken())
	assert.Empty(t, f.store.CSRFToken())
}

func TestRotationTimeoutFallsBackToCurrentToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer A2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	f := newFixture(t)
	f.seed(t, "A1", "C1")
	// No cookie ever appears: Wait times out and the recovery proceeds
	// with the token already in the store.
	f.refresher.nextAccess = "A2"
	f.refresher.nextCSRF = "C2"

	resp, err := f.client.Get(server.URL + "/users")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	f.refresher.mu.Lock()
	assert.Equal(t, "C1", f.refresher.lastCSRFToken)
	f.refresher.mu.Unlock()
}

func TestConcurrent401sRefreshIndependentlyByDefault(t *testing.T) {
	const n = 5
	f := newFixture(t)
	f.seed(t, "A1", "C1")
	f.source.set("C1")
	f.refresher.nextAccess = "A2"
	f.refresher.nextCSRF = "C2"
	f.refresher.refreshDelay = 100 * time.Millisecond

	release := make(chan struct{})
	var arrived int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer A2" {
			w.Write([]byte(`[]`))
			return
		}
		if atomic.AddInt32(&arrived, 1) == n {
			close(release)
		}
		<-release
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := f.client.Get(server.URL + "/users")
			if err == nil {
				resp.Body.Close()
			}
		}()
	}
	wg.Wait()

	refresh, _, _ := f.refresher.counts()
	assert.Equal(t, n, refresh, "each failed request refreshes on its own")
}

func TestCoalescedRefreshSharesOneFlight(t *testing.T) {
	const n = 5
	f := newFixture(t, WithCoalescing(true))
	f.seed(t, "A1", "C1")
	f.source.set("C1")
	f.refresher.nextAccess = "A2"
	f.refresher.nextCSRF = "C2"
	f.refresher.refreshDelay = 150 * time.Millisecond

	release := make(chan struct{})
	var arrived int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer A2" {
			w.Write([]byte(`[]`))
			return
		}
		if atomic.AddInt32(&arrived, 1) == n {
			close(release)
		}
		<-release
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	var wg sync.WaitGroup
	var okCount int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := f.client.Get(server.URL + "/users")
			if err == nil {
				if resp.StatusCode == http.StatusOK {
					atomic.AddInt32(&okCount, 1)
				}
				resp.Body.Close()
			}
		}()
	}
	wg.Wait()

	refresh, _, _ := f.refresher.counts()
	assert.Equal(t, 1, refresh, "concurrent recoveries share a single refresh")
	assert.Equal(t, int32(n), atomic.LoadInt32(&okCount))
}

func TestReplayRebuildsRequestBody(t *testing.T) {
	var bodies []string
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		n, _ := r.Body.Read(buf)
		mu.Lock()
		bodies = append(bodies, string(buf[:n]))
		mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer A2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	f := newFixture(t)
	f.seed(t, "A1", "C1")
	f.source.set("C1")
	f.refresher.nextAccess = "A2"
	f.refresher.nextCSRF = "C2"

	resp, err := f.client.Post(server.URL+"/menus", "application/json", strings.NewReader(`{"name":"x"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 2)
	assert.Equal(t, `{"name":"x"}`, bodies[0])
	assert.Equal(t, `{"name":"x"}`, bodies[1], "replay must resend the full body")
}
