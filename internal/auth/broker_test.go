package auth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTokenServer returns an httptest server acting as the identity
// provider's token endpoint.
func newTokenServer(t *testing.T, accessToken string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.FormValue("grant_type"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token": %q, "token_type": "Bearer", "expires_in": 3600}`, accessToken)
	}))
}

// grantingBrowser returns an OpenBrowser func that simulates the user
// approving consent: it parses the authorization URL and immediately hits
// the localhost callback with a code.
func grantingBrowser(t *testing.T, invocations *atomic.Int32, gate <-chan struct{}) func(string) error {
	t.Helper()

	return func(authURL string) error {
		invocations.Add(1)

		go func() {
			if gate != nil {
				<-gate
			}

			u, err := url.Parse(authURL)
			require.NoError(t, err)

			q := u.Query()
			redirect := q.Get("redirect_uri")
			state := q.Get("state")

			resp, err := http.Get(redirect + "?state=" + url.QueryEscape(state) + "&code=code-1")
			require.NoError(t, err)
			resp.Body.Close()
		}()

		return nil
	}
}

func testConfig(tokenURL string, open func(string) error) Config {
	return Config{
		ClientID:    "client-1",
		AuthURL:     "https://id.example.com/authorize",
		TokenURL:    tokenURL,
		Scopes:      []string{"storage.files.readonly"},
		OpenBrowser: open,
	}
}

func TestNew_InitFailures(t *testing.T) {
	open := func(string) error { return nil }

	_, err := New(Config{AuthURL: "a", TokenURL: "t", OpenBrowser: open}, testLogger())
	assert.ErrorIs(t, err, ErrInitFailed)

	_, err = New(Config{ClientID: "c", OpenBrowser: open}, testLogger())
	assert.ErrorIs(t, err, ErrInitFailed)

	_, err = New(Config{ClientID: "c", AuthURL: "a", TokenURL: "t"}, testLogger())
	assert.ErrorIs(t, err, ErrInitFailed)
}

func TestAcquire_ConsentFlow(t *testing.T) {
	tokenSrv := newTokenServer(t, "tok-abc")
	defer tokenSrv.Close()

	var invocations atomic.Int32

	broker, err := New(testConfig(tokenSrv.URL, grantingBrowser(t, &invocations, nil)), testLogger())
	require.NoError(t, err)

	tok, err := broker.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", tok.Value)
	assert.False(t, tok.AcquiredAt.IsZero())
	assert.Equal(t, int32(1), invocations.Load())
}

func TestAcquire_CachedTokenReused(t *testing.T) {
	tokenSrv := newTokenServer(t, "tok-abc")
	defer tokenSrv.Close()

	var invocations atomic.Int32

	broker, err := New(testConfig(tokenSrv.URL, grantingBrowser(t, &invocations, nil)), testLogger())
	require.NoError(t, err)

	first, err := broker.Acquire(context.Background())
	require.NoError(t, err)

	second, err := broker.Acquire(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Value, second.Value)
	assert.Equal(t, int32(1), invocations.Load(), "cached token must not re-prompt")
}

func TestAcquire_ExpiredTokenReacquired(t *testing.T) {
	tokenSrv := newTokenServer(t, "tok-abc")
	defer tokenSrv.Close()

	var invocations atomic.Int32

	broker, err := New(testConfig(tokenSrv.URL, grantingBrowser(t, &invocations, nil)), testLogger())
	require.NoError(t, err)

	_, err = broker.Acquire(context.Background())
	require.NoError(t, err)

	// Jump past the token's expiry.
	broker.nowFunc = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err = broker.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), invocations.Load())
}

func TestAcquire_ConsentDenied(t *testing.T) {
	tokenSrv := newTokenServer(t, "unused")
	defer tokenSrv.Close()

	denyingBrowser := func(authURL string) error {
		go func() {
			u, err := url.Parse(authURL)
			require.NoError(t, err)

			q := u.Query()

			resp, err := http.Get(q.Get("redirect_uri") +
				"?state=" + url.QueryEscape(q.Get("state")) +
				"&error=access_denied&error_description=user+dismissed")
			require.NoError(t, err)
			resp.Body.Close()
		}()

		return nil
	}

	broker, err := New(testConfig(tokenSrv.URL, denyingBrowser), testLogger())
	require.NoError(t, err)

	_, err = broker.Acquire(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConsentDenied)
}

func TestAcquire_ConcurrentCallsShareOneConsent(t *testing.T) {
	tokenSrv := newTokenServer(t, "tok-shared")
	defer tokenSrv.Close()

	var invocations atomic.Int32

	gate := make(chan struct{})

	broker, err := New(testConfig(tokenSrv.URL, grantingBrowser(t, &invocations, gate)), testLogger())
	require.NoError(t, err)

	var (
		wg     sync.WaitGroup
		tokens [2]Token
		errs   [2]error
	)

	for i := range tokens {
		i := i

		wg.Add(1)

		go func() {
			defer wg.Done()

			tokens[i], errs[i] = broker.Acquire(context.Background())
		}()
	}

	// Wait until the consent prompt is open, then let both callers pile up
	// on the in-flight flow before the user "grants".
	require.Eventually(t, func() bool { return invocations.Load() >= 1 },
		2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(gate)

	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int32(1), invocations.Load(), "exactly one consent prompt")
	assert.Equal(t, tokens[0].Value, tokens[1].Value)
}

func TestAcquire_StateMismatchRejected(t *testing.T) {
	tokenSrv := newTokenServer(t, "unused")
	defer tokenSrv.Close()

	forgedBrowser := func(authURL string) error {
		go func() {
			u, err := url.Parse(authURL)
			require.NoError(t, err)

			resp, err := http.Get(u.Query().Get("redirect_uri") + "?state=forged&code=code-1")
			require.NoError(t, err)
			resp.Body.Close()
		}()

		return nil
	}

	broker, err := New(testConfig(tokenSrv.URL, forgedBrowser), testLogger())
	require.NoError(t, err)

	_, err = broker.Acquire(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state mismatch")
}

func TestForget_DropsCachedToken(t *testing.T) {
	tokenSrv := newTokenServer(t, "tok-abc")
	defer tokenSrv.Close()

	var invocations atomic.Int32

	broker, err := New(testConfig(tokenSrv.URL, grantingBrowser(t, &invocations, nil)), testLogger())
	require.NoError(t, err)

	_, err = broker.Acquire(context.Background())
	require.NoError(t, err)

	broker.Forget()

	_, err = broker.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), invocations.Load())
}
