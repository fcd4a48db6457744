// Package auth acquires and caches the OAuth2 access token used for all
// storage provider calls. One consent flow may be in flight at a time; the
// token lives only for the process session — no refresh tokens, no disk
// persistence.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// Sentinel errors. ErrInitFailed means the consent machinery could not be set
// up at all ("feature unavailable"); ErrConsentDenied means the user declined
// or dismissed the prompt. Both terminate the whole picker operation — every
// other error in the pipeline is scoped to a single folder, file, or item.
var (
	ErrInitFailed    = errors.New("auth: consent flow unavailable")
	ErrConsentDenied = errors.New("auth: user denied consent")
)

// stateTokenBytes is the number of random bytes for the OAuth2 state parameter.
const stateTokenBytes = 16

// callbackPath is the HTTP path the OAuth2 redirect hits on the local server.
const callbackPath = "/"

// shutdownTimeout is how long to wait for the callback server to drain.
const shutdownTimeout = 5 * time.Second

// consentKey is the singleflight key for the consent flow. A single key
// enforces the one-consent-at-a-time contract: concurrent Acquire calls
// share the in-flight flow instead of opening a second prompt.
const consentKey = "consent"

// Token is the session access token. Opaque to everything except the
// Authorization header; never persisted.
type Token struct {
	Value      string
	AcquiredAt time.Time
	Expiry     time.Time
}

// valid reports whether the token can still be used at the given instant.
// A zero expiry means the provider did not communicate one; the token is
// then trusted for the rest of the session.
func (t Token) valid(now time.Time) bool {
	if t.Value == "" {
		return false
	}

	return t.Expiry.IsZero() || now.Before(t.Expiry)
}

// Config carries the identity endpoint settings for the broker.
type Config struct {
	ClientID string
	AuthURL  string
	TokenURL string
	Scopes   []string

	// OpenBrowser is called with the authorization URL. The CLI uses it to
	// launch the default browser; tests drive the callback directly.
	OpenBrowser func(url string) error
}

// Broker runs the consent flow on demand and caches the resulting token for
// the rest of the session. Safe for concurrent use.
type Broker struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	cached Token

	group singleflight.Group

	// nowFunc is injectable for expiry tests.
	nowFunc func() time.Time
}

// New validates the identity configuration and returns a Broker.
// Returns ErrInitFailed when the configuration cannot support a consent flow;
// the caller surfaces this as "import unavailable", not a crash.
func New(cfg Config, logger *slog.Logger) (*Broker, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: missing client ID", ErrInitFailed)
	}

	if cfg.AuthURL == "" || cfg.TokenURL == "" {
		return nil, fmt.Errorf("%w: missing identity endpoints", ErrInitFailed)
	}

	if cfg.OpenBrowser == nil {
		return nil, fmt.Errorf("%w: no browser launcher", ErrInitFailed)
	}

	return &Broker{
		cfg:     cfg,
		logger:  logger,
		nowFunc: time.Now,
	}, nil
}

// Acquire returns the session token, running the browser consent flow if no
// valid token is cached. Concurrent calls while a consent flow is pending
// share that flow's outcome — exactly one prompt is ever open.
func (b *Broker) Acquire(ctx context.Context) (Token, error) {
	b.mu.Lock()
	cached := b.cached
	now := b.nowFunc()
	b.mu.Unlock()

	if cached.valid(now) {
		b.logger.Debug("reusing cached session token",
			slog.Time("acquired_at", cached.AcquiredAt),
		)

		return cached, nil
	}

	v, err, shared := b.group.Do(consentKey, func() (any, error) {
		return b.runConsent(ctx)
	})
	if err != nil {
		return Token{}, err
	}

	tok, ok := v.(Token)
	if !ok {
		return Token{}, fmt.Errorf("%w: unexpected consent result type", ErrInitFailed)
	}

	if shared {
		b.logger.Debug("joined in-flight consent flow")
	}

	return tok, nil
}

// Token implements provider.TokenSource.
func (b *Broker) Token(ctx context.Context) (string, error) {
	tok, err := b.Acquire(ctx)
	if err != nil {
		return "", err
	}

	return tok.Value, nil
}

// callbackResult carries the authorization code or error from the callback handler.
type callbackResult struct {
	code string
	err  error
}

// runConsent performs the authorization code + PKCE flow:
//  1. Binds a localhost HTTP server on a random port
//  2. Opens the browser to the identity provider's authorization endpoint
//  3. Receives the callback with the authorization code
//  4. Exchanges the code for a token using PKCE
//  5. Caches the token for the remainder of the session
func (b *Broker) runConsent(ctx context.Context) (Token, error) {
	b.logger.Info("starting consent flow (authorization code + PKCE)")

	cfg := &oauth2.Config{
		ClientID: b.cfg.ClientID,
		Scopes:   b.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  b.cfg.AuthURL,
			TokenURL: b.cfg.TokenURL,
		},
	}

	resultCh := make(chan callbackResult, 1)
	mux := http.NewServeMux()

	srv, port, err := startCallbackServer(ctx, mux, resultCh, b.logger)
	if err != nil {
		return Token{}, err
	}

	defer shutdownCallbackServer(srv, b.logger)

	cfg.RedirectURL = fmt.Sprintf("http://localhost:%d", port)

	verifier := oauth2.GenerateVerifier()

	state, err := generateState()
	if err != nil {
		return Token{}, fmt.Errorf("%w: generating state token: %w", ErrInitFailed, err)
	}

	registerCallbackHandler(mux, state, resultCh)

	authURL := cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))

	b.logger.Info("opening browser for consent")

	if openErr := b.cfg.OpenBrowser(authURL); openErr != nil {
		return Token{}, fmt.Errorf("%w: opening browser: %w", ErrInitFailed, openErr)
	}

	code, err := waitForCallback(ctx, resultCh)
	if err != nil {
		return Token{}, err
	}

	b.logger.Info("received authorization code, exchanging for token")

	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return Token{}, fmt.Errorf("auth: token exchange failed: %w", err)
	}

	acquired := Token{
		Value:      tok.AccessToken,
		AcquiredAt: b.nowFunc(),
		Expiry:     tok.Expiry,
	}

	b.mu.Lock()
	b.cached = acquired
	b.mu.Unlock()

	b.logger.Info("consent flow complete",
		slog.Time("expiry", tok.Expiry),
	)

	return acquired, nil
}

// Forget drops the cached token. The next Acquire runs a fresh consent flow.
func (b *Broker) Forget() {
	b.mu.Lock()
	b.cached = Token{}
	b.mu.Unlock()

	b.logger.Info("dropped cached session token")
}

// startCallbackServer binds to 127.0.0.1:0 and starts an HTTP server with the
// given mux. Returns the server, the port, and any error.
func startCallbackServer(
	ctx context.Context,
	mux *http.ServeMux,
	resultCh chan<- callbackResult,
	logger *slog.Logger,
) (*http.Server, int, error) {
	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return nil, 0, fmt.Errorf("%w: binding localhost listener: %w", ErrInitFailed, err)
	}

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		listener.Close()
		return nil, 0, fmt.Errorf("%w: listener address is not TCP", ErrInitFailed)
	}

	port := tcpAddr.Port
	logger.Debug("callback server listening", slog.Int("port", port))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			resultCh <- callbackResult{err: fmt.Errorf("auth: callback server error: %w", serveErr)}
		}
	}()

	return srv, port, nil
}

// registerCallbackHandler adds the callback route to the mux.
// Must be called before the browser redirects back.
func registerCallbackHandler(mux *http.ServeMux, state string, resultCh chan<- callbackResult) {
	// Method check done by hand: "GET "-prefixed mux patterns need go 1.22,
	// and this module must build with go 1.21.
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}

		handleConsentCallback(w, r, state, resultCh)
	})
}

// handleConsentCallback validates the state, extracts the code, and sends the
// result. A dismissal or denial from the authorization server maps to
// ErrConsentDenied; anything else malformed is an init-level failure.
func handleConsentCallback(w http.ResponseWriter, r *http.Request, state string, resultCh chan<- callbackResult) {
	// Validate state to prevent CSRF.
	if r.URL.Query().Get("state") != state {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		resultCh <- callbackResult{err: fmt.Errorf("auth: OAuth2 state mismatch (possible CSRF)")}

		return
	}

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		desc := r.URL.Query().Get("error_description")
		http.Error(w, "Authorization failed: "+errParam, http.StatusBadRequest)

		if errParam == "access_denied" {
			resultCh <- callbackResult{err: fmt.Errorf("%w: %s", ErrConsentDenied, desc)}

			return
		}

		resultCh <- callbackResult{err: fmt.Errorf("auth: authorization failed: %s: %s", errParam, desc)}

		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		resultCh <- callbackResult{err: fmt.Errorf("auth: callback missing authorization code")}

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><h1>Access granted</h1>"+
		"<p>You can close this window and return to galleryflow.</p></body></html>")
	resultCh <- callbackResult{code: code}
}

// shutdownCallbackServer gracefully shuts down the callback HTTP server.
func shutdownCallbackServer(srv *http.Server, logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		// Best-effort shutdown — log but don't propagate since we're in a defer.
		logger.Warn("callback server shutdown error", slog.String("error", err.Error()))
	}
}

// waitForCallback blocks until the callback fires or the context is canceled.
// A dismissed prompt surfaces here as ErrConsentDenied from the handler.
func waitForCallback(ctx context.Context, resultCh <-chan callbackResult) (string, error) {
	select {
	case result := <-resultCh:
		if result.err != nil {
			return "", result.err
		}

		return result.code, nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: consent canceled: %w", ErrConsentDenied, ctx.Err())
	}
}

// generateState produces a cryptographically random hex string for the OAuth2
// state parameter. Using crypto/rand prevents CSRF attacks.
func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
