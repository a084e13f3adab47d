// Package auth implements Carbon's AuthCache (§4.6): credential
// verification amortized behind a fingerprint cache, bearer-token
// sessions, and single-flight collapsing of concurrent first-time logins.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/chirdeeptomar/carbon-cache/internal/carbonerr"
	"github.com/chirdeeptomar/carbon-cache/internal/singleflight"
	"golang.org/x/crypto/argon2"
)

// DefaultIdleTTL and DefaultAbsoluteTTL are the session lifetimes (§4.6).
const (
	DefaultIdleTTL     = 30 * time.Minute
	DefaultAbsoluteTTL = 24 * time.Hour
)

// Principal is one stored credential. PasswordHash is the Argon2id output
// together with the salt and parameters needed to reverify it (PHC-style
// fields kept separate rather than encoded, since Carbon has exactly one
// KDF configuration process-wide).
type Principal struct {
	Username     string
	PasswordHash []byte
	Salt         []byte
	IsAdmin      bool
}

// Params are the Argon2id work-factor knobs (§4.6 "work factor configurable").
type Params struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
}

// DefaultParams matches the interactive-login tuning argon2's own docs
// recommend for a single blocking verification per request.
var DefaultParams = Params{Time: 1, Memory: 64 * 1024, Threads: 4, KeyLen: 32}

func (p Params) hash(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, p.KeyLen)
}

// Session is an issued credential grant (§4.6).
type Session struct {
	Token          string
	Principal      string
	IsAdmin        bool
	IssuedAt       int64
	ExpiresAt      int64
	LastUsedAt     int64
	fingerprint    string
}

// Clock provides time in UnixNano; overridable for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

type wallClock struct{}

func (wallClock) NowUnixNano() int64 { return time.Now().UnixNano() }

// Store resolves a username to its stored Principal. Carbon ships one
// admin principal (§9 "Admin-role separation... deliberately deferred");
// Store is an interface so that can be extended without touching AuthCache.
type Store interface {
	Lookup(username string) (Principal, bool)
}

// StaticStore is a Store backed by a fixed, in-memory principal set,
// sufficient for the single-admin-principal deployment shape (§9).
type StaticStore struct {
	principals map[string]Principal
}

// NewStaticStore builds a StaticStore seeded with one admin principal,
// hashing password under params immediately so AuthCache never holds
// plaintext beyond the call that creates it.
func NewStaticStore(adminUser, adminPassword string, params Params) (*StaticStore, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, carbonerr.Wrap(carbonerr.KindInternal, "generate admin salt", err)
	}
	s := &StaticStore{principals: make(map[string]Principal)}
	s.principals[adminUser] = Principal{
		Username:     adminUser,
		PasswordHash: params.hash(adminPassword, salt),
		Salt:         salt,
		IsAdmin:      true,
	}
	return s, nil
}

func (s *StaticStore) Lookup(username string) (Principal, bool) {
	p, ok := s.principals[username]
	return p, ok
}

// Cache is Carbon's AuthCache: it amortizes Argon2 verification behind a
// credential fingerprint and tracks bearer-token sessions (§4.6).
type Cache struct {
	store      Store
	secret     []byte
	params     Params
	idleTTL    time.Duration
	absTTL     time.Duration
	clock      Clock
	verifyPool VerifyPool
	metrics    Metrics

	sf singleflight.Group[string, *authResult]

	mu            sync.Mutex
	byToken       map[string]*Session
	byFingerprint map[string]*Session
}

// Metrics exposes the observability hooks AuthCache reports to (§4.6).
type Metrics interface {
	SessionIssued()
	SessionReused()
	VerifyStarted()
	VerifyFinished()
}

// NoopMetrics implements Metrics with no-ops.
type NoopMetrics struct{}

func (NoopMetrics) SessionIssued()  {}
func (NoopMetrics) SessionReused()  {}
func (NoopMetrics) VerifyStarted()  {}
func (NoopMetrics) VerifyFinished() {}

// VerifyPool runs the slow Argon2 verification off the request-handling
// goroutines (§5 "executed on a blocking worker pool so it does not stall
// the async runtime").
type VerifyPool interface {
	Submit(ctx context.Context, key string, fn func() error) error
}

// inlinePool runs fn synchronously; used when no pool is supplied.
type inlinePool struct{}

func (inlinePool) Submit(_ context.Context, _ string, fn func() error) error { return fn() }

// Option configures a Cache at construction.
type Option func(*Cache)

func WithIdleTTL(d time.Duration) Option     { return func(c *Cache) { c.idleTTL = d } }
func WithAbsoluteTTL(d time.Duration) Option { return func(c *Cache) { c.absTTL = d } }
func WithClock(clk Clock) Option             { return func(c *Cache) { c.clock = clk } }
func WithVerifyPool(p VerifyPool) Option     { return func(c *Cache) { c.verifyPool = p } }
func WithParams(p Params) Option             { return func(c *Cache) { c.params = p } }
func WithMetrics(m Metrics) Option           { return func(c *Cache) { c.metrics = m } }

// New constructs an AuthCache backed by store, using secret as the HMAC key
// for credential fingerprints.
func New(store Store, secret []byte, opts ...Option) *Cache {
	c := &Cache{
		store:         store,
		secret:        secret,
		params:        DefaultParams,
		idleTTL:       DefaultIdleTTL,
		absTTL:        DefaultAbsoluteTTL,
		clock:         wallClock{},
		verifyPool:    inlinePool{},
		metrics:       NoopMetrics{},
		byToken:       make(map[string]*Session),
		byFingerprint: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) now() int64 { return c.clock.NowUnixNano() }

func fingerprintOf(secret []byte, username, password string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(username))
	mac.Write([]byte{0})
	mac.Write([]byte(password))
	return hex.EncodeToString(mac.Sum(nil))
}

// Basic are Basic-auth credentials.
type Basic struct {
	Username string
	Password string
}

// authResult is the single-flight payload: the resolved session plus whether
// this particular call is the one that actually minted it (as opposed to
// finding one already published under the fingerprint), so reused can be
// reported correctly for both the leader and any followers.
type authResult struct {
	session *Session
	isNew   bool
}

// Authenticate resolves Basic credentials to a Session, amortizing the
// Argon2 verification behind the credential fingerprint and collapsing
// concurrent first-time verifications for the same credential into one
// call (§4.6). reused reports whether an existing session satisfied the
// request without invoking the verifier.
func (c *Cache) Authenticate(ctx context.Context, creds Basic) (sess *Session, reused bool, err error) {
	fp := fingerprintOf(c.secret, creds.Username, creds.Password)

	c.mu.Lock()
	if s, ok := c.byFingerprint[fp]; ok && !c.expired(s) {
		s.LastUsedAt = c.now()
		c.mu.Unlock()
		return s, true, nil
	}
	c.mu.Unlock()

	result, err := c.sf.Do(ctx, fp, func() (*authResult, error) {
		// Re-check under the single-flight leader slot: a prior leader may
		// have published a session while we were waiting to become leader.
		c.mu.Lock()
		if s, ok := c.byFingerprint[fp]; ok && !c.expired(s) {
			c.mu.Unlock()
			return &authResult{session: s}, nil
		}
		c.mu.Unlock()

		principal, ok := c.store.Lookup(creds.Username)
		if !ok {
			return nil, carbonerr.ErrUnauthorized
		}

		var ok2 bool
		c.metrics.VerifyStarted()
		verifyErr := c.verifyPool.Submit(ctx, fp, func() error {
			candidate := c.params.hash(creds.Password, principal.Salt)
			ok2 = subtle.ConstantTimeCompare(candidate, principal.PasswordHash) == 1
			return nil
		})
		c.metrics.VerifyFinished()
		if verifyErr != nil {
			return nil, verifyErr
		}
		if !ok2 {
			return nil, carbonerr.ErrUnauthorized
		}

		return &authResult{session: c.issue(principal, fp), isNew: true}, nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, false, carbonerr.Wrap(carbonerr.KindTimeout, "authenticate", err)
		}
		return nil, false, err
	}

	if result.isNew {
		c.metrics.SessionIssued()
	} else {
		c.metrics.SessionReused()
	}
	return result.session, !result.isNew, nil
}

// issue mints and indexes a new Session under both keys. Caller must not
// hold c.mu.
func (c *Cache) issue(p Principal, fingerprint string) *Session {
	now := c.now()
	token := newToken()
	idleExpiry := now + c.idleTTL.Nanoseconds()
	s := &Session{
		Token:       token,
		Principal:   p.Username,
		IsAdmin:     p.IsAdmin,
		IssuedAt:    now,
		ExpiresAt:   idleExpiry,
		LastUsedAt:  now,
		fingerprint: fingerprint,
	}
	c.mu.Lock()
	c.byToken[token] = s
	c.byFingerprint[fingerprint] = s
	c.mu.Unlock()
	return s
}

func newToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("auth: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// AuthenticateToken resolves a bearer token to its Session (§4.6).
func (c *Cache) AuthenticateToken(token string) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.byToken[token]
	if !ok || c.expired(s) {
		return nil, carbonerr.ErrUnauthorized
	}
	s.LastUsedAt = c.now()
	s.ExpiresAt = s.LastUsedAt + c.idleTTL.Nanoseconds()
	return s, nil
}

func (c *Cache) expired(s *Session) bool {
	now := c.now()
	if now >= s.ExpiresAt {
		return true
	}
	if now >= s.IssuedAt+c.absTTL.Nanoseconds() {
		return true
	}
	return false
}

// Login is the explicit token-issuing endpoint (§4.6, §6 POST /auth/login).
func (c *Cache) Login(ctx context.Context, creds Basic) (string, error) {
	s, _, err := c.Authenticate(ctx, creds)
	if err != nil {
		return "", err
	}
	return s.Token, nil
}

// Logout revokes token immediately, removing it from both indices (§4.6).
func (c *Cache) Logout(token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.byToken[token]
	if !ok {
		return carbonerr.ErrNotFound
	}
	delete(c.byToken, token)
	delete(c.byFingerprint, s.fingerprint)
	return nil
}

// SweepExpired evicts expired sessions from both indices; intended to run
// periodically from a background task (§4.6 "A background task evicts
// expired sessions"). Returns the number removed.
func (c *Cache) SweepExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for token, s := range c.byToken {
		if c.expired(s) {
			delete(c.byToken, token)
			delete(c.byFingerprint, s.fingerprint)
			removed++
		}
	}
	return removed
}

// Run drives SweepExpired on interval until ctx is cancelled. Intended to
// be launched as a background goroutine from process bootstrap.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.SweepExpired()
		}
	}
}
