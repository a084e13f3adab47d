// Package httpapi is Carbon's HTTP/JSON front end (§6): a thin translation
// from HTTP requests into Registry/Cache/AuthCache operations, built on
// echo/v4 the way the retrieval pack's webserver package wraps it, plus
// echo-contrib/echoprometheus for /metrics per the ambient-observability
// rule and echo's CORS middleware for CARBON_ALLOWED_ORIGINS.
package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/chirdeeptomar/carbon-cache/internal/auth"
	"github.com/chirdeeptomar/carbon-cache/internal/cachecore"
	"github.com/chirdeeptomar/carbon-cache/internal/carbonerr"
	"github.com/chirdeeptomar/carbon-cache/internal/registry"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const sessionContextKey = "carbon_session"

// Server wires Carbon's Registry and AuthCache behind a fixed HTTP route
// set. It is the entire "front-end adapter" the spec calls out as
// interface-only (§2).
type Server struct {
	Echo *echo.Echo

	reg             *registry.Registry
	authc           *auth.Cache
	log             zerolog.Logger
	adminUIPath     string
	requestDeadline time.Duration
	promRegisterer  prometheus.Registerer
}

// Option configures a Server at construction.
type Option func(*Server)

func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.Echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: origins}))
	}
}

func WithAdminUIPath(path string) Option {
	return func(s *Server) { s.adminUIPath = path }
}

func WithRequestDeadline(d time.Duration) Option {
	return func(s *Server) { s.requestDeadline = d }
}

func WithAdminUIDir(dir string) Option {
	return func(s *Server) {
		s.Echo.Static(s.adminUIPath, dir)
	}
}

// WithPrometheusRegisterer overrides the registry /metrics publishes to.
// Defaults to prometheus.DefaultRegisterer; tests use an isolated
// prometheus.NewRegistry() so multiple Servers in one process don't
// collide on the same collector names.
func WithPrometheusRegisterer(reg prometheus.Registerer) Option {
	return func(s *Server) { s.promRegisterer = reg }
}

// New builds a Server over reg and authc.
func New(reg *registry.Registry, authc *auth.Cache, log zerolog.Logger, opts ...Option) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		Echo:            e,
		reg:             reg,
		authc:           authc,
		log:             log,
		adminUIPath:     "/admin/ui/",
		requestDeadline: 30 * time.Second,
		promRegisterer:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(s)
	}
	e.Use(middleware.ContextTimeout(s.requestDeadline))

	gatherer, _ := s.promRegisterer.(prometheus.Gatherer)
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "http",
		Registerer: s.promRegisterer,
	}))
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: gatherer}))

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	s.Echo.POST("/auth/login", s.handleLogin)
	s.Echo.POST("/auth/logout", s.requireAuth(s.handleLogout))

	admin := s.Echo.Group("/admin/caches")
	admin.POST("", s.requireAdmin(s.handleCreateCache))
	admin.GET("", s.requireAdmin(s.handleListCaches))
	admin.GET("/:name", s.requireAdmin(s.handleDescribeCache))
	admin.DELETE("/:name", s.requireAdmin(s.handleDeleteCache))

	s.Echo.PUT("/cache/:name/:key", s.requireAuth(s.handlePut))
	s.Echo.GET("/cache/:name/:key", s.requireAuth(s.handleGet))
	s.Echo.DELETE("/cache/:name/:key", s.requireAuth(s.handleDelete))
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(c echo.Context) error {
	creds, err := s.credentialsOf(c)
	if err != nil {
		return writeErr(c, err)
	}
	token, err := s.authc.Login(c.Request().Context(), creds)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleLogout(c echo.Context) error {
	token := bearerToken(c.Request())
	if token == "" {
		return writeErr(c, carbonerr.ErrUnauthorized)
	}
	if err := s.authc.Logout(token); err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "logged out"})
}

// credentialsOf extracts Basic credentials from the Authorization header,
// falling back to a JSON body (§6 "Basic or JSON {username,password}").
func (s *Server) credentialsOf(c echo.Context) (auth.Basic, error) {
	if u, p, ok := c.Request().BasicAuth(); ok {
		return auth.Basic{Username: u, Password: p}, nil
	}
	var body loginRequest
	if err := c.Bind(&body); err != nil || body.Username == "" {
		return auth.Basic{}, carbonerr.New(carbonerr.KindUnauthorized, "missing credentials")
	}
	return auth.Basic{Username: body.Username, Password: body.Password}, nil
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

// requireAuth resolves either Basic credentials or a bearer token into a
// Session (§4.6), stamping the standard response headers, before calling
// next.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if token := bearerToken(c.Request()); token != "" {
			sess, err := s.authc.AuthenticateToken(token)
			if err != nil {
				return writeErr(c, err)
			}
			c.Response().Header().Set("x-session-token", sess.Token)
			c.Response().Header().Set("x-session-reused", "true")
			c.Set(sessionContextKey, sess)
			return next(c)
		}

		creds, err := s.credentialsOf(c)
		if err != nil {
			return writeErr(c, err)
		}
		sess, reused, err := s.authc.Authenticate(c.Request().Context(), creds)
		if err != nil {
			return writeErr(c, err)
		}
		c.Response().Header().Set("x-session-token", sess.Token)
		c.Response().Header().Set("x-session-reused", boolStr(reused))
		c.Set(sessionContextKey, sess)
		return next(c)
	}
}

func (s *Server) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return s.requireAuth(func(c echo.Context) error {
		sess, _ := c.Get(sessionContextKey).(*auth.Session)
		if sess == nil || !sess.IsAdmin {
			return writeErr(c, carbonerr.ErrForbidden)
		}
		return next(c)
	})
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

type createCacheRequest struct {
	Name             string `json:"name"`
	Eviction         string `json:"eviction"`
	MemBytes         int64  `json:"mem_bytes"`
	DiskBytes        int64  `json:"disk_bytes"`
	DefaultTTLMillis int64  `json:"default_ttl_ms"`
}

func (s *Server) handleCreateCache(c echo.Context) error {
	var req createCacheRequest
	if err := c.Bind(&req); err != nil {
		return writeErr(c, carbonerr.Wrap(carbonerr.KindInvalidArgument, "malformed body", err))
	}
	spec := registry.Spec{
		Name:             req.Name,
		Policy:           cachecore.PolicyName(req.Eviction),
		MemBudgetBytes:   req.MemBytes,
		DiskBudgetBytes:  req.DiskBytes,
		DefaultTTLMillis: req.DefaultTTLMillis,
	}
	if err := s.reg.Create(spec); err != nil {
		return writeErr(c, err)
	}
	return c.NoContent(http.StatusCreated)
}

func (s *Server) handleListCaches(c echo.Context) error {
	return c.JSON(http.StatusOK, s.reg.List())
}

func (s *Server) handleDescribeCache(c echo.Context) error {
	desc, err := s.reg.Describe(c.Param("name"))
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, desc)
}

func (s *Server) handleDeleteCache(c echo.Context) error {
	if err := s.reg.Delete(c.Param("name")); err != nil {
		return writeErr(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type putRequest struct {
	Value  string `json:"value"`
	TTLMillis int64 `json:"ttl_ms"`
}

func (s *Server) handlePut(c echo.Context) error {
	ch, err := s.reg.Get(c.Param("name"))
	if err != nil {
		return writeErr(c, err)
	}
	var req putRequest
	if err := c.Bind(&req); err != nil {
		return writeErr(c, carbonerr.Wrap(carbonerr.KindInvalidArgument, "malformed body", err))
	}
	if err := ch.Put(c.Request().Context(), c.Param("key"), []byte(req.Value), req.TTLMillis); err != nil {
		return writeErr(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleGet(c echo.Context) error {
	ch, err := s.reg.Get(c.Param("name"))
	if err != nil {
		return writeErr(c, err)
	}
	buf, err := ch.Get(c.Request().Context(), c.Param("key"))
	if err != nil {
		return writeErr(c, err)
	}
	defer buf.Release()
	return c.JSON(http.StatusOK, map[string]string{"value": string(buf.Bytes())})
}

func (s *Server) handleDelete(c echo.Context) error {
	ch, err := s.reg.Get(c.Param("name"))
	if err != nil {
		return writeErr(c, err)
	}
	if err := ch.Delete(c.Request().Context(), c.Param("key")); err != nil {
		return writeErr(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// writeErr maps a carbonerr.Kind to the HTTP status §7 specifies.
func writeErr(c echo.Context, err error) error {
	kind := carbonerr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case carbonerr.KindNotFound:
		status = http.StatusNotFound
	case carbonerr.KindAlreadyExists:
		status = http.StatusConflict
	case carbonerr.KindInvalidArgument:
		status = http.StatusBadRequest
	case carbonerr.KindInsufficientCapacity:
		status = http.StatusRequestEntityTooLarge
	case carbonerr.KindUnauthorized:
		status = http.StatusUnauthorized
	case carbonerr.KindForbidden:
		status = http.StatusForbidden
	case carbonerr.KindTimeout:
		status = http.StatusGatewayTimeout
	case carbonerr.KindIoError:
		status = http.StatusServiceUnavailable
	case carbonerr.KindProtocolError:
		status = http.StatusBadRequest
	}
	var carr *carbonerr.Error
	msg := err.Error()
	if errors.As(err, &carr) {
		msg = carr.Msg
	}
	return c.JSON(status, map[string]string{"error": msg, "code": kind.String()})
}
