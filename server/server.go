package server

import (
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/readit-web/apiclient"
	"github.com/jrsteele09/readit-web/internal/config"
	"github.com/jrsteele09/readit-web/server/googleflow"
	"github.com/rs/zerolog/log"
)

type Server struct {
	env        string // Environment (e.g., "DEV", "PROD")
	mux        *http.ServeMux
	routes     []string
	fileServer http.Handler
	config     config.Config
	pages      map[string]*template.Template

	// Shared by every per-request backend client
	httpClient *http.Client
	breaker    *apiclient.Breaker

	loginLimiter   *visitorStore
	trustedProxies []netip.Prefix
	googleFlows    googleflow.Repo

	googleOidc     *OidcConfig
	googleOidcLock sync.Mutex
}

type Option func(*Server)

// WithHTTPClient replaces the pooled http.Client used for backend calls
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Server) { s.httpClient = hc }
}

// WithGoogleFlows replaces the store of pending Google sign-ins
func WithGoogleFlows(repo googleflow.Repo) Option {
	return func(s *Server) { s.googleFlows = repo }
}

func New(cfg config.Config, options ...Option) (*Server, error) {
	s := &Server{
		env:        cfg.GetEnv(),
		mux:        http.NewServeMux(),
		config:     cfg,
		fileServer: FileServerHandler(),
		breaker: apiclient.NewBreaker(apiclient.BreakerConfig{
			Name:         "readit-api",
			Timeout:      cfg.GetBreakerTimeout(),
			FailureRatio: cfg.GetBreakerFailureRatio(),
			MinRequests:  cfg.GetBreakerMinRequests(),
		}),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.httpClient == nil {
		s.httpClient = newBackendHTTPClient(cfg.GetRequestTimeout())
	}
	if s.googleFlows == nil {
		s.googleFlows = googleflow.NewInMemoryRepo(googleflow.DefaultTTL)
	}

	rps, burst := cfg.GetLoginRateLimit()
	s.loginLimiter = newVisitorStore(rps, burst, 3*time.Minute)
	s.trustedProxies = cfg.GetTrustedProxies()

	pages, err := parsePages()
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to parse page templates: %w", err)
	}
	s.pages = pages

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

// newBackendHTTPClient pools connections to the backend. It has no cookie jar: the
// inbound request's cookies are forwarded explicitly.
func newBackendHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		method, path, found := strings.Cut(route, " ")
		if !found {
			method, path = "", route
		}
		logRoute(method, path)
	}
}

func logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	log.Debug().Msgf("[%-19s] %s", color+paddedMethod+ResetColor, path)
}

// getScheme determines the scheme (http/https) the browser used
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
