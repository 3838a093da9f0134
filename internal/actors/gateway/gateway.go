// Package gateway exposes the use-cases over HTTP on a grpc-gateway runtime mux.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rbroggi/recyclo/internal/actors/metrics"
	"github.com/rbroggi/recyclo/internal/core/model"
	"github.com/rbroggi/recyclo/internal/core/ports"
	"github.com/rbroggi/recyclo/internal/core/usecase"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	log "github.com/sirupsen/logrus"
)

const (
	defaultMaxBodySize       = 1 << 20
	defaultMaxUploadSize     = 10 << 20
	defaultContactsPerMinute = 20
	defaultContactsBurst     = 5
	defaultKeepAlive         = 15 * time.Second
)

var errRateLimited = errors.New("rate limit exceeded")

// ServerArgs are the mandatory arguments of the Server.
type ServerArgs struct {
	// Accounts authenticates the bearer tokens.
	Accounts *usecase.AccountService

	// Conversations serves the chat routes.
	Conversations *usecase.ConversationService

	// Listings serves the marketplace routes.
	Listings *usecase.ListingService

	// Store backs the notification watcher of each notification stream.
	Store ports.ConversationStore
}

// ServerOptArgs are the optional arguments of the Server.
type ServerOptArgs = func(*Server)

// WithContactRateLimit sets the per-user limit of POST /v1/contacts.
func WithContactRateLimit(perMinute, burst int) ServerOptArgs {
	return func(s *Server) {
		s.contactLimiter = newLimiterStore(perMinute, burst)
	}
}

// WithGatherer sets the registry scraped on /metrics. Defaults to prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) ServerOptArgs {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithWatcherOptions are applied to the notification watcher of every notification stream.
func WithWatcherOptions(opts ...usecase.NotificationWatcherOptArgs) ServerOptArgs {
	return func(s *Server) {
		s.watcherOpts = opts
	}
}

// WithKeepAlive sets the interval of the comments written on idle event streams.
func WithKeepAlive(d time.Duration) ServerOptArgs {
	return func(s *Server) {
		if d > 0 {
			s.keepAlive = d
		}
	}
}

// Server is the HTTP gateway.
type Server struct {
	accounts      *usecase.AccountService
	conversations *usecase.ConversationService
	listings      *usecase.ListingService
	store         ports.ConversationStore

	contactLimiter *limiterStore
	gatherer       prometheus.Gatherer
	watcherOpts    []usecase.NotificationWatcherOptArgs
	keepAlive      time.Duration
	maxUploadSize  int64

	mux *runtime.ServeMux
}

// NewServer creates the gateway and registers its routes.
func NewServer(args ServerArgs, optArgs ...ServerOptArgs) (*Server, error) {
	if args.Accounts == nil || args.Conversations == nil || args.Listings == nil || args.Store == nil {
		return nil, errors.New("missing mandatory gateway arguments")
	}
	s := &Server{
		accounts:       args.Accounts,
		conversations:  args.Conversations,
		listings:       args.Listings,
		store:          args.Store,
		contactLimiter: newLimiterStore(defaultContactsPerMinute, defaultContactsBurst),
		gatherer:       prometheus.DefaultGatherer,
		keepAlive:      defaultKeepAlive,
		maxUploadSize:  defaultMaxUploadSize,
		mux:            runtime.NewServeMux(),
	}
	for _, opt := range optArgs {
		opt(s)
	}

	metricsHandler := metrics.Handler(s.gatherer)
	routes := []struct {
		method  string
		pattern string
		handler runtime.HandlerFunc
	}{
		{http.MethodPost, "/v1/auth/signup", s.signUp},
		{http.MethodPost, "/v1/auth/signin", s.signIn},
		{http.MethodPost, "/v1/auth/signout", s.authenticated(s.signOut)},
		{http.MethodGet, "/v1/me", s.authenticated(s.profile)},
		{http.MethodPost, "/v1/contacts", s.authenticated(s.contact)},
		{http.MethodGet, "/v1/conversations", s.authenticated(s.listConversations)},
		{http.MethodGet, "/v1/conversations/{key}", s.authenticated(s.getConversation)},
		{http.MethodGet, "/v1/conversations/{key}/messages", s.authenticated(s.listMessages)},
		{http.MethodPost, "/v1/conversations/{key}/messages", s.authenticated(s.sendMessage)},
		{http.MethodGet, "/v1/conversations/{key}/stream", s.authenticated(s.streamMessages)},
		{http.MethodGet, "/v1/notifications/stream", s.authenticated(s.streamNotifications)},
		{http.MethodPost, "/v1/listings", s.authenticated(s.publishListing)},
		{http.MethodGet, "/v1/listings", s.authenticated(s.feed)},
		{http.MethodGet, "/v1/map", s.authenticated(s.mapPins)},
		{http.MethodGet, "/metrics", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			metricsHandler.ServeHTTP(w, r)
		}},
	}
	for _, route := range routes {
		if err := s.mux.HandlePath(route.method, route.pattern, route.handler); err != nil {
			return nil, fmt.Errorf("error registering route %s %s: %w", route.method, route.pattern, err)
		}
	}
	return s, nil
}

// ServeHTTP dispatches to the registered routes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type authenticatedHandler func(w http.ResponseWriter, r *http.Request, params map[string]string, me model.User)

// authenticated resolves the bearer token into the signed-in user. Unknown or missing tokens are 401.
func (s *Server) authenticated(h authenticatedHandler) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		token := bearerToken(r)
		if token == "" {
			s.writeError(w, r, fmt.Errorf("%w: missing bearer token", model.ErrAuth))
			return
		}
		me, err := s.accounts.Authenticate(r.Context(), token)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		h(w, r, params, *me)
	}
}

// bearerToken reads the Authorization header. Event streams opened by browsers cannot set headers,
// so the access_token query parameter is accepted too.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, model.ErrInvalidArgument),
		errors.Is(err, model.ErrSelfContact),
		errors.Is(err, model.ErrGeolocationUnavailable):
		return codes.InvalidArgument
	case errors.Is(err, model.ErrAuth):
		return codes.Unauthenticated
	case errors.Is(err, model.ErrForbidden):
		return codes.PermissionDenied
	case errors.Is(err, model.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, model.ErrAlreadyExists):
		return codes.AlreadyExists
	case errors.Is(err, model.ErrStoreUnavailable):
		return codes.Unavailable
	case errors.Is(err, errRateLimited):
		return codes.ResourceExhausted
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	}
	return codes.Internal
}

// writeError writes err as a google.rpc.Status with the HTTP status of its code.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := codeOf(err)
	msg := err.Error()
	entry := log.WithError(err).WithField("method", r.Method).WithField("path", r.URL.Path)
	switch code {
	case codes.Internal:
		entry.Error("error serving request")
		msg = "internal error"
	case codes.Unavailable:
		entry.Warn("store unavailable while serving request")
	}
	_, outbound := runtime.MarshalerForRequest(s.mux, r)
	runtime.HTTPError(r.Context(), s.mux, outbound, w, r, status.Error(code, msg))
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("error writing response")
	}
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, defaultMaxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body: %s", model.ErrInvalidArgument, err.Error())
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
