package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"dart-ledger-go/internal/api"
	"dart-ledger-go/internal/apperr"
	"dart-ledger-go/internal/models"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/codes"
)

const (
	HeaderCallerId        = "X-Caller-Id"
	HeaderCallerAnonymous = "X-Caller-Anonymous"
	HeaderInternalToken   = "X-Internal-Token"

	maxBodyBytes = 64 << 10
)

type Server struct {
	svc      *api.GameService
	cfg      models.ServerConfig
	throttle *rate.Limiter
	srv      *http.Server
}

func New(svc *api.GameService, cfg models.ServerConfig) *Server {
	limit := rate.Inf
	if cfg.ThrottleRPS > 0 {
		limit = rate.Limit(cfg.ThrottleRPS)
	}
	burst := cfg.ThrottleBurst
	if burst <= 0 {
		burst = 1
	}
	s := &Server{
		svc:      svc,
		cfg:      cfg,
		throttle: rate.NewLimiter(limit, burst),
	}
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           h2c.NewHandler(s.Handler(), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler without the h2c wrapper.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests, s.throttleRequests)
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(s.withCaller)
	v1.HandleFunc("/wallet", s.signIn).Methods(http.MethodPost)
	v1.HandleFunc("/wallet", s.getWallet).Methods(http.MethodGet)
	v1.HandleFunc("/wallet/transactions", s.getHistory).Methods(http.MethodGet)
	v1.HandleFunc("/progress", s.getProgress).Methods(http.MethodGet)
	v1.HandleFunc("/escrows/{escrowId}/stake", s.stake).Methods(http.MethodPost)
	v1.HandleFunc("/escrows/{escrowId}/refund", s.refund).Methods(http.MethodPost)
	v1.HandleFunc("/rewards/ads/{transactionId}/claim", s.claimAd).Methods(http.MethodPost)
	v1.HandleFunc("/rewards/daily", s.claimDaily).Methods(http.MethodPost)
	v1.HandleFunc("/queue", s.joinQueue).Methods(http.MethodPost)
	v1.HandleFunc("/queue/{mode}", s.listQueue).Methods(http.MethodGet)
	v1.HandleFunc("/queue/{mode}", s.leaveQueue).Methods(http.MethodDelete)
	v1.HandleFunc("/queue/{mode}/entry", s.getQueueEntry).Methods(http.MethodGet)
	v1.HandleFunc("/games", s.createGame).Methods(http.MethodPost)
	v1.HandleFunc("/games/{gameId}", s.getGame).Methods(http.MethodGet)
	v1.HandleFunc("/games/{gameId}/throws", s.throw).Methods(http.MethodPost)
	v1.HandleFunc("/games/{gameId}/forfeit", s.forfeit).Methods(http.MethodPost)
	v1.HandleFunc("/games/{gameId}/settle", s.settle).Methods(http.MethodPost)

	internal := r.PathPrefix("/internal").Subrouter()
	internal.Use(s.requireInternalToken)
	internal.HandleFunc("/ads/verified", s.adVerified).Methods(http.MethodPost)
	internal.HandleFunc("/payments/completed", s.paymentCompleted).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, apperr.NotFound("no such route"))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, apperr.New(codes.Unimplemented, "method not allowed"))
	})
	return r
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	zap.L().Info("HTTP server listening", zap.String("addr", l.Addr().String()))
	if err := s.srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(l)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		zap.L().Debug("Request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func (s *Server) throttleRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.throttle.Allow() {
			writeError(w, r, apperr.Retryable(codes.ResourceExhausted, time.Second, "server busy"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withCaller attaches the identity asserted by the authenticating proxy.
func (s *Server) withCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := r.Header.Get(HeaderCallerId)
		if uid == "" {
			writeError(w, r, apperr.Unauthenticated("missing caller identity"))
			return
		}
		anonymous, _ := strconv.ParseBool(r.Header.Get(HeaderCallerAnonymous))
		ctx := models.WithCaller(r.Context(), &models.Caller{UserId: uid, Anonymous: anonymous})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireInternalToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(HeaderInternalToken)
		if s.cfg.InternalToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.InternalToken)) != 1 {
			writeError(w, r, apperr.Unauthenticated("invalid internal token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
