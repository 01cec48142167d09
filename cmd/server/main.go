package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/yourorg/towdesk/internal/handler"
	"github.com/yourorg/towdesk/internal/infrastructure/logger"
	"github.com/yourorg/towdesk/internal/infrastructure/redis"
	"github.com/yourorg/towdesk/internal/observability/metrics"
	"github.com/yourorg/towdesk/internal/observability/tracing"
	"github.com/yourorg/towdesk/internal/repository"
	"github.com/yourorg/towdesk/internal/security"
	"github.com/yourorg/towdesk/internal/security/audit"
	"github.com/yourorg/towdesk/internal/security/auth"
	"github.com/yourorg/towdesk/internal/security/middleware"
	"github.com/yourorg/towdesk/internal/security/ratelimit"
	"github.com/yourorg/towdesk/internal/service"
	"github.com/yourorg/towdesk/pkg/cache"
	"github.com/yourorg/towdesk/pkg/config"
	"github.com/yourorg/towdesk/pkg/database"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting towdesk server", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Initialize tracing
	shutdownTracing, err := tracing.Init(ctx, log, "towdesk", cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Initialize Redis client
	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Error("failed to connect to Redis", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer redisClient.Close()

	// 5. Initialize Postgres connection pool and schema
	pool, err := database.NewConnectionPool(ctx, cfg.Database, log)
	if err != nil {
		log.Error("failed to connect to Postgres", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	if err := repository.EnsureSchema(ctx, pool.GetDB()); err != nil {
		log.Error("failed to ensure schema", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 6. Initialize repositories
	db := pool.GetDB()
	userRepo := repository.NewPostgresUserRepository(db, log)
	tenantRepo := repository.NewPostgresTenantRepository(db, log)
	membershipRepo := repository.NewPostgresMembershipRepository(db, log)
	inviteRepo := repository.NewPostgresInviteRepository(db, log)
	callRepo := repository.NewPostgresCallRepository(db, log)
	impoundRepo := repository.NewPostgresImpoundRepository(db, log)
	customerRepo := repository.NewPostgresCustomerRepository(db, log)
	bindingRepo := repository.NewRedisSessionBindingRepository(redisClient, log)

	// 7. Initialize security components
	guard := security.NewGuard(membershipRepo, bindingRepo, log)
	tokenManager := auth.NewTokenManager(cfg.JWTSecret, "towdesk")
	rateLimiter := ratelimit.NewLimiter(cfg.RateLimitPerMin, time.Minute)
	auditLogger := audit.NewLogger(log)

	// 8. Initialize services
	hub := handler.NewHub(log)
	inviteService := service.NewInviteService(inviteRepo, membershipRepo, tenantRepo, userRepo, guard, log)
	authService := service.NewAuthService(userRepo, inviteService, tokenManager, cfg.TokenTTL, log)
	tenantService := service.NewTenantService(tenantRepo, membershipRepo, bindingRepo, guard, cache.New(), log)
	membershipService := service.NewMembershipService(membershipRepo, userRepo, callRepo, guard, log)
	callService := service.NewCallService(callRepo, membershipRepo, guard, auditLogger, hub, log)
	impoundService := service.NewImpoundService(impoundRepo, guard, auditLogger, log)
	customerService := service.NewCustomerService(customerRepo, guard, log)

	// 9. Initialize handlers
	authHandler := handler.NewAuthHandler(authService, log)
	tenantHandler := handler.NewTenantHandler(tenantService, guard, log)
	memberHandler := handler.NewMemberHandler(membershipService, inviteService, guard, log)
	callHandler := handler.NewCallHandler(callService, guard, log)
	impoundHandler := handler.NewImpoundHandler(impoundService, guard, log)
	customerHandler := handler.NewCustomerHandler(customerService, guard, log)
	eventsHandler := handler.NewEventsHandler(hub, guard, log, cfg.CORSAllowedOrigins)

	// 10. Setup HTTP routes
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("GET /api/auth/me", authHandler.Me)

	mux.HandleFunc("POST /api/tenants", tenantHandler.Create)
	mux.HandleFunc("GET /api/tenants", tenantHandler.List)
	mux.HandleFunc("POST /api/tenants/select", tenantHandler.Select)
	mux.HandleFunc("GET /api/tenants/current", tenantHandler.Current)
	mux.HandleFunc("PATCH /api/tenants/current", tenantHandler.Update)

	mux.HandleFunc("GET /api/members", memberHandler.List)
	mux.HandleFunc("GET /api/members/drivers", memberHandler.ListDrivers)
	mux.HandleFunc("PATCH /api/members/{userId}/roles", memberHandler.ChangeRoles)
	mux.HandleFunc("PATCH /api/members/{userId}/active", memberHandler.SetActive)
	mux.HandleFunc("POST /api/members/me/shift", memberHandler.SetShift)
	mux.HandleFunc("POST /api/invites", memberHandler.Invite)

	mux.HandleFunc("POST /api/calls", callHandler.Create)
	mux.HandleFunc("GET /api/calls", callHandler.List)
	mux.HandleFunc("GET /api/calls/{id}", callHandler.Get)
	mux.HandleFunc("PATCH /api/calls/{id}", callHandler.Update)
	mux.HandleFunc("POST /api/calls/{id}/status", callHandler.UpdateStatus)
	mux.HandleFunc("POST /api/calls/{id}/assign", callHandler.Assign)
	mux.HandleFunc("POST /api/calls/{id}/claim", callHandler.Claim)
	mux.HandleFunc("POST /api/calls/{id}/cancel", callHandler.Cancel)
	mux.HandleFunc("POST /api/calls/{id}/cost", callHandler.SetCost)
	mux.HandleFunc("GET /api/calls/{id}/history", callHandler.History)
	mux.HandleFunc("GET /api/dashboard", callHandler.Dashboard)

	mux.HandleFunc("POST /api/impounds", impoundHandler.Create)
	mux.HandleFunc("GET /api/impounds", impoundHandler.List)
	mux.HandleFunc("GET /api/impounds/stats", impoundHandler.Stats)
	mux.HandleFunc("GET /api/impounds/{id}", impoundHandler.Get)
	mux.HandleFunc("POST /api/impounds/{id}/status", impoundHandler.UpdateStatus)
	mux.HandleFunc("POST /api/impounds/{id}/payments", impoundHandler.RecordPayment)

	mux.HandleFunc("POST /api/customers", customerHandler.Create)
	mux.HandleFunc("GET /api/customers", customerHandler.List)
	mux.HandleFunc("GET /api/customers/{id}", customerHandler.Get)
	mux.HandleFunc("PATCH /api/customers/{id}", customerHandler.Update)

	mux.Handle("GET /ws/dispatch", eventsHandler)
	mux.Handle("/metrics", promhttp.Handler())

	// Health and readiness endpoints (no auth required)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := redisClient.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("redis not ready"))
			return
		}
		if err := pool.Health(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("database not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	// CORS middleware honoring configured origins
	handlerWithCORS := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if originAllowed(cfg.CORSAllowedOrigins, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else if len(cfg.CORSAllowedOrigins) > 0 {
			w.Header().Set("Access-Control-Allow-Origin", cfg.CORSAllowedOrigins[0])
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		mux.ServeHTTP(w, r)
	})

	// Chain middleware: request ID -> metrics -> JWT -> rate limit ->
	// audit -> validation -> CORS. JWT runs before the rate limiter and
	// audit log so both can key on the authenticated user.
	rootHandler := withRequestID(
		metrics.HTTPMetricsMiddleware(
			middleware.JWTMiddleware(tokenManager, log)(
				middleware.RateLimitMiddleware(rateLimiter, log)(
					middleware.AuditMiddleware(auditLogger)(
						middleware.ValidateJSONContentType(log)(
							middleware.SanitizeInputs(log)(handlerWithCORS),
						),
					),
				),
			),
		),
		log,
	)

	// 11. Start HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      otelhttp.NewHandler(rootHandler, "towdesk"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.String("auth", "jwt"),
		slog.Int("rate_limit", cfg.RateLimitPerMin),
		slog.String("rate_limit_window", "1m"),
	)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Info("shutdown signal received")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", slog.String("error", err.Error()))
	}

	rateLimiter.Stop()
	log.Info("server stopped")
}

type requestIDKey struct{}

// withRequestID attaches a request ID to the context and response headers for traceability
func withRequestID(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := generateRequestID()
		w.Header().Set("X-Request-ID", reqID)

		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		start := time.Now()

		next.ServeHTTP(w, r.WithContext(ctx))

		log.Info("request completed",
			slog.String("request_id", reqID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("duration_ms", time.Since(start)),
		)
	})
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

func generateRequestID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}
	return fmt.Sprintf("req-%d", time.Now().UnixNano())
}
