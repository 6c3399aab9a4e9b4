// main.go
// GuardPost API: guard shift tracking, break management and activity audit.

package main

import (
	"context"
	"errors"
	"fmt"
	"guardpost/activity"
	"guardpost/auth"
	"guardpost/config"
	"guardpost/db"
	"guardpost/handlers"
	"guardpost/location"
	"guardpost/logging"
	"guardpost/middleware"
	"guardpost/models"
	"guardpost/shift"
	"guardpost/stats"
	"guardpost/storage"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const version = "1.0.0"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := config.Load()

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Server.Environment)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting GuardPost API server",
		zap.String("environment", cfg.Server.Environment),
		zap.String("port", cfg.Server.Port),
		zap.String("store", cfg.Store.Driver))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, photos, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	jwtManager := auth.NewJWTManager(
		cfg.JWT.Secret,
		cfg.JWT.Expiration,
		cfg.JWT.RefreshTokenExpiration,
	)

	resolver := location.NewResolver(
		location.NewNominatimGeocoder(cfg.Location.GeocoderURL, cfg.Location.UserAgent, cfg.Location.GeocoderRate, cfg.Location.GeocoderTimeout),
		location.NewIPAPILocator(cfg.Location.IPLocatorURL, cfg.Location.UserAgent, cfg.Location.IPTimeout),
		location.Options{
			GeocodeTimeout: cfg.Location.GeocoderTimeout,
			IPTimeout:      cfg.Location.IPTimeout,
			IPAccuracy:     cfg.Location.IPAccuracy,
		},
		logger,
	)

	recorder := activity.NewRecorder(store, logger, activity.Options{
		QueueSize:    cfg.Activity.QueueSize,
		Workers:      cfg.Activity.Workers,
		MaxAttempts:  cfg.Activity.MaxAttempts,
		RetryBackoff: cfg.Activity.RetryBackoff,
		WriteTimeout: cfg.Activity.WriteTimeout,
	})

	ledger := shift.NewLedger(store, recorder, logger)
	aggregator := stats.NewAggregator(store, store, store, cfg.Stats.WindowDays, cfg.Stats.TopN)

	authHandler := handlers.NewAuthHandler(store, jwtManager, recorder, resolver, logger)
	shiftHandler := handlers.NewShiftHandler(ledger, photos, resolver, logger)
	activityHandler := handlers.NewActivityHandler(activity.NewQuery(store), logger)
	managementHandler := handlers.NewManagementHandler(ledger, aggregator, resolver, logger)
	staffHandler := handlers.NewStaffHandler(store, logger)

	trustedProxies, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		return err
	}
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	rateLimiter.CleanupOldLimiters(ctx, time.Hour)

	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("/health", handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/login", authHandler.Login)
	mux.HandleFunc("/api/refresh", authHandler.RefreshToken)

	authenticated := middleware.AuthMiddleware(jwtManager, store)
	protect := func(h http.HandlerFunc, roles ...models.UserRole) http.Handler {
		if len(roles) == 0 {
			return middleware.Chain(h, authenticated)
		}
		return middleware.Chain(h, authenticated, middleware.RequireRole(roles...))
	}

	mux.Handle("/api/logout", protect(authHandler.Logout))

	// Guard duty endpoints
	guard := []models.UserRole{models.RoleGuard}
	mux.Handle("/api/shifts/start", protect(shiftHandler.Start, guard...))
	mux.Handle("/api/shifts/end", protect(shiftHandler.End, guard...))
	mux.Handle("/api/shifts/break", protect(shiftHandler.Break, guard...))
	mux.Handle("/api/shifts/status", protect(shiftHandler.Status, guard...))
	mux.Handle("/api/shifts/photo", protect(shiftHandler.Photo, guard...))

	// Management endpoints (manager or admin)
	management := []models.UserRole{models.RoleManager, models.RoleAdmin}
	mux.Handle("/api/management/activity", protect(activityHandler.Query, management...))
	mux.Handle("/api/management/activity/export", protect(activityHandler.Export, management...))
	mux.Handle("/api/management/dashboard", protect(managementHandler.Dashboard, management...))
	mux.Handle("/api/management/shifts/end", protect(managementHandler.EndShift, management...))
	mux.Handle("/api/management/staff", protect(staffHandler.ListStaff, management...))
	mux.Handle("/api/management/reset-password", protect(staffHandler.ResetPassword, management...))

	// Admin endpoints
	mux.Handle("/api/admin/staff/create", protect(staffHandler.CreateStaff, models.RoleAdmin))
	mux.Handle("/api/admin/staff/update", protect(staffHandler.UpdateStaff, models.RoleAdmin))

	handler := middleware.Chain(mux,
		middleware.RealIP(trustedProxies),
		middleware.Instrument(logger),
		rateLimiter.Middleware(),
		middleware.CORSMiddleware(cfg.CORS.AllowedOrigins),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	// Handlers have returned, so no new events can be queued.
	if err := recorder.Close(shutdownCtx); err != nil {
		logger.Error("activity recorder did not drain", zap.Error(err))
	}

	logger.Info("server stopped gracefully")
	return nil
}

// openStores selects the persistence and photo backends for the configured driver.
func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (db.Store, storage.PhotoStore, error) {
	if cfg.Store.Driver == config.DriverMemory {
		photos, err := storage.NewDiskPhotoStore(cfg.Store.PhotoDir)
		if err != nil {
			return nil, nil, err
		}
		logger.Warn("using in-memory store; data is lost on restart")
		return db.NewMemoryDB(), photos, nil
	}

	app, err := db.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsPath, cfg.Firebase.StorageBucket)
	if err != nil {
		return nil, nil, err
	}
	store, err := db.NewFirestoreDB(ctx, app, logger)
	if err != nil {
		return nil, nil, err
	}
	photos, err := storage.NewGCSPhotoStore(ctx, app, cfg.Firebase.StorageBucket)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, photos, nil
}

// Health check endpoint
func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":%d,"version":%q}`, time.Now().Unix(), version)
}
