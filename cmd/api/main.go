// Main entry point for the application
// This file bootstraps all components and starts the server

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	// Internal packages
	"github.com/hourvillage/timebank-backend/internal/auth"
	"github.com/hourvillage/timebank-backend/internal/common/database"
	"github.com/hourvillage/timebank-backend/internal/config"
	"github.com/hourvillage/timebank-backend/internal/matching"
)

var startTime = time.Now()

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	log.Println("========================================")
	log.Println("🚀 Starting Hour Village Timebank API")
	log.Println("========================================")

	// 1. Load environment variables
	log.Println("📁 Step 1: Loading .env file...")
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  Warning: No .env file found (%v), using environment variables", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	// 2. Load configuration
	log.Println("\n📋 Step 2: Loading configuration...")
	cfg := config.Load()
	log.Printf("✅ Configuration loaded")

	// 3. Validate configuration
	log.Println("\n✔️  Step 3: Validating configuration...")
	if err := cfg.Validate(); err != nil {
		log.Fatal("❌ Configuration validation failed:", err)
	}
	log.Println("✅ Configuration is valid")

	// 4. Connect to PostgreSQL
	log.Println("\n🗄️  Step 4: Connecting to PostgreSQL...")
	db, err := database.NewPostgresDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("❌ Failed to connect to PostgreSQL:", err)
	}
	defer db.Close()
	log.Println("✅ Connected to PostgreSQL successfully")

	// 5. Connect to Redis (optional)
	log.Println("\n📮 Step 5: Connecting to Redis...")
	var redisClient *redis.Client

	if cfg.RedisURL != "" {
		redisClient, err = database.NewRedisClientFromURL(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️  Redis unavailable (%v), continuing without Redis", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
			log.Println("✅ Connected to Redis successfully")
		}
	} else {
		log.Println("⚠️  Redis URL not configured, skipping Redis connection")
	}

	// 6. Run database migrations
	log.Println("\n🔨 Step 6: Running database migrations...")
	if err := runMigrations(db); err != nil {
		log.Printf("❌ Migration error: %v", err)
		log.Fatal("Failed to run migrations")
	}
	log.Println("✅ Database migrations completed")

	// 7. Verify schema readiness
	log.Println("\n🔎 Step 7: Verifying schema readiness...")
	if err := verifySchema(db); err != nil {
		// Missing learning tables degrade scoring to the legacy path on
		// every request; refuse to start rather than serve that silently.
		log.Fatal("❌ Schema verification failed:", err)
	}
	log.Println("✅ Schema is ready")

	// 8. Initialize Matching engine
	log.Println("\n🤝 Step 8: Initializing Matching engine...")

	matchingRepo := matching.NewPostgresRepository(db)

	snapshotCache := matching.NewSnapshotCache(redisClient, cfg.DashboardCacheTTL)
	if redisClient != nil {
		log.Println("   ✅ Dashboard snapshots cached in Redis")
	} else {
		log.Println("   ⚠️  Dashboard snapshots served uncached (no Redis)")
	}

	reporter := matching.NewReporter(matchingRepo, snapshotCache)

	hub := matching.NewHub()
	go hub.Run()
	log.Println("   ✅ Match push hub started")

	matchingService := matching.NewService(cfg.Matching, matchingRepo, reporter, hub)
	matchingHandler := matching.NewHandler(matchingService, hub)

	log.Println("✅ Matching engine initialized")

	// 9. Start background jobs
	log.Println("\n⏰ Step 9: Starting background jobs...")
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	scheduler := matching.NewScheduler(matchingService, cfg.NotifySweepInterval)
	scheduler.Start(jobCtx)
	log.Printf("   ✅ New-match sweep running every %v", cfg.NotifySweepInterval)

	// 10. Setup routes
	log.Println("\n🛣️  Step 10: Setting up routes...")
	router := mux.NewRouter()

	// Health check and metrics
	router.HandleFunc("/health", healthCheck).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Matching routes (suggestions, interactions, preferences, analytics, ws)
	authMiddleware := auth.NewMiddleware(cfg.JWTSecret)
	matching.RegisterRoutes(router, matchingHandler, authMiddleware)
	log.Println("   ✅ Matching routes registered")

	// Add middleware
	router.Use(loggingMiddleware)
	router.Use(corsMiddleware)

	// 11. Create and start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Println("\n========================================")
		log.Printf("🚀 Server starting on http://localhost%s", srv.Addr)
		log.Printf("🌍 Environment: %s", cfg.Environment)
		log.Println("========================================")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("❌ Failed to start server:", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("\n⚠️  Shutdown signal received...")
	cancelJobs()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("❌ Server forced to shutdown:", err)
	}

	log.Println("✅ Server exited gracefully")
}

// healthCheck returns server health status
func healthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(startTime).String(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// loggingMiddleware logs all requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		log.Printf("← %s %s [%d] %v", r.Method, r.RequestURI, wrapped.statusCode, duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// runMigrations executes database migrations
func runMigrations(db *sqlx.DB) error {
	log.Println("   - Creating/updating tables...")

	migrations := []string{
		// Users read model. In a full deployment the membership service
		// owns this table; created here for development convenience.
		`CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			tenant_id INTEGER NOT NULL,
			username VARCHAR(100) NOT NULL,
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION,
			transaction_count INTEGER DEFAULT 0,
			average_rating DOUBLE PRECISION,
			completion_score DOUBLE PRECISION DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT unique_tenant_username UNIQUE(tenant_id, username)
		)`,

		// Listings read model, owned by the listings service in production.
		`CREATE TABLE IF NOT EXISTS listings (
			id SERIAL PRIMARY KEY,
			tenant_id INTEGER NOT NULL,
			owner_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			type VARCHAR(10) NOT NULL,
			category_id INTEGER NOT NULL,
			title VARCHAR(255) NOT NULL,
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION,
			status VARCHAR(20) DEFAULT 'open',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)`,

		// Match cache: one live row per seeker/listing pair.
		`CREATE TABLE IF NOT EXISTS match_cache (
			id SERIAL PRIMARY KEY,
			tenant_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			listing_id INTEGER NOT NULL,
			match_score DOUBLE PRECISION NOT NULL,
			match_type VARCHAR(20) NOT NULL,
			distance_km DOUBLE PRECISION,
			status VARCHAR(20) NOT NULL DEFAULT 'new',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT unique_match_cache_pair UNIQUE(tenant_id, user_id, listing_id)
		)`,

		// Match history: append-only interaction ledger.
		`CREATE TABLE IF NOT EXISTS match_history (
			id SERIAL PRIMARY KEY,
			event_ref UUID NOT NULL UNIQUE,
			tenant_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			listing_id INTEGER NOT NULL,
			category_id INTEGER NOT NULL,
			action VARCHAR(20) NOT NULL,
			distance_km DOUBLE PRECISION,
			resulted_in_transaction BOOLEAN NOT NULL DEFAULT FALSE,
			transaction_id VARCHAR(64),
			conversion_time TIMESTAMP WITH TIME ZONE,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)`,

		// Learned per-category affinity.
		`CREATE TABLE IF NOT EXISTS user_category_affinity (
			id SERIAL PRIMARY KEY,
			tenant_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			category_id INTEGER NOT NULL,
			affinity_score DOUBLE PRECISION NOT NULL DEFAULT 50,
			view_count INTEGER NOT NULL DEFAULT 0,
			save_count INTEGER NOT NULL DEFAULT 0,
			contact_count INTEGER NOT NULL DEFAULT 0,
			transaction_count INTEGER NOT NULL DEFAULT 0,
			dismiss_count INTEGER NOT NULL DEFAULT 0,
			last_interaction TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT unique_user_category UNIQUE(tenant_id, user_id, category_id)
		)`,

		// Learned distance tolerance, bucketed by interaction distance.
		`CREATE TABLE IF NOT EXISTS user_distance_preference (
			id SERIAL PRIMARY KEY,
			tenant_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			bucket_0_2km INTEGER NOT NULL DEFAULT 0,
			bucket_2_5km INTEGER NOT NULL DEFAULT 0,
			bucket_5_15km INTEGER NOT NULL DEFAULT 0,
			bucket_15_50km INTEGER NOT NULL DEFAULT 0,
			bucket_50km_plus INTEGER NOT NULL DEFAULT 0,
			stated_max_distance_km DOUBLE PRECISION,
			learned_max_distance_km DOUBLE PRECISION,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT unique_user_distance UNIQUE(tenant_id, user_id)
		)`,

		// Explicit matching preferences.
		`CREATE TABLE IF NOT EXISTS match_preferences (
			id SERIAL PRIMARY KEY,
			tenant_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			max_distance_km DOUBLE PRECISION NOT NULL,
			min_match_score DOUBLE PRECISION NOT NULL,
			notify_hot_matches BOOLEAN NOT NULL DEFAULT TRUE,
			notify_new_matches BOOLEAN NOT NULL DEFAULT FALSE,
			category_filter INTEGER[],
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT unique_user_preferences UNIQUE(tenant_id, user_id)
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_listings_tenant_status ON listings(tenant_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_listings_tenant_category ON listings(tenant_id, category_id)`,
		`CREATE INDEX IF NOT EXISTS idx_match_cache_user ON match_cache(tenant_id, user_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_match_history_user ON match_history(tenant_id, user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_match_history_listing ON match_history(tenant_id, listing_id)`,
		`CREATE INDEX IF NOT EXISTS idx_affinity_user ON user_category_affinity(tenant_id, user_id)`,
	}

	for i, migration := range migrations {
		log.Printf("   - Running migration %d/%d...", i+1, len(migrations))
		if _, err := db.Exec(migration); err != nil {
			if !strings.Contains(err.Error(), "already exists") {
				return fmt.Errorf("migration %d failed: %w", i+1, err)
			}
			log.Printf("   - Migration %d skipped (already exists)", i+1)
		}
	}

	log.Println("   ✅ All migrations executed successfully")
	return nil
}

// verifySchema confirms every table the engine reads or writes is present.
func verifySchema(db *sqlx.DB) error {
	required := []string{
		"users",
		"listings",
		"match_cache",
		"match_history",
		"user_category_affinity",
		"user_distance_preference",
		"match_preferences",
	}

	for _, table := range required {
		var exists bool
		err := db.QueryRow(`
			SELECT EXISTS (
				SELECT FROM information_schema.tables
				WHERE table_schema = 'public'
				AND table_name = $1
			)
		`, table).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("required table %s is missing", table)
		}
	}

	return nil
}
