package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cfg "github.com/example/voicejournal/internal/config"
	"github.com/gorilla/mux"
	_ "modernc.org/sqlite"
)

// App wires the handlers to their collaborators.
type App struct {
	DB             DB
	Tokens         *TokenService
	Media          MediaStore
	Denylist       Denylist
	AllowedOrigins []string
	rateLimiter    *RateLimiter
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write json: %v", err)
	}
}

// Router builds the full route tree. Split out of main so tests can mount
// the whole service against httptest.
func (a *App) Router() http.Handler {
	r := mux.NewRouter()

	// Apply global middleware
	r.Use(SecurityHeaders)
	r.Use(a.Logging)
	r.Use(a.CORS)

	// Health check endpoints (no auth required)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(200)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")
	r.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if p, ok := a.DB.(interface{ ping() bool }); ok {
			if !p.ping() {
				w.WriteHeader(503)
				w.Write([]byte(`{"ready":false}`))
				return
			}
		}
		w.WriteHeader(200)
		w.Write([]byte(`{"ready":true}`))
	}).Methods("GET")

	// Credential endpoints, rate limited per client IP
	auth := r.PathPrefix("/auth").Subrouter()
	auth.Use(a.RateLimit)
	auth.HandleFunc("/register", a.HandleRegister).Methods("POST")
	auth.HandleFunc("/login", a.HandleLogin).Methods("POST")
	auth.HandleFunc("/refresh", a.HandleRefresh).Methods("POST")
	auth.Handle("/logout", a.Authorize(http.HandlerFunc(a.HandleLogout))).Methods("POST")
	auth.Handle("/currentUser/{id}", a.Authorize(http.HandlerFunc(a.HandleCurrentUser))).Methods("GET")

	// Journal endpoints, all behind the authorization gate
	r.Handle("/audio", a.Authorize(http.HandlerFunc(a.HandleListAudio))).Methods("GET")
	audio := r.PathPrefix("/audio").Subrouter()
	audio.Use(a.Authorize)
	audio.HandleFunc("/upload", a.HandleUploadAudio).Methods("POST")
	audio.HandleFunc("/stats", a.HandleUserStats).Methods("GET")
	audio.HandleFunc("/{id}/download", a.HandleDownloadAudio).Methods("GET")
	audio.HandleFunc("/{id}", a.HandleGetAudio).Methods("GET")
	audio.HandleFunc("/{id}", a.HandleUpdateAudio).Methods("PUT")
	audio.HandleFunc("/{id}", a.HandleDeleteAudio).Methods("DELETE")

	// Admin endpoints
	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(a.Authorize, a.RequireAdmin)
	admin.HandleFunc("/stats", a.HandleAdminStats).Methods("GET")
	admin.HandleFunc("/users", a.HandleAdminUsers).Methods("GET")

	return r
}

func main() {
	c, err := cfg.New()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var db DB
	switch c.DBAdapter {
	case "sqlite":
		s, err := NewSQLiteDB(c.SQLiteFile)
		if err != nil {
			log.Fatalf("sqlite init: %v", err)
		}
		db = s
	case "postgres":
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			log.Fatalf("postgres config error: %v", err)
		}

		// Apply migrations before connecting
		log.Println("Applying database migrations...")
		if err := ApplyMigrations("./migrations", dsn); err != nil {
			log.Printf("migrations warning: %v", err)
			// Don't fail if migrations already applied
			if err.Error() != "no change" {
				log.Printf("Migration error (continuing anyway): %v", err)
			}
		} else {
			log.Println("Migrations applied successfully")
		}

		p, err := NewPostgresDB(dsn)
		if err != nil {
			log.Fatalf("postgres init: %v", err)
		}
		db = p
		log.Println("Connected to PostgreSQL database")
	case "memory":
		log.Println("Using in-memory database (not recommended for production)")
		db = NewMemoryDB()
	default:
		log.Fatalf("unsupported DB_ADAPTER: %s (supported: postgres, sqlite, memory)", c.DBAdapter)
	}

	var media MediaStore
	if c.S3Bucket != "" {
		s3store, err := NewS3MediaStore(context.Background(), c.S3Region, c.S3Endpoint, c.S3AccessKey, c.S3SecretKey, c.S3Bucket, c.S3BaseURL)
		if err != nil {
			log.Fatalf("media store init: %v", err)
		}
		media = s3store
	} else {
		log.Println("No S3 bucket configured, using in-memory media store (uploads are lost on restart)")
		media = NewMemoryMediaStore()
	}

	var denylist Denylist
	if c.RevocationEnabled {
		rd := NewRedisDenylist(c.RedisAddr, c.RedisPassword, c.RedisDB)
		if !rd.ping() {
			log.Fatalf("revocation enabled but redis unreachable at %s", c.RedisAddr)
		}
		denylist = rd
		log.Println("Token revocation denylist enabled")
	}

	app := &App{
		DB:             db,
		Tokens:         NewTokenService(c.AccessSecret, c.RefreshSecret, c.AccessExpire, c.RefreshExpire),
		Media:          media,
		Denylist:       denylist,
		AllowedOrigins: c.AllowedOrigins,
		rateLimiter:    NewRateLimiter(c.RateLimitPerMinute),
	}

	srv := &http.Server{Handler: app.Router(), Addr: ":" + c.Port, ReadTimeout: 5 * time.Second, WriteTimeout: 10 * time.Second}

	go func() {
		fmt.Println("Starting server on", c.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown failed:%+v", err)
	}
	if closer, ok := app.DB.(interface{ close() error }); ok {
		_ = closer.close()
	}
	if app.Denylist != nil {
		if closer, ok := app.Denylist.(interface{ close() error }); ok {
			_ = closer.close()
		}
	}
	fmt.Println("Server exited properly")
}
