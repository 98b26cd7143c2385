package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"groups/metrics"
	"groups/roster"
	"groups/solver"
	"groups/store"
)

type config struct {
	PGConn       string
	SQLitePath   string
	ClientID     string
	ClientSecret string
	Admins       []string
	RosterDir    string
	Addr         string
	Attempts     int
	Seed         int64
	FixedSeed    bool
}

func loadConfig(getenv func(string) string) (config, error) {
	for _, key := range []string{"CLIENT_ID", "CLIENT_SECRET", "ADMINS"} {
		if getenv(key) == "" {
			return config{}, fmt.Errorf("%s environment variable is required", key)
		}
	}
	cfg := config{
		PGConn:       getenv("PGCONN"),
		SQLitePath:   getenv("SQLITE_PATH"),
		ClientID:     getenv("CLIENT_ID"),
		ClientSecret: getenv("CLIENT_SECRET"),
		RosterDir:    getenv("ROSTER_DIR"),
		Addr:         getenv("ADDR"),
		Attempts:     solver.DefaultParams.MaxAttempts,
	}
	if (cfg.PGConn == "") == (cfg.SQLitePath == "") {
		return config{}, errors.New("exactly one of PGCONN and SQLITE_PATH is required")
	}
	for _, a := range strings.Split(getenv("ADMINS"), ",") {
		if a = strings.TrimSpace(a); a != "" {
			cfg.Admins = append(cfg.Admins, a)
		}
	}
	if cfg.RosterDir == "" {
		cfg.RosterDir = "."
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if v := getenv("SOLVE_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return config{}, fmt.Errorf("SOLVE_ATTEMPTS must be a positive integer, got %q", v)
		}
		cfg.Attempts = n
	}
	if v := getenv("SOLVE_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return config{}, fmt.Errorf("SOLVE_SEED must be an integer, got %q", v)
		}
		cfg.Seed, cfg.FixedSeed = n, true
	}
	return cfg, nil
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

type app struct {
	cfg     config
	store   store.Store
	rosters roster.Source
	log     *zap.Logger
	metrics *metrics.Collector
	reg     *prometheus.Registry
}

func (a *app) newRand() *rand.Rand {
	if a.cfg.FixedSeed {
		return rand.New(rand.NewSource(a.cfg.Seed))
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

func main() {
	logger, err := newLogger(os.Getenv("LOG_DEV") == "1")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	var st store.Store
	if cfg.PGConn != "" {
		st, err = store.OpenPostgres(cfg.PGConn)
	} else {
		st, err = store.OpenSQLite(cfg.SQLitePath)
	}
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer st.Close()
	logger.Info("connected to store", zap.Bool("postgres", cfg.PGConn != ""))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg, "")
	if err != nil {
		logger.Fatal("failed to register metrics", zap.Error(err))
	}

	a := &app{
		cfg:     cfg,
		store:   st,
		rosters: roster.Dir(cfg.RosterDir),
		log:     logger,
		metrics: m,
		reg:     reg,
	}

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      a.logRequests(a.routes()),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", zap.String("addr", cfg.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func (a *app) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/google/callback", a.handleGoogleCallback)
	mux.HandleFunc("GET /api/admin/check", a.handleAdminCheck)
	mux.HandleFunc("GET /api/classes", a.handleListClasses)
	mux.HandleFunc("GET /api/classes/{classID}/students", a.handleListStudents)
	mux.HandleFunc("GET /api/classes/{classID}/history", a.handleListHistory)
	mux.HandleFunc("POST /api/classes/{classID}/history", a.handleSaveHistory)
	mux.HandleFunc("GET /api/classes/{classID}/history/{index}", a.handleGetHistoryEntry)
	mux.HandleFunc("POST /api/classes/{classID}/history/{index}/restore", a.handleRestoreHistoryEntry)
	mux.HandleFunc("GET /api/classes/{classID}/incompatible", a.handleListIncompatible)
	mux.HandleFunc("POST /api/classes/{classID}/incompatible", a.handleMarkIncompatible)
	mux.HandleFunc("DELETE /api/classes/{classID}/incompatible/{pair}", a.handleUnmarkIncompatible)
	mux.HandleFunc("POST /api/classes/{classID}/groups", a.handleCreateGroups)
	mux.HandleFunc("POST /api/classes/{classID}/shuffle", a.handleShuffle)
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.store.Ping(r.Context()); err != nil {
			http.Error(w, "store unhealthy", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintln(w, "ok")
	})
	return mux
}

func (a *app) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		a.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func (a *app) signEmail(email string) string {
	h := hmac.New(sha256.New, []byte(a.cfg.ClientSecret))
	h.Write([]byte(email))
	sig := base64.RawURLEncoding.EncodeToString(h.Sum(nil))
	return base64.RawURLEncoding.EncodeToString([]byte(email)) + "." + sig
}

func (a *app) authorize(r *http.Request) (string, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return "", false
	}
	emailBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", false
	}
	email := string(emailBytes)
	if !hmac.Equal([]byte(a.signEmail(email)), []byte(token)) {
		return "", false
	}
	return email, true
}

func (a *app) isAdmin(email string) bool {
	return slices.Contains(a.cfg.Admins, email)
}

func (a *app) requireAdmin(w http.ResponseWriter, r *http.Request) (string, bool) {
	email, ok := a.authorize(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", false
	}
	if !a.isAdmin(email) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return "", false
	}
	return email, true
}

// requireClass authorizes the request and returns its validated class id.
func (a *app) requireClass(w http.ResponseWriter, r *http.Request) (string, bool) {
	if _, ok := a.requireAdmin(w, r); !ok {
		return "", false
	}
	classID := r.PathValue("classID")
	if !roster.ValidClassID(classID) {
		http.Error(w, "invalid class ID", http.StatusBadRequest)
		return "", false
	}
	return classID, true
}
