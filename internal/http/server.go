package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"expensetracker/internal/analytics"
	"expensetracker/internal/cache"
	"expensetracker/internal/core"
	"expensetracker/internal/log"
	"expensetracker/internal/middleware/ratelimit"
	"expensetracker/internal/middleware/security"
	"expensetracker/internal/middleware/trace"
)

const (
	analyticsCacheSize = 32
	analyticsCacheTTL  = time.Minute
	cacheSweepInterval = 5 * time.Minute
)

// ExpenseStore is the expense service as seen by the handlers.
type ExpenseStore interface {
	Get(id string) (core.Expense, error)
	Add(ctx context.Context, d core.Draft) (core.Expense, error)
	Update(ctx context.Context, id string, patch core.ExpensePatch) (core.Expense, error)
	Delete(ctx context.Context, id string) error
	ClearAll(ctx context.Context) error
	Import(ctx context.Context, data []byte, format string) (int, error)
	Export(format string) ([]byte, error)
	Analytics() (analytics.Snapshot, analytics.Insights)
	Filter(opts analytics.FilterOptions) analytics.FilterResult
	Revision() int64
	Location() *time.Location
	Now() time.Time
}

// PreferencesStore is the preferences service as seen by the handlers.
type PreferencesStore interface {
	Get(ctx context.Context) core.Preferences
	Update(ctx context.Context, patch core.PreferencesPatch) (core.Preferences, error)
	Reset(ctx context.Context) (core.Preferences, error)
}

// Config holds the server settings.
type Config struct {
	Addr               string
	RateLimitPerMinute int
	Logger             *log.Logger
	// Ready reports whether dependencies are reachable; nil means always.
	Ready func(ctx context.Context) error
}

type Server struct {
	http.Server

	expenses ExpenseStore
	prefs    PreferencesStore
	ready    func(ctx context.Context) error
	logger   *log.Logger

	limiter        *ratelimit.Limiter
	detector       *security.Detector
	tracer         *trace.Middleware
	analyticsCache *cache.LRUCache[AnalyticsResponse]
	cacheManager   *cache.Manager

	shutdownOnce sync.Once
}

func NewServer(cfg Config, expenses ExpenseStore, prefs PreferencesStore) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		expenses:       expenses,
		prefs:          prefs,
		ready:          cfg.Ready,
		logger:         logger,
		limiter:        ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		detector:       security.NewDetector(logger),
		analyticsCache: cache.NewLRUCache[AnalyticsResponse](analyticsCacheSize, analyticsCacheTTL),
		cacheManager:   cache.NewManager(),
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)
	s.cacheManager.Register(s.analyticsCache)
	s.cacheManager.StartCleanup(context.Background(), cacheSweepInterval)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) routes() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimit))

	api.HandleFunc("/expenses", s.handleListExpenses).Methods(http.MethodGet)
	api.HandleFunc("/expenses", s.handleCreateExpense).Methods(http.MethodPost)
	api.HandleFunc("/expenses", s.handleClearExpenses).Methods(http.MethodDelete)
	api.HandleFunc("/expenses/export", s.handleExportExpenses).Methods(http.MethodGet)
	api.HandleFunc("/expenses/import", s.handleImportExpenses).Methods(http.MethodPost)
	api.HandleFunc("/expenses/{id}", s.handleGetExpense).Methods(http.MethodGet)
	api.HandleFunc("/expenses/{id}", s.handleUpdateExpense).Methods(http.MethodPatch)
	api.HandleFunc("/expenses/{id}", s.handleDeleteExpense).Methods(http.MethodDelete)

	api.HandleFunc("/analytics", s.handleAnalytics).Methods(http.MethodGet)

	api.HandleFunc("/categories", handleListCategories).Methods(http.MethodGet)
	api.HandleFunc("/categories/{id}", handleGetCategory).Methods(http.MethodGet)

	api.HandleFunc("/preferences", s.handleGetPreferences).Methods(http.MethodGet)
	api.HandleFunc("/preferences", s.handleUpdatePreferences).Methods(http.MethodPatch)
	api.HandleFunc("/preferences", s.handleResetPreferences).Methods(http.MethodDelete)

	api.HandleFunc("/receipts", s.handleCreateFromReceipt).Methods(http.MethodPost)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not found"})
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
	})

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	var h http.Handler = router
	h = s.detector.Middleware(h)
	h = headers.Middleware(h)
	h = s.tracer.Middleware(h)
	return h
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded"})
}

// Shutdown stops accepting requests, waits for in-flight ones and stops the
// background goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Server.Shutdown(ctx)
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		s.cacheManager.Stop()
	})
	return err
}

// Stats reports request, rate limiting and detection counters.
type Stats struct {
	Requests    trace.Metrics
	RateLimit   ratelimit.Metrics
	Detection   security.DetectionMetrics
	CachedViews int
}

func (s *Server) Stats() Stats {
	return Stats{
		Requests:    s.tracer.GetMetrics(),
		RateLimit:   s.limiter.GetMetrics(),
		Detection:   s.detector.GetMetrics(),
		CachedViews: s.analyticsCache.Size(),
	}
}
