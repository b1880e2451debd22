package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/username/custoimport/src/config"
	"github.com/username/custoimport/src/database"
	"github.com/username/custoimport/src/fiscal"
	"github.com/username/custoimport/src/handlers"
	"github.com/username/custoimport/src/logger"
	"github.com/username/custoimport/src/processors"
	"github.com/username/custoimport/src/services"
	"github.com/username/custoimport/src/utils"
)

var limiter *rate.Limiter

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded", "path", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowed := false
		for _, candidate := range config.Cfg.AllowedOrigins {
			if candidate == origin {
				allowed = true
				break
			}
		}

		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With, If-None-Match")
			w.Header().Set("Access-Control-Expose-Headers", "ETag, Content-Disposition")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel, config.Cfg.LogFormat)

	logger.L.Info("CustoImport backend server starting...")

	logger.L.Info("Loading fiscal data packs...", "dir", config.Cfg.FiscalDataDir)
	tables, err := fiscal.LoadTables(config.Cfg.FiscalDataDir)
	if err != nil {
		logger.L.Error("Failed to load fiscal data packs", "error", err)
		os.Exit(1)
	}
	logger.L.Info("Fiscal data packs loaded", "versions", tables.Versions())

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	database.RunMigrations(config.Cfg.DatabasePath)

	resultCache := cache.New(config.Cfg.CacheDefaultExpiration, config.Cfg.CacheCleanupInterval)
	limiter = rate.NewLimiter(rate.Every(config.Cfg.RateLimitInterval), config.Cfg.RateLimitBurst)

	ncmClassifier := processors.NewNCMClassifier(tables)
	costProcessor := processors.NewCostProcessor(tables, ncmClassifier)
	incentiveProcessor := processors.NewIncentiveProcessor(tables)
	reformProcessor := processors.NewReformProcessor(tables)

	declarationService := services.NewDeclarationService(
		tables,
		costProcessor,
		incentiveProcessor,
		reformProcessor,
		resultCache,
	)
	exportService := services.NewExportService()

	declarationHandler := handlers.NewDeclarationHandler(declarationService, exportService)
	incentiveHandler := handlers.NewIncentiveHandler(declarationService)
	reformHandler := handlers.NewReformHandler(declarationService)
	healthHandler := handlers.NewHealthHandler(tables)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(handlers.ContextualLoggerMiddleware)
	r.Use(enableCORS)
	r.Use(rateLimitMiddleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "CustoImport backend is running"})
	})
	r.Get("/health", healthHandler.HandleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/declaracoes", func(r chi.Router) {
			r.Post("/upload", declarationHandler.HandleUpload)
			r.Get("/", declarationHandler.HandleListDeclarations)
			r.Get("/{numeroDI}", declarationHandler.HandleGetDeclaration)
			r.Delete("/{numeroDI}", declarationHandler.HandleDeleteDeclaration)
			r.Get("/{numeroDI}/nf-campos", incentiveHandler.HandleCalculateNFFields)
			r.Get("/{numeroDI}/export/xlsx", declarationHandler.HandleExportXLSX)
		})
		r.Route("/incentivos", func(r chi.Router) {
			r.Post("/elegibilidade", incentiveHandler.HandleValidateEligibility)
			r.Get("/programas", incentiveHandler.HandleListPrograms)
		})
		r.Get("/reforma/cenarios", reformHandler.HandleGetScenarios)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.SendJSONError(w, "route not found", http.StatusNotFound)
	})

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stdlog.Fatalf("Failed to start server: %v", err)
	}
}
