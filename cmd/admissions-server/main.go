// cmd/admissions-server/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"admissions-pipeline/internal/common/config"
	"admissions-pipeline/internal/common/database"
	"admissions-pipeline/internal/common/logger"
	"admissions-pipeline/internal/common/observability"
	"admissions-pipeline/internal/ruleindex"
	cd "admissions-pipeline/internal/stages/classify-documents"
	ed "admissions-pipeline/internal/stages/extract-data"
	md "admissions-pipeline/internal/stages/make-decision"
	"admissions-pipeline/internal/store"
	"admissions-pipeline/internal/workflow"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New("info", "console")
		fallback.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting admissions server...")

	obs := observability.New("admissions-server")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry (optional backend) ---
	var pg *database.PostgresClient
	if cfg.Database.Postgres.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			// Test the connection with context
			return pg.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		defer pg.Close()
		zapLog.Info("PostgreSQL connected successfully")
	}

	// --- Init Elasticsearch with retry (optional backend) ---
	var esClient *database.ElasticsearchClient
	if cfg.Database.Elasticsearch.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			// Test the connection
			return esClient.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Init Redis with retry (optional backend) ---
	var redis *database.RedisClient
	if cfg.Database.Redis.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			redis, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			// Test the connection with context
			return redis.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")

		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer redis.Close()
		zapLog.Info("Redis connected successfully")
	}

	// --- Application Store ---
	var appStore store.ApplicationStore
	if pg != nil {
		pgStore := store.NewPostgresStore(pg.DB)
		if err := pgStore.Migrate(ctx); err != nil {
			zapLog.Fatal("postgres migration failed", zap.Error(err))
		}
		appStore = pgStore
		zapLog.Info("Using PostgreSQL application store")
	} else {
		appStore = store.NewMemoryStore()
		zapLog.Info("Using in-memory application store")
	}

	// --- Rule Index ---
	var embedder ruleindex.Embedder = ruleindex.NewHashingEmbedder(cfg.RuleIndex.EmbeddingDim)
	if redis != nil {
		ttl := time.Duration(cfg.RuleIndex.EmbeddingCacheTTL) * time.Second
		embedder = ruleindex.NewCachedEmbedder(embedder, redis.Client, ttl, log)
		zapLog.Info("Embedding cache enabled")
	}

	var chunkStore ruleindex.ChunkStore
	if esClient != nil {
		chunkStore = ruleindex.NewElasticsearchChunkStore(esClient.Client, cfg.Database.Elasticsearch.ChunkIndex, log)
	}

	chunker := ruleindex.Chunker{
		Size:    cfg.RuleIndex.ChunkSize,
		Overlap: cfg.RuleIndex.ChunkOverlap,
	}
	index := ruleindex.NewIndex(embedder, chunker, chunkStore, log)

	loaded := false
	if chunkStore != nil {
		loaded, err = index.LoadPersisted(ctx)
		if err != nil {
			zapLog.Warn("could not load persisted rule index", zap.Error(err))
		}
	}
	if !loaded && cfg.RuleIndex.RulebookPath != "" {
		book, err := loadRulebook(cfg.RuleIndex.RulebookPath)
		if err != nil {
			zapLog.Fatal("rulebook load failed", zap.Error(err))
		}
		if err := index.Rebuild(ctx, book); err != nil {
			zapLog.Fatal("rule index build failed", zap.Error(err))
		}
	}
	if !index.Ready() {
		zapLog.Warn("rule index is empty; decisions will fail until /rules/rebuild is called")
	}

	// --- Stage Handlers ---
	classifier := cd.NewHandler(&cd.Config{
		ConfidenceThreshold: cfg.Stages.Classifier.ConfidenceThreshold,
	}, log)

	extractor := ed.NewHandler(&ed.Config{
		GenericConfidenceCap: cfg.Stages.Extractor.GenericConfidenceCap,
	}, log)

	decider := md.NewHandler(&md.Config{
		ReviewThreshold:   cfg.Stages.Decision.ReviewThreshold,
		RetrievalK:        cfg.Stages.Decision.RetrievalK,
		AggregationPolicy: cfg.Stages.Decision.AggregationPolicy,
	}, index, md.NewHeuristicInterpreter(), log)

	// --- Orchestrator ---
	orch := workflow.NewOrchestrator(
		appStore, classifier, extractor, decider, index,
		workflow.Config{
			MaxConcurrent: cfg.Workflow.MaxConcurrent,
			StageTimeout:  time.Duration(cfg.Workflow.StageTimeout) * time.Millisecond,
			MaxRetries:    cfg.Workflow.MaxRetries,
			RetryBackoff:  time.Duration(cfg.Workflow.RetryBackoff) * time.Millisecond,
		},
		log, obs,
	)
	zapLog.Info("Orchestrator started",
		zap.Int("maxConcurrent", cfg.Workflow.MaxConcurrent),
		zap.Int("stageTimeout_ms", cfg.Workflow.StageTimeout),
	)

	// --- API Server ---
	api := newAPIServer(orch, index, log)
	apiAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	apiSrv := &http.Server{
		Addr:    apiAddr,
		Handler: api.routes(),
	}
	go func() {
		zapLog.Info("API server listening on " + apiAddr)
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("API server failed", zap.Error(err))
		}
	}()

	// --- Health & Metrics Server ---
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			status := map[string]interface{}{
				"status":    "ready",
				"ruleIndex": index.Ready(),
				"time":      time.Now().Format(time.RFC3339),
			}
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(status)
		})
		mux.Handle("/metrics", promhttp.Handler())
		mux.Handle("/debug/pprof/", http.DefaultServeMux)
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		zapLog.Info("Health/Metrics server listening on " + addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining applications...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down API server", zap.Error(err))
	}
	if err := orch.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Orchestrator drain timed out", zap.Error(err))
	}

	zapLog.Info("Admissions server stopped gracefully")
}

// loadRulebook reads a JSON rulebook ({"source": ..., "pages": [...]}).
func loadRulebook(path string) (ruleindex.Rulebook, error) {
	var book ruleindex.Rulebook
	data, err := os.ReadFile(path)
	if err != nil {
		return book, fmt.Errorf("failed to read rulebook: %w", err)
	}
	if err := json.Unmarshal(data, &book); err != nil {
		return book, fmt.Errorf("failed to parse rulebook: %w", err)
	}
	return book, nil
}
