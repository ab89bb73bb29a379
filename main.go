package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/urfave/negroni"

	"github.com/serisow/docchat/config"
	"github.com/serisow/docchat/db"
	"github.com/serisow/docchat/logging"
	"github.com/serisow/docchat/pipeline"
	"github.com/serisow/docchat/scheduler"
	"github.com/serisow/docchat/server"
	"github.com/serisow/docchat/services/embedding_service"
	"github.com/serisow/docchat/services/llm_service"
	"github.com/serisow/docchat/services/ocr_service"
	"github.com/serisow/docchat/services/rag_service"
	"github.com/serisow/docchat/services/raster_service"
	"github.com/serisow/docchat/storage"
)

func main() {
	cfg := config.Load()

	logHandler, err := logging.NewDailyFileHandler(cfg.LogDir, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	logger := slog.New(logHandler)

	chunker, err := rag_service.NewChunker(cfg.ChunkMaxChars, cfg.ChunkOverlapChars)
	if err != nil {
		log.Fatalf("Invalid chunker configuration: %v", err)
	}

	rasterizer := raster_service.NewRasterizer(cfg.RasterDPI, logger)
	recognizer := ocr_service.NewVisionService(cfg.OCREndpoint, cfg.OCRAPIKey, logger)
	extractor := rag_service.NewDocumentExtractor(logger)
	embedder := embedding_service.New(cfg.EmbeddingEndpoint, cfg.EmbeddingAPIKey,
		cfg.EmbeddingModel, cfg.EmbeddingMaxChars, logger)
	llm := llm_service.NewGeminiService(cfg.GeminiAPIURL, cfg.GeminiAPIKey,
		cfg.GeminiModel, cfg.GeminiFallbackModel, logger)

	var documents storage.DocumentStore
	var chunkStore storage.ChunkStore

	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		if err := db.Migrate(context.Background(), pool, cfg.EmbeddingDimensions); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}

		store := storage.NewPostgresStore(pool, cfg.EmbeddingDimensions, logger)
		documents = store
		chunkStore = store

		indexManager := storage.NewIndexManager(pool, logger)
		s := scheduler.New(cfg.IndexMaintenanceInterval, indexManager, logger)
		go s.Start(context.Background())
	} else {
		logger.Warn("DATABASE_URL not set, falling back to in-memory store; data will not survive restarts")
		mem := storage.NewMemoryStore(cfg.EmbeddingDimensions)
		documents = mem
		chunkStore = mem
	}

	ingestor := pipeline.NewIngestor(rasterizer, recognizer, extractor, embedder,
		chunker, documents, chunkStore, cfg.OCRConcurrency, logger)
	retriever := rag_service.NewRetriever(embedder, chunkStore, cfg.RetrievalK, logger)
	composer := rag_service.NewComposer(llm, logger)

	r := server.SetupRoutes(documents, ingestor, retriever, composer, logger)
	n := setupNegroni(r)

	if cfg.Environment == "production" {
		server.ServeProduction(n, server.Config{
			Domains:      cfg.Domains,
			CertCacheDir: cfg.CertCacheDir,
			HTTPPort:     cfg.HTTPPort,
			HTTPSPort:    cfg.HTTPSPort,
		})
	} else {
		srv := &http.Server{
			Addr:         ":" + cfg.HTTPPort,
			Handler:      n,
			IdleTimeout:  time.Minute,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 60 * time.Second,
		}
		logger.Info("Starting development server", slog.String("port", cfg.HTTPPort))
		server.ServeDevelopment(srv)
	}
}

func setupNegroni(r *mux.Router) *negroni.Negroni {
	n := negroni.New()

	n.Use(negroni.NewRecovery())
	n.Use(negroni.NewLogger())

	n.UseHandler(r)
	return n
}
