package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"sojourn/backend/features/chat"
	"sojourn/backend/features/document"
	"sojourn/backend/features/stats"
	"sojourn/backend/internal/adapter/gemini"
	"sojourn/backend/internal/adapter/ocr"
	"sojourn/backend/internal/app"
	"sojourn/backend/internal/config"
	"sojourn/backend/internal/ingest"
	"sojourn/backend/internal/logger"
	"sojourn/backend/internal/middleware"
	"sojourn/backend/internal/rag"
	"sojourn/backend/internal/text"
	"sojourn/backend/internal/worker"

	"github.com/nsqio/go-nsq"
)

func main() {
	log := slog.New(logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil)))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		slog.Error("failed to bootstrap", "error", err)
		os.Exit(1)
	}
	defer deps.DB.Close()

	// Gemini adapters
	oracle, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		slog.Error("failed to create gemini client", "error", err)
		os.Exit(1)
	}
	embedder, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
	if err != nil {
		slog.Error("failed to create gemini embedder", "error", err)
		os.Exit(1)
	}

	// Token-aware chunker
	encoding, err := text.NewEncoding()
	if err != nil {
		slog.Error("failed to load token encoding", "error", err)
		os.Exit(1)
	}
	chunker := text.NewChunker(encoding, cfg.ChunkSize, cfg.ChunkOverlap)

	// Retrieval pipeline
	queryLogger, err := rag.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = rag.NewQueryLogger(os.Stdout)
	}

	classifier := rag.NewClassifier(oracle)
	retriever := rag.NewRetriever(embedder, deps.VectorIndex, queryLogger, cfg.RetrievalTopK)
	generator := rag.NewGenerator(oracle)

	// Image ingestion pipeline
	ocrClient := ocr.NewClient(cfg.OCRServiceURL)
	imageProcessor := ingest.NewImageProcessor(ocrClient, oracle, ingest.SignalThresholds{
		Confidence:   cfg.OCRConfidenceMin,
		TextCoverage: cfg.OCRTextCoverageMin,
		BoxDensity:   cfg.OCRBoxDensityMin,
	})

	// Feature: Chat
	chatRepo := chat.NewPostgresRepo(deps.DB)
	chatService := chat.NewService(classifier, retriever, generator, chatRepo)
	chatHandler := chat.NewHandler(chatService)

	// Feature: Document
	documentRepo := document.NewPostgresRepo(deps.DB)
	documentService := document.NewService(documentRepo, deps.NSQProducer, deps.VectorIndex)
	documentHandler := document.NewHandler(documentService, cfg.UploadDir, cfg.PublicBaseURL, int(cfg.MaxUploadSizeMB))

	// Feature: Stats
	statsHandler := stats.NewHandler(documentRepo, chatRepo, deps.VectorIndex)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-ID, X-Correlation-ID")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	http.Handle("POST /chat", middleware.CorrelationID(enableCORS(chatHandler.Ask)))
	http.Handle("POST /chat/stream", middleware.CorrelationID(enableCORS(chatHandler.AskStream)))
	http.Handle("GET /sessions", middleware.CorrelationID(enableCORS(chatHandler.ListSessions)))
	http.Handle("GET /sessions/{id}/messages", middleware.CorrelationID(enableCORS(chatHandler.ListMessages)))

	http.Handle("POST /documents", middleware.CorrelationID(enableCORS(documentHandler.Upload)))
	http.Handle("GET /documents", middleware.CorrelationID(enableCORS(documentHandler.List)))
	http.Handle("GET /documents/{id}", middleware.CorrelationID(enableCORS(documentHandler.Get)))
	http.Handle("DELETE /documents/{id}", middleware.CorrelationID(enableCORS(documentHandler.Delete)))

	http.Handle("GET /stats", middleware.CorrelationID(enableCORS(statsHandler.GetStats)))

	// Uploaded assets are served back to the frontend by the asset URL
	// stored on each document.
	http.Handle("GET /uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadDir))))

	// Worker (Ingestion Consumer)
	if cfg.EnableIngestionWorker {
		ingestConsumer := worker.NewIngestConsumer(chunker, embedder, deps.VectorIndex, documentRepo, imageProcessor)

		consumer, err := nsq.NewConsumer(config.TopicDocumentIngest, config.ChannelBackend, nsq.NewConfig())
		if err != nil {
			slog.Error("failed to create NSQ consumer for ingestion", "error", err)
		} else {
			consumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
				return ingestConsumer.HandleMessage(m)
			}))
			if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
				slog.Error("failed to connect to NSQLookupd", "error", err)
			} else {
				slog.Info("NSQ ingestion consumer connected")
			}
		}
	}

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	addr := ":" + strconv.Itoa(cfg.ServerPort)
	slog.Info("server starting", "port", cfg.ServerPort)
	if err := http.ListenAndServe(addr, nil); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
