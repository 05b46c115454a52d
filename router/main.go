package router

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/sahilchouksey/lecture-chat-api/config"
	"github.com/sahilchouksey/lecture-chat-api/database"
	"github.com/sahilchouksey/lecture-chat-api/handlers"
	analytics_handlers "github.com/sahilchouksey/lecture-chat-api/handlers/analytics"
	chat_handlers "github.com/sahilchouksey/lecture-chat-api/handlers/chat"
	video_handlers "github.com/sahilchouksey/lecture-chat-api/handlers/video"
	"github.com/sahilchouksey/lecture-chat-api/services"
	"github.com/sahilchouksey/lecture-chat-api/services/captions"
	"github.com/sahilchouksey/lecture-chat-api/services/mux"
	"github.com/sahilchouksey/lecture-chat-api/services/openai"
	"github.com/sahilchouksey/lecture-chat-api/services/storage"
	"github.com/sahilchouksey/lecture-chat-api/utils"
	"github.com/sahilchouksey/lecture-chat-api/utils/cache"
	"github.com/sahilchouksey/lecture-chat-api/utils/middleware"
)

// Services bundles the long-lived services the app layer also needs (worker
// pool and cron wiring happen there)
type Services struct {
	Ingest *services.IngestService
	Chat   *services.ChatService
}

// SetupRoutes wires providers, services, and handlers onto the fiber app
func SetupRoutes(app *fiber.App, store database.Storage) *Services {
	getEnv, err := config.Get()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		log.Fatal("Failed to get GORM DB instance")
	}

	// Provider clients
	openaiClient := openai.NewClient(openai.Config{
		APIKey:  getEnv.OPENAI_API_KEY,
		BaseURL: getEnv.OPENAI_BASE_URL,
	})
	captionsClient := captions.NewClient(captions.Config{})
	muxClient := mux.NewClient(mux.Config{
		TokenID:     getEnv.MUX_TOKEN_ID,
		TokenSecret: getEnv.MUX_TOKEN_SECRET,
	})

	var spacesClient *storage.SpacesClient
	if getEnv.SPACES_ACCESS_KEY != "" {
		spacesClient, err = storage.NewSpacesClient(storage.SpacesConfig{
			AccessKey: getEnv.SPACES_ACCESS_KEY,
			SecretKey: getEnv.SPACES_SECRET_KEY,
			Bucket:    getEnv.SPACES_BUCKET,
			Region:    getEnv.SPACES_REGION,
			Endpoint:  getEnv.SPACES_ENDPOINT,
		})
		if err != nil {
			log.Printf("Warning: Spaces storage unavailable, uploaded-file sources disabled: %v", err)
		}
	}

	redisURL := getEnv.REDIS_URL
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}
	redisCache, err := cache.NewRedisCache(redisURL)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v. Title single-flighting will be disabled.", err)
	}

	// Ingestion pipeline
	resolver := services.NewTranscriptResolver()
	adapters := []services.TranscriptAdapter{
		services.NewPlatformCaptionsAdapter(captionsClient),
		services.NewCDNCaptionsAdapter(muxClient, getEnv.CAPTION_MIN_CONFIDENCE),
		services.NewSpeechToTextAdapter(openaiClient, muxClient, spacesClient),
	}
	chunker := services.NewChunker(services.ChunkerConfig{
		TargetWords:  getEnv.CHUNK_TARGET_WORDS,
		OverlapWords: getEnv.CHUNK_OVERLAP_WORDS,
	})
	embedder := services.NewEmbeddingService(openaiClient)
	ingestService := services.NewIngestService(db, resolver, adapters, chunker, embedder,
		services.IngestConfig{Workers: getEnv.INGEST_WORKERS})

	// Retrieval and chat
	searchService := services.NewSearchService(db, openaiClient, services.SearchConfig{
		TopK:            getEnv.RETRIEVAL_TOP_K,
		SimilarityFloor: getEnv.SIMILARITY_FLOOR,
	})
	var chatCache services.Cache
	if redisCache != nil {
		chatCache = redisCache
	}
	chatService := services.NewChatService(db, searchService, openaiClient, chatCache,
		services.ChatConfig{SessionFreshness: time.Duration(getEnv.SESSION_FRESHNESS_HR) * time.Hour})
	exportService := services.NewExportService(db)
	analyticsService := services.NewAnalyticsService(db)

	// Handlers
	videoHandler := video_handlers.NewVideoHandler(db, ingestService, spacesClient)
	chatHandler := chat_handlers.NewChatHandler(db, chatService, exportService)
	analyticsHandler := analytics_handlers.NewAnalyticsHandler(analyticsService)

	tenantMiddleware := middleware.NewTenantMiddleware()

	// Health check endpoint (public)
	app.Get("/ping", utils.MakeHTTPHandleFunc(handlers.HandleCheckHealth, store))

	// API v1 group; everything below requires gateway identity headers
	api := app.Group("/api/v1", tenantMiddleware.Required())

	// Video library and ingestion routes
	videos := api.Group("/videos")
	videos.Get("/", videoHandler.ListVideos)
	videos.Post("/", videoHandler.CreateVideo)
	videos.Post("/uploads", videoHandler.CreateUpload)
	videos.Get("/:id", videoHandler.GetVideo)
	videos.Delete("/:id", videoHandler.DeleteVideo)
	videos.Get("/:id/status", videoHandler.GetVideoStatus)
	videos.Post("/:id/ingest", videoHandler.RequestIngestion)
	videos.Post("/:id/ingest/cancel", videoHandler.CancelIngestion)
	videos.Post("/:id/resync", videoHandler.Resync)

	// Chat routes
	chat := api.Group("/chat")
	chat.Post("/", chatHandler.SendMessage)
	chat.Get("/sessions", chatHandler.ListSessions)
	chat.Get("/sessions/:id", chatHandler.GetSessionHistory)
	chat.Post("/sessions/:id/archive", chatHandler.ArchiveSession)
	chat.Get("/sessions/:id/export", chatHandler.ExportSession)

	// Analytics routes
	analytics := api.Group("/analytics")
	analytics.Get("/", analyticsHandler.GetTenantStats)
	analytics.Get("/sessions/:id", analyticsHandler.GetSessionStats)
	analytics.Get("/videos/top", analyticsHandler.GetMostReferencedVideos)
	analytics.Get("/topics", analyticsHandler.GetTopTopics)
	analytics.Get("/peak-hours", analyticsHandler.GetPeakHours)
	analytics.Get("/spend", analyticsHandler.GetSpend)

	return &Services{
		Ingest: ingestService,
		Chat:   chatService,
	}
}
