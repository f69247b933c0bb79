package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"vidscribe_go_backend/cmd/api/config"
	"vidscribe_go_backend/internal/api"
	"vidscribe_go_backend/internal/auth"
	"vidscribe_go_backend/internal/broker"
	"vidscribe_go_backend/internal/database"
	"vidscribe_go_backend/internal/services"
	"vidscribe_go_backend/internal/wsocket"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/generative-ai-go/genai"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	genaiAPIKey := os.Getenv("GOOGLE_AI_STUDIO_API_KEY")
	if genaiAPIKey == "" {
		log.Fatal("GOOGLE_AI_STUDIO_API_KEY is not set in the environment")
	}

	transcriptBaseURL := os.Getenv("TRANSCRIPT_API_URL")
	if transcriptBaseURL == "" {
		log.Fatal("TRANSCRIPT_API_URL environment variable is not set")
	}
	transcriptAPIToken := os.Getenv("TRANSCRIPT_API_TOKEN")
	if transcriptAPIToken == "" {
		log.Fatal("TRANSCRIPT_API_TOKEN environment variable is not set")
	}

	ctx := context.Background()
	cfg := config.NewConfig()
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	database.InitDB()

	stripePublicKey := os.Getenv("STRIPE_PUBLIC_KEY")
	stripeSecretKey := os.Getenv("STRIPE_SECRET_KEY")
	stripeService := services.NewStripeService(stripePublicKey, stripeSecretKey)

	genaiClient, err := genai.NewClient(ctx, option.WithAPIKey(genaiAPIKey))
	if err != nil {
		log.Fatalf("Failed to create GenAI client: %v", err)
	}
	defer genaiClient.Close()

	// Model assignments per stage. The multimodal analysis stages get
	// the larger model, the text-only stages the faster one.
	summaryModel := "gemini-1.5-flash"
	visionModel := "gemini-1.5-pro"
	mappingModel := "gemini-1.5-pro"
	chatModel := "gemini-1.5-flash"

	oembedURL := os.Getenv("OEMBED_URL")
	if oembedURL == "" {
		oembedURL = "https://www.youtube.com/oembed"
	}

	messageBroker := broker.NewBroker()

	ledgerService := services.NewLedgerService(database.DB, messageBroker, logger)
	transcriptService := services.NewTranscriptService(
		transcriptBaseURL,
		transcriptAPIToken,
		oembedURL,
		cfg.TranscriptPollInterval,
		cfg.TranscriptPollAttempts,
		logger,
	)
	llmService := services.NewLLMService(genaiClient, logger)
	summaryStore := services.NewSummaryStore(database.DB)

	userService := services.NewUserService(database.DB, ledgerService, logger)
	summaryService := services.NewSummaryService(ledgerService, transcriptService, llmService, summaryStore, summaryModel, logger)
	analysisService := services.NewAnalysisService(ledgerService, transcriptService, llmService, summaryStore, visionModel, mappingModel, chatModel, logger)
	chatService := services.NewChatService(ledgerService, llmService, chatModel, logger)

	sweeper := services.NewStaleSweeper(summaryStore, ledgerService, cfg.StaleResultWindow, cfg.SweepInterval, logger)
	sweeper.Start(ctx)

	r := gin.Default()

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:5173"
	}

	r.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Split(allowedOrigins, ","),
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true // TODO: Implement a more secure check in production
		},
	}

	wsHandler := wsocket.NewHandler(ledgerService, upgrader, cfg.BalanceSnapshotInterval)

	api.SetupRoutes(r, summaryService, analysisService, chatService, ledgerService, summaryStore, stripeService, userService)
	auth.SetupRoutes(r, userService)

	r.GET("/ws", auth.AuthMiddleware(userService), func(c *gin.Context) {
		user, _ := c.Get("user")
		wsHandler.HandleWebSocket(c.Writer, c.Request, user, messageBroker)
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	log.Printf("Server starting on port %s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
