package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"vidscribe_go_backend/internal/auth"
	apperrors "vidscribe_go_backend/internal/errors"
	"vidscribe_go_backend/internal/models"
	"vidscribe_go_backend/internal/services"
	"vidscribe_go_backend/internal/stream"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
)

func SetupRoutes(
	r *gin.Engine,
	summaryService *services.SummaryService,
	analysisService *services.AnalysisService,
	chatService *services.ChatService,
	ledger services.Ledger,
	store services.SummaryStore,
	stripeService *services.StripeService,
	userService *services.UserService,
) {
	api := r.Group("/api")
	{
		api.POST("/summarize", auth.AuthMiddleware(userService), summarizeHandler(summaryService))
		api.POST("/summarize/sync", auth.AuthMiddleware(userService), summarizeSyncHandler(summaryService))
		api.POST("/analyze", auth.AuthMiddleware(userService), analyzeHandler(analysisService))
		api.POST("/chat", auth.AuthMiddleware(userService), chatHandler(chatService))
		api.POST("/podcast/chat", auth.AuthMiddleware(userService), podcastChatHandler(chatService))
		api.GET("/summaries", auth.AuthMiddleware(userService), listSummariesHandler(store))
		api.GET("/summaries/:id/pdf", auth.AuthMiddleware(userService), exportSummaryHandler(store))
		api.GET("/credits/balance", auth.AuthMiddleware(userService), balanceHandler(ledger))
		api.GET("/credits/transactions", auth.AuthMiddleware(userService), transactionsHandler(ledger))
		api.POST("/purchase-credits", auth.AuthMiddleware(userService), purchaseCreditsHandler(stripeService))
		api.POST("/stripe/webhook", stripeWebhookHandler(stripeService, ledger))
	}
}

func currentUser(c *gin.Context) (*models.User, bool) {
	user, exists := c.Get("user")
	if !exists {
		return nil, false
	}
	userModel, ok := user.(*models.User)
	return userModel, ok
}

// beginStream sets the chunked event-stream headers and hands back the
// writer the orchestrators emit through.
func beginStream(c *gin.Context) *stream.Writer {
	c.Header("Content-Type", stream.ContentType)
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	return stream.NewWriter(c.Writer)
}

func summarizeHandler(summaryService *services.SummaryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userModel, ok := currentUser(c)
		if !ok {
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}

		var request services.SummaryRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			apperrors.HandleError(c, apperrors.New400Error(err.Error()))
			return
		}

		out := beginStream(c)
		summaryService.Run(c.Request.Context(), userModel, request, out)
	}
}

func summarizeSyncHandler(summaryService *services.SummaryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userModel, ok := currentUser(c)
		if !ok {
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}

		var request services.SummaryRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			apperrors.HandleError(c, apperrors.New400Error(err.Error()))
			return
		}

		response, err := summaryService.RunSync(c.Request.Context(), userModel, request)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrInsufficientCredits):
				apperrors.HandleError(c, apperrors.New402Error("Insufficient credits for this operation"))
			case errors.Is(err, services.ErrNoTranscript):
				apperrors.HandleError(c, apperrors.New400Error(err.Error()))
			default:
				apperrors.HandleError(c, apperrors.LogAndReturn500(err))
			}
			return
		}

		c.JSON(http.StatusOK, response)
	}
}

func analyzeHandler(analysisService *services.AnalysisService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userModel, ok := currentUser(c)
		if !ok {
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}

		var request services.AnalysisRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			apperrors.HandleError(c, apperrors.New400Error(err.Error()))
			return
		}
		if request.Mode != "chat" && request.SourceURL == "" {
			apperrors.HandleError(c, apperrors.New400Error("source_url is required to start an analysis"))
			return
		}

		out := beginStream(c)
		analysisService.Run(c.Request.Context(), userModel, request, out)
	}
}

func chatHandler(chatService *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userModel, ok := currentUser(c)
		if !ok {
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}

		var request services.ChatRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			apperrors.HandleError(c, apperrors.New400Error(err.Error()))
			return
		}

		out := beginStream(c)
		chatService.StreamChat(c.Request.Context(), userModel, request, out)
	}
}

// podcastChatHandler accepts the transcript either inline in a JSON body
// or as an uploaded PDF in a multipart form alongside a JSON-encoded
// messages field.
func podcastChatHandler(chatService *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userModel, ok := currentUser(c)
		if !ok {
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}

		var request services.ChatRequest
		if fileHeader, err := c.FormFile("transcript_pdf"); err == nil {
			tempDir, err := os.MkdirTemp("", "podcast_pdfs_")
			if err != nil {
				apperrors.HandleError(c, apperrors.LogAndReturn500(err))
				return
			}
			defer os.RemoveAll(tempDir)

			filename := filepath.Join(tempDir, fileHeader.Filename)
			if err := c.SaveUploadedFile(fileHeader, filename); err != nil {
				apperrors.HandleError(c, apperrors.LogAndReturn500(err))
				return
			}

			transcript, err := services.ExtractTranscriptFromPDF(filename)
			if err != nil {
				apperrors.HandleError(c, apperrors.New400Error(fmt.Sprintf("Could not read transcript PDF: %v", err)))
				return
			}
			request.Transcript = transcript

			if err := json.Unmarshal([]byte(c.PostForm("messages")), &request.Messages); err != nil {
				apperrors.HandleError(c, apperrors.New400Error("Invalid messages format"))
				return
			}
		} else if err := c.ShouldBindJSON(&request); err != nil {
			apperrors.HandleError(c, apperrors.New400Error(err.Error()))
			return
		}

		out := beginStream(c)
		chatService.StreamChat(c.Request.Context(), userModel, request, out)
	}
}

func listSummariesHandler(store services.SummaryStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		userModel, ok := currentUser(c)
		if !ok {
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}

		summaries, err := store.ListSummariesByUser(c.Request.Context(), userModel.ID)
		if err != nil {
			apperrors.HandleError(c, apperrors.LogAndReturn500(err))
			return
		}

		var history []gin.H
		for _, s := range summaries {
			history = append(history, gin.H{
				"id":         s.ID,
				"source_url": s.SourceURL,
				"title":      s.Title,
				"thumbnail":  s.Thumbnail,
				"result":     s.Result,
				"created_at": s.CreatedAt.Format(time.RFC3339),
			})
		}

		c.JSON(http.StatusOK, gin.H{"summaries": history})
	}
}

func exportSummaryHandler(store services.SummaryStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		userModel, ok := currentUser(c)
		if !ok {
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}

		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			apperrors.HandleError(c, apperrors.New400Error("Invalid summary id"))
			return
		}

		summary, err := store.GetSummaryByID(c.Request.Context(), uint(id))
		if err != nil {
			apperrors.HandleError(c, apperrors.New404Error("Summary not found"))
			return
		}
		if summary.UserID != userModel.ID {
			apperrors.HandleError(c, apperrors.New403Error())
			return
		}

		data, err := services.RenderSummaryPDF(summary)
		if err != nil {
			apperrors.HandleError(c, apperrors.LogAndReturn500(err))
			return
		}

		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=summary-%d.pdf", summary.ID))
		c.Data(http.StatusOK, "application/pdf", data)
	}
}

func balanceHandler(ledger services.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userModel, ok := currentUser(c)
		if !ok {
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}

		balance, err := ledger.Balance(c.Request.Context(), userModel.ID)
		if err != nil {
			apperrors.HandleError(c, apperrors.LogAndReturn500(err))
			return
		}

		c.JSON(http.StatusOK, gin.H{"balance": balance})
	}
}

func transactionsHandler(ledger services.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userModel, ok := currentUser(c)
		if !ok {
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}

		transactions, err := ledger.Transactions(c.Request.Context(), userModel.ID)
		if err != nil {
			apperrors.HandleError(c, apperrors.LogAndReturn500(err))
			return
		}

		c.JSON(http.StatusOK, gin.H{"transactions": transactions})
	}
}

func purchaseCreditsHandler(stripeService *services.StripeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userModel, ok := currentUser(c)
		if !ok {
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}

		var request struct {
			Credits float64 `json:"credits" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil || request.Credits <= 0 {
			apperrors.HandleError(c, apperrors.New400Error("Invalid credits value"))
			return
		}

		// One credit costs one dollar.
		amountCents := int64(request.Credits * 100)
		session, err := stripeService.CreateCheckoutSession(userModel.ID.String(), request.Credits, amountCents)
		if err != nil {
			apperrors.HandleError(c, apperrors.LogAndReturn500(err))
			return
		}

		c.JSON(http.StatusOK, gin.H{"session_id": session.ID})
	}
}

func stripeWebhookHandler(stripeService *services.StripeService, ledger services.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const MaxBodyBytes = int64(65536)
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)

		payload, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Error reading request body"})
			return
		}

		signatureHeader := c.GetHeader("Stripe-Signature")
		event, err := stripeService.HandleWebhook(payload, signatureHeader)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to verify webhook signature"})
			return
		}

		switch event.Type {
		case "checkout.session.completed":
			var session stripe.CheckoutSession
			if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse checkout session"})
				return
			}
			if err := applyCompletedCheckout(c, session, ledger); err != nil {
				apperrors.HandleError(c, apperrors.LogAndReturn500(err))
				return
			}
		default:
			// Other event types carry nothing the ledger cares about.
		}

		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}

func applyCompletedCheckout(c *gin.Context, session stripe.CheckoutSession, ledger services.Ledger) error {
	userID, err := uuid.Parse(session.ClientReferenceID)
	if err != nil {
		return fmt.Errorf("invalid user ID in checkout session: %v", err)
	}

	credits, err := strconv.ParseFloat(session.Metadata["credits"], 64)
	if err != nil {
		return fmt.Errorf("invalid credits metadata: %v", err)
	}

	// Stripe redelivers webhooks on timeouts; a replayed completion for
	// the same session must ack without crediting again.
	err = ledger.CreditOnce(c.Request.Context(), userID, credits, models.TransactionPurchase, "credit purchase", session.ID)
	if errors.Is(err, services.ErrAlreadyCredited) {
		return nil
	}
	return err
}
