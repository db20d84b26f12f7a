package routes

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"posts-rag-service/internal/config"
	"posts-rag-service/internal/logger"
	"posts-rag-service/internal/vectorstore"
	"posts-rag-service/middleware"
	"posts-rag-service/models"
	"posts-rag-service/services"
	"posts-rag-service/utils"

	"github.com/gin-gonic/gin"
)

// PostServices bundles what the post routes call into
type PostServices struct {
	Store      vectorstore.Store
	Embeddings *services.EmbeddingStore
	Search     services.Searcher
	Batch      *services.BatchOrchestrator
	Pipeline   *services.IngestionPipeline
}

// SetupPostRoutes mounts the /api/posts group; mw runs before every post route.
func SetupPostRoutes(router *gin.Engine, cfg *config.Config, svc PostServices, mw ...gin.HandlerFunc) {
	posts := router.Group("/api/posts")
	posts.Use(mw...)

	// Create a post, embed it and attach related approved posts
	posts.POST("", func(c *gin.Context) {
		var req models.CreatePostRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}
		if strings.TrimSpace(req.Post) == "" {
			utils.RespondWithBadRequest(c, "Post content must not be empty", nil)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		post := &models.Post{
			Content:    req.Post,
			UserID:     req.UserID,
			IsApproved: req.IsApproved,
			IsActive:   true,
		}
		if err := svc.Store.CreatePost(ctx, post); err != nil {
			logger.Error("failed to create post", "request_id", middleware.GetRequestID(c), "error", err)
			utils.RespondWithInternalError(c, "Failed to create post", nil)
			return
		}

		c.JSON(http.StatusCreated, svc.Pipeline.OnPostCreated(ctx, post))
	})

	// Generate (or return the existing) embedding for one post
	posts.POST("/:id/embeddings", func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id < 1 {
			utils.RespondWithBadRequest(c, "Post id must be a positive integer", gin.H{"id": c.Param("id")})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		rec, created, err := svc.Embeddings.Ensure(ctx, id)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		if !created {
			c.JSON(http.StatusOK, rec)
			return
		}
		c.JSON(http.StatusCreated, rec)
	})

	// Best-effort batch embedding
	posts.POST("/embeddings/batch", func(c *gin.Context) {
		var req models.BatchEmbeddingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		result, err := svc.Batch.ProcessBatch(ctx, req.PostIDs)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	})

	// Ad-hoc similarity search over active, non-deleted posts
	posts.POST("/search/similar", func(c *gin.Context) {
		var req models.SimilarSearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		searchReq := services.SearchRequest{
			Query:     req.Query,
			Limit:     cfg.SearchDefaultLimit,
			Threshold: cfg.SearchDefaultThreshold,
		}
		if req.Limit != nil {
			searchReq.Limit = *req.Limit
		}
		if req.Threshold != nil {
			searchReq.Threshold = *req.Threshold
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		results, err := svc.Search.Search(ctx, searchReq)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"results": results,
			"count":   len(results),
		})
	})
}

// respondServiceError maps service errors onto HTTP statuses
func respondServiceError(c *gin.Context, err error) {
	var (
		validationErr *services.ValidationError
		generationErr *services.EmbeddingGenerationError
		searchErr     *services.SearchError
	)

	switch {
	case errors.As(err, &validationErr):
		utils.RespondWithError(c, http.StatusBadRequest, "validation_error", validationErr.Error(),
			gin.H{"field": validationErr.Field})
	case errors.Is(err, services.ErrPostNotFound):
		utils.RespondWithNotFound(c, "Post not found")
	case errors.As(err, &generationErr):
		logger.Warn("embedding request failed", "request_id", middleware.GetRequestID(c), "error", err)
		utils.RespondWithBadGateway(c, "embedding_generation_failed", "Failed to generate embedding", nil)
	case errors.As(err, &searchErr):
		logger.Warn("similarity search failed", "request_id", middleware.GetRequestID(c), "error", err)
		utils.RespondWithBadGateway(c, "search_failed", "Similarity search failed", nil)
	default:
		logger.Error("unexpected service error", "request_id", middleware.GetRequestID(c), "error", err)
		utils.RespondWithInternalError(c, "Internal server error", nil)
	}
}
