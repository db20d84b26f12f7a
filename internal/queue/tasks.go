package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"posts-rag-service/internal/logger"
	"posts-rag-service/services"
)

const (
	TaskEmbedPost = "post:embed"

	embedQueue    = "default"
	embedMaxRetry = 5
)

type EmbedPostPayload struct {
	PostID int64 `json:"post_id"`
}

// Task creators
func NewEmbedPostTask(postID int64) (*asynq.Task, error) {
	payload, err := json.Marshal(EmbedPostPayload{PostID: postID})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskEmbedPost,
		payload,
		asynq.MaxRetry(embedMaxRetry),
		asynq.Timeout(2*time.Minute),
		asynq.Queue(embedQueue),
	), nil
}

// Client enqueues embedding retries; it satisfies services.RetryEnqueuer.
type Client struct {
	client *asynq.Client
}

func NewClient(redisOpt asynq.RedisConnOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpt)}
}

func (c *Client) EnqueueEmbed(ctx context.Context, postID int64) error {
	task, err := NewEmbedPostTask(postID)
	if err != nil {
		return err
	}
	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueue %s for post %d: %w", TaskEmbedPost, postID, err)
	}
	logger.Debug("task enqueued", "task", TaskEmbedPost, "task_id", info.ID, "post_id", postID)
	return nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Task handlers
type TaskProcessor struct {
	embeddings services.EmbeddingEnsurer
}

func NewTaskProcessor(embeddings services.EmbeddingEnsurer) *TaskProcessor {
	return &TaskProcessor{embeddings: embeddings}
}

// Register wires every handler into mux
func (p *TaskProcessor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskEmbedPost, p.ProcessEmbedPost)
}

func (p *TaskProcessor) ProcessEmbedPost(ctx context.Context, t *asynq.Task) error {
	var payload EmbedPostPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}
	if payload.PostID < 1 {
		return fmt.Errorf("invalid post id %d: %w", payload.PostID, asynq.SkipRetry)
	}

	rec, err := p.embeddings.EnsureEmbedding(ctx, payload.PostID)
	if errors.Is(err, services.ErrPostNotFound) {
		// The post was removed before the retry ran
		logger.Warn("dropping embedding retry", "post_id", payload.PostID, "error", err)
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	if err != nil {
		logger.Warn("embedding retry failed",
			"post_id", payload.PostID,
			"kind", services.ErrorKind(err),
			"error", err,
		)
		return err // Will retry
	}

	logger.Info("embedding retry succeeded", "post_id", payload.PostID, "embedding_id", rec.ID)
	return nil
}
