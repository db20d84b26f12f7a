package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"posts-rag-service/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	postsCollection      = "posts"
	embeddingsCollection = "post_embeddings"
	countersCollection   = "counters"

	// $vectorSearch limits before the posts lookup, so visibility filters run on a
	// wider window than the caller asked for.
	mongoVisibilityOverfetch = 4
	mongoMinCandidates       = 100
)

type embeddingDoc struct {
	ID          int64     `bson:"_id"`
	PostID      int64     `bson:"post_id"`
	Vector      []float32 `bson:"embedding"`
	Model       string    `bson:"model"`
	TextContent string    `bson:"text_content"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func (d *embeddingDoc) toModel() *models.PostEmbedding {
	return &models.PostEmbedding{
		ID:          d.ID,
		PostID:      d.PostID,
		Vector:      d.Vector,
		Model:       d.Model,
		TextContent: d.TextContent,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

type neighborDoc struct {
	ID          int64       `bson:"_id"`
	PostID      int64       `bson:"post_id"`
	Model       string      `bson:"model"`
	TextContent string      `bson:"text_content"`
	CreatedAt   time.Time   `bson:"created_at"`
	UpdatedAt   time.Time   `bson:"updated_at"`
	Score       float64     `bson:"score"`
	Post        models.Post `bson:"post"`
}

// MongoStore ranks with Atlas $vectorSearch. Post and embedding IDs are int64
// sequences kept in the counters collection.
type MongoStore struct {
	client     *mongo.Client
	posts      *mongo.Collection
	embeddings *mongo.Collection
	counters   *mongo.Collection
	indexName  string
}

func NewMongoStore(client *mongo.Client, dbName, indexName string) *MongoStore {
	db := client.Database(dbName)
	return &MongoStore{
		client:     client,
		posts:      db.Collection(postsCollection),
		embeddings: db.Collection(embeddingsCollection),
		counters:   db.Collection(countersCollection),
		indexName:  indexName,
	}
}

func (s *MongoStore) nextID(ctx context.Context, name string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("vectorstore: next %s id: %w", name, err)
	}
	return counter.Seq, nil
}

func (s *MongoStore) CreatePost(ctx context.Context, post *models.Post) error {
	id, err := s.nextID(ctx, postsCollection)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	if post.UpdatedAt.IsZero() {
		post.UpdatedAt = post.CreatedAt
	}
	post.ID = id

	if _, err := s.posts.InsertOne(ctx, post); err != nil {
		post.ID = 0
		return fmt.Errorf("vectorstore: insert post: %w", err)
	}
	return nil
}

func (s *MongoStore) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	var post models.Post
	err := s.posts.FindOne(ctx, bson.M{"_id": id}).Decode(&post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("vectorstore: get post %d: %w", id, err)
	}
	return &post, nil
}

func (s *MongoStore) FindEmbedding(ctx context.Context, postID int64) (*models.PostEmbedding, error) {
	var doc embeddingDoc
	err := s.embeddings.FindOne(ctx, bson.M{"post_id": postID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrEmbeddingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("vectorstore: find embedding for post %d: %w", postID, err)
	}
	return doc.toModel(), nil
}

func (s *MongoStore) InsertEmbedding(ctx context.Context, rec *models.PostEmbedding) error {
	id, err := s.nextID(ctx, embeddingsCollection)
	if err != nil {
		return err
	}
	doc := embeddingDoc{
		ID:          id,
		PostID:      rec.PostID,
		Vector:      rec.Vector,
		Model:       rec.Model,
		TextContent: rec.TextContent,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
	_, err = s.embeddings.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateEmbedding
	}
	if err != nil {
		return fmt.Errorf("vectorstore: insert embedding for post %d: %w", rec.PostID, err)
	}
	rec.ID = id
	return nil
}

func (s *MongoStore) NearestNeighbors(ctx context.Context, q NeighborQuery) ([]Candidate, error) {
	if q.Limit <= 0 {
		return nil, nil
	}

	window := q.Limit * mongoVisibilityOverfetch
	numCandidates := window * 10
	if numCandidates < mongoMinCandidates {
		numCandidates = mongoMinCandidates
	}

	vectorSearch := bson.M{
		"index":         s.indexName,
		"path":          "embedding",
		"queryVector":   q.Vector,
		"numCandidates": numCandidates,
		"limit":         window,
	}
	if q.ExcludePostID != nil {
		vectorSearch["filter"] = bson.M{"post_id": bson.M{"$ne": *q.ExcludePostID}}
	}

	visibility := bson.M{
		"post.is_deleted": false,
		"post.is_active":  true,
	}
	if q.ApprovedOnly {
		visibility["post.is_approved"] = true
	}

	pipeline := []bson.M{
		{"$vectorSearch": vectorSearch},
		{"$addFields": bson.M{"score": bson.M{"$meta": "vectorSearchScore"}}},
		{"$unset": "embedding"},
		{"$lookup": bson.M{
			"from":         postsCollection,
			"localField":   "post_id",
			"foreignField": "_id",
			"as":           "post",
		}},
		{"$unwind": "$post"},
		{"$match": visibility},
		{"$limit": q.Limit},
	}

	cursor, err := s.embeddings.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: vector search: %w", err)
	}
	var docs []neighborDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("vectorstore: decode vector search: %w", err)
	}

	out := make([]Candidate, 0, len(docs))
	for _, d := range docs {
		out = append(out, Candidate{
			Embedding: models.PostEmbedding{
				ID:          d.ID,
				PostID:      d.PostID,
				Model:       d.Model,
				TextContent: d.TextContent,
				CreatedAt:   d.CreatedAt,
				UpdatedAt:   d.UpdatedAt,
			},
			Post:     d.Post,
			Distance: distanceFromAtlasScore(d.Score),
		})
	}
	return out, nil
}

// distanceFromAtlasScore inverts Atlas' cosine normalisation, score = (1 + cos) / 2.
func distanceFromAtlasScore(score float64) float64 {
	return 2 - 2*score
}

func (s *MongoStore) PostsMissingEmbeddings(ctx context.Context, limit int) ([]int64, error) {
	pipeline := []bson.M{
		{"$match": bson.M{"is_deleted": false, "is_active": true}},
		{"$sort": bson.M{"_id": 1}},
		{"$lookup": bson.M{
			"from":         embeddingsCollection,
			"localField":   "_id",
			"foreignField": "post_id",
			"as":           "embedding",
		}},
		{"$match": bson.M{"embedding": bson.M{"$size": 0}}},
		{"$limit": limit},
		{"$project": bson.M{"_id": 1}},
	}

	cursor, err := s.posts.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: posts missing embeddings: %w", err)
	}
	var docs []struct {
		ID int64 `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

var _ Store = (*MongoStore)(nil)
