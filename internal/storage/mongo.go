package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/markbook/internal/types"
)

// MongoStore keeps bookmarks in a MongoDB collection keyed by tweet_id.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *slog.Logger
}

type mongoBookmark struct {
	TweetID      string    `bson:"tweet_id"`
	URL          string    `bson:"url"`
	Text         string    `bson:"text"`
	AuthorName   *string   `bson:"author_name"`
	AuthorHandle *string   `bson:"author_handle"`
	CreatedAt    *string   `bson:"created_at"`
	MediaURLs    []string  `bson:"media_urls"`
	LikeCount    int       `bson:"like_count"`
	RetweetCount int       `bson:"retweet_count"`
	ReplyCount   int       `bson:"reply_count"`
	Category     *string   `bson:"category"`
	IngestedAt   time.Time `bson:"ingested_at"`
}

// OpenMongo connects to uri and ensures the tweet_id index exists.
func OpenMongo(ctx context.Context, uri, database, collection string, logger *slog.Logger) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	coll := client.Database(database).Collection(collection)
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "tweet_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "author_handle", Value: 1}}},
		{Keys: bson.D{{Key: "category", Value: 1}}},
	}
	if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb indexes: %w", err)
	}

	s := &MongoStore{
		client:     client,
		collection: coll,
		logger:     logger.With("component", "mongo_store"),
	}
	s.logger.Info("mongodb store opened", "database", database, "collection", collection)
	return s, nil
}

func (s *MongoStore) Name() string { return "mongodb" }

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Upsert(ctx context.Context, records []types.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	models := make([]mongo.WriteModel, 0, len(records))
	for _, rec := range records {
		if rec.ID == "" {
			return 0, s.wrap(errors.New("tweet_id is required"))
		}
		media := rec.MediaURLs
		if media == nil {
			media = []string{}
		}
		update := bson.M{
			"$set": bson.M{
				"text":          rec.Text,
				"author_name":   rec.AuthorName,
				"like_count":    rec.LikeCount,
				"retweet_count": rec.RetweetCount,
				"reply_count":   rec.ReplyCount,
				"ingested_at":   now,
			},
			"$setOnInsert": bson.M{
				"url":           rec.URL,
				"author_handle": rec.AuthorHandle,
				"created_at":    rec.CreatedAt,
				"media_urls":    media,
				"category":      nil,
			},
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"tweet_id": rec.ID}).
			SetUpdate(update).
			SetUpsert(true))
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	res, err := s.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, s.wrap(fmt.Errorf("bulk upsert: %w", err))
	}

	s.logger.Debug("bookmarks upserted",
		"count", len(records),
		"inserted", res.UpsertedCount,
		"updated", res.ModifiedCount,
	)
	return len(records), nil
}

func (s *MongoStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{
		TopAuthors: []AuthorCount{},
		Categories: []CategoryCount{},
	}

	total, err := s.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, s.wrap(fmt.Errorf("count bookmarks: %w", err))
	}
	st.Total = int(total)

	handles, err := s.collection.Distinct(ctx, "author_handle", bson.M{"author_handle": bson.M{"$ne": nil}})
	if err != nil {
		return nil, s.wrap(fmt.Errorf("distinct authors: %w", err))
	}
	st.Authors = len(handles)

	uncategorized, err := s.collection.CountDocuments(ctx, bson.M{"category": nil})
	if err != nil {
		return nil, s.wrap(fmt.Errorf("count uncategorized: %w", err))
	}
	st.Uncategorized = int(uncategorized)

	var span []struct {
		Earliest *string `bson:"earliest"`
		Latest   *string `bson:"latest"`
	}
	if err := s.aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":      nil,
			"earliest": bson.M{"$min": "$created_at"},
			"latest":   bson.M{"$max": "$created_at"},
		}}},
	}, &span); err != nil {
		return nil, s.wrap(fmt.Errorf("date range: %w", err))
	}
	if len(span) > 0 {
		st.Earliest = span[0].Earliest
		st.Latest = span[0].Latest
	}

	var authors []struct {
		Handle *string `bson:"_id"`
		Name   *string `bson:"author_name"`
		Count  int     `bson:"count"`
	}
	if err := s.aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":         "$author_handle",
			"author_name": bson.M{"$first": "$author_name"},
			"count":       bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: topAuthorLimit}},
	}, &authors); err != nil {
		return nil, s.wrap(fmt.Errorf("top authors: %w", err))
	}
	for _, a := range authors {
		st.TopAuthors = append(st.TopAuthors, AuthorCount{Handle: a.Handle, Name: a.Name, Count: a.Count})
	}

	var cats []struct {
		Category string `bson:"_id"`
		Count    int    `bson:"count"`
	}
	if err := s.aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"category": bson.M{"$ne": nil}}}},
		{{Key: "$group", Value: bson.M{"_id": "$category", "count": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
	}, &cats); err != nil {
		return nil, s.wrap(fmt.Errorf("categories: %w", err))
	}
	for _, c := range cats {
		st.Categories = append(st.Categories, CategoryCount{Category: c.Category, Count: c.Count})
	}

	return st, nil
}

func (s *MongoStore) aggregate(ctx context.Context, pipeline mongo.Pipeline, out any) error {
	cur, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return err
	}
	return cur.All(ctx, out)
}

func (s *MongoStore) Uncategorized(ctx context.Context, limit int) ([]Bookmark, error) {
	opts := options.Find().SetSort(bson.D{{Key: "ingested_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.collection.Find(ctx, bson.M{"category": nil}, opts)
	if err != nil {
		return nil, s.wrap(fmt.Errorf("find uncategorized: %w", err))
	}

	var docs []mongoBookmark
	if err := cur.All(ctx, &docs); err != nil {
		return nil, s.wrap(fmt.Errorf("decode uncategorized: %w", err))
	}
	return toBookmarks(docs), nil
}

var mongoOrder = map[Sort]bson.D{
	SortNewest:    {{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}},
	SortOldest:    {{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}},
	SortLiked:     {{Key: "like_count", Value: -1}, {Key: "_id", Value: -1}},
	SortRetweeted: {{Key: "retweet_count", Value: -1}, {Key: "_id", Value: -1}},
	SortDiscussed: {{Key: "reply_count", Value: -1}, {Key: "_id", Value: -1}},
}

func (s *MongoStore) Search(ctx context.Context, q Query) ([]Bookmark, error) {
	q, err := q.normalize()
	if err != nil {
		return nil, s.wrap(err)
	}

	filter := bson.M{}
	if q.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(q.Search), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"text": pattern},
			bson.M{"author_name": pattern},
			bson.M{"author_handle": pattern},
		}
	}
	if q.Author != "" {
		filter["author_handle"] = q.Author
	}
	if q.Category != "" {
		filter["category"] = q.Category
	}

	opts := options.Find().SetSort(mongoOrder[q.Sort])
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	cur, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, s.wrap(fmt.Errorf("search bookmarks: %w", err))
	}

	var docs []mongoBookmark
	if err := cur.All(ctx, &docs); err != nil {
		return nil, s.wrap(fmt.Errorf("decode bookmarks: %w", err))
	}
	return toBookmarks(docs), nil
}

func (s *MongoStore) Delete(ctx context.Context, tweetID string) (bool, error) {
	res, err := s.collection.DeleteOne(ctx, bson.M{"tweet_id": tweetID})
	if err != nil {
		return false, s.wrap(fmt.Errorf("delete %s: %w", tweetID, err))
	}
	if res.DeletedCount > 0 {
		s.logger.Info("bookmark deleted", "tweet_id", tweetID)
	}
	return res.DeletedCount > 0, nil
}

func toBookmarks(docs []mongoBookmark) []Bookmark {
	out := make([]Bookmark, 0, len(docs))
	for _, d := range docs {
		media := d.MediaURLs
		if media == nil {
			media = []string{}
		}
		out = append(out, Bookmark{
			Record: types.Record{
				ID:           d.TweetID,
				URL:          d.URL,
				Text:         d.Text,
				AuthorName:   d.AuthorName,
				AuthorHandle: d.AuthorHandle,
				CreatedAt:    d.CreatedAt,
				MediaURLs:    media,
				LikeCount:    d.LikeCount,
				RetweetCount: d.RetweetCount,
				ReplyCount:   d.ReplyCount,
			},
			Category:   d.Category,
			IngestedAt: d.IngestedAt,
		})
	}
	return out
}

func (s *MongoStore) SetCategories(ctx context.Context, categories map[string]string) (int, error) {
	if len(categories) == 0 {
		return 0, nil
	}

	models := make([]mongo.WriteModel, 0, len(categories))
	for id, category := range categories {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"tweet_id": id}).
			SetUpdate(bson.M{"$set": bson.M{"category": category}}))
	}

	res, err := s.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, s.wrap(fmt.Errorf("set categories: %w", err))
	}
	return int(res.MatchedCount), nil
}

func (s *MongoStore) wrap(err error) error {
	return &types.StorageError{Backend: "mongodb", Err: err}
}
