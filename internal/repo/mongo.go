package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pkordes/tripmate/internal/domain"
)

// StateCollection is the MongoDB collection holding trip documents.
const StateCollection = "trip_state"

// mongoState is the stored shape. The trip document is kept as its JSON
// encoding so decimal amounts survive the round trip exactly.
type mongoState struct {
	Key       string    `bson:"_id"`
	State     string    `bson:"state"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// mongoStateRepo is the MongoDB implementation of StateRepo.
type mongoStateRepo struct {
	coll *mongo.Collection
}

// NewMongoStateRepo constructs a StateRepo backed by a MongoDB collection.
func NewMongoStateRepo(coll *mongo.Collection) StateRepo {
	return &mongoStateRepo{coll: coll}
}

// ConnectMongo opens a client for uri and verifies it with a ping.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("repo.ConnectMongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("repo.ConnectMongo: ping: %w", err)
	}
	return client, nil
}

func (r *mongoStateRepo) Get(ctx context.Context, key string) (domain.Document, error) {
	var row mongoState
	err := r.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&row)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Document{}, fmt.Errorf("repo.MongoStateRepo.Get: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.Document{}, fmt.Errorf("repo.MongoStateRepo.Get: %w", err)
	}
	doc, err := row.document()
	if err != nil {
		return domain.Document{}, fmt.Errorf("repo.MongoStateRepo.Get: %w", err)
	}
	return doc, nil
}

func (r *mongoStateRepo) Upsert(ctx context.Context, key string, state domain.TripState) (domain.Document, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return domain.Document{}, fmt.Errorf("repo.MongoStateRepo.Upsert: encode: %w", err)
	}
	row := mongoState{
		Key:       key,
		State:     string(raw),
		UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	_, err = r.coll.ReplaceOne(ctx, bson.M{"_id": key}, row, options.Replace().SetUpsert(true))
	if err != nil {
		return domain.Document{}, fmt.Errorf("repo.MongoStateRepo.Upsert: %w", err)
	}
	return domain.Document{Key: key, State: state.Clone(), UpdatedAt: row.UpdatedAt}, nil
}

func (r *mongoStateRepo) Delete(ctx context.Context, key string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": key})
	if err != nil {
		return fmt.Errorf("repo.MongoStateRepo.Delete: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("repo.MongoStateRepo.Delete: %w", domain.ErrNotFound)
	}
	return nil
}

func (m mongoState) document() (domain.Document, error) {
	doc := domain.Document{Key: m.Key, UpdatedAt: m.UpdatedAt}
	if err := json.Unmarshal([]byte(m.State), &doc.State); err != nil {
		return domain.Document{}, fmt.Errorf("decode state: %w", err)
	}
	return doc, nil
}
