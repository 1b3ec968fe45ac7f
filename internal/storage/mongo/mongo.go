package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"revenue/internal/core"
	"revenue/internal/storage"
)

const (
	UserCollection         = "users"
	RevokedTokenCollection = "revoked_tokens"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ storage.Store = (*Store)(nil)

type entryDoc struct {
	ID          string    `bson:"_id"`
	OwnerID     string    `bson:"owner_id"`
	AmountCents int64     `bson:"amount_cents"`
	Description string    `bson:"description"`
	Date        any       `bson:"date"` // string, or a BSON datetime written by other clients
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

type userDoc struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	Name         string    `bson:"name"`
	PasswordHash string    `bson:"password_hash"`
	CreatedAt    time.Time `bson:"created_at"`
}

// Connect dials uri, pings the server and makes sure the indexes exist.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	s := New(client, database)
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	slog.InfoContext(ctx, "Connected to MongoDB", "database", database)
	return s, nil
}

func New(client *mongo.Client, database string) *Store {
	return &Store{client: client, db: client.Database(database)}
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	for _, kind := range []core.Kind{core.Income, core.Expense} {
		_, err := s.db.Collection(kind.Collection()).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: "owner_id", Value: 1}},
		})
		if err != nil {
			return fmt.Errorf("create %s owner index: %w", kind.Collection(), err)
		}
	}

	_, err := s.db.Collection(UserCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create users email index: %w", err)
	}

	_, err = s.db.Collection(RevokedTokenCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return fmt.Errorf("create revoked tokens ttl index: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) entries(kind core.Kind) (*mongo.Collection, error) {
	if !kind.Valid() {
		return nil, core.ErrInvalidKind
	}
	return s.db.Collection(kind.Collection()), nil
}

func ownedBy(ownerID, id string) bson.M {
	return bson.M{"_id": id, "owner_id": ownerID}
}

func (s *Store) Insert(ctx context.Context, e core.Entry) (core.Entry, error) {
	coll, err := s.entries(e.Kind)
	if err != nil {
		return core.Entry{}, err
	}

	// BSON datetimes carry millisecond precision
	now := time.Now().UTC().Truncate(time.Millisecond)
	e.ID = uuid.NewString()
	e.CreatedAt = now
	e.UpdatedAt = now

	if _, err := coll.InsertOne(ctx, toEntryDoc(e)); err != nil {
		return core.Entry{}, fmt.Errorf("insert %s: %w", e.Kind, err)
	}
	return e, nil
}

func (s *Store) FindByOwner(ctx context.Context, kind core.Kind, ownerID string) ([]core.Entry, error) {
	coll, err := s.entries(kind)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := coll.Find(ctx, bson.M{"owner_id": ownerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find %s by owner: %w", kind, err)
	}

	var docs []entryDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}

	entries := make([]core.Entry, 0, len(docs))
	for _, d := range docs {
		entries = append(entries, d.toEntry(kind))
	}
	return entries, nil
}

func (s *Store) Get(ctx context.Context, kind core.Kind, ownerID, id string) (core.Entry, error) {
	coll, err := s.entries(kind)
	if err != nil {
		return core.Entry{}, err
	}

	var d entryDoc
	err = coll.FindOne(ctx, ownedBy(ownerID, id)).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.Entry{}, storage.ErrNotFound
	}
	if err != nil {
		return core.Entry{}, fmt.Errorf("get %s: %w", kind, err)
	}
	return d.toEntry(kind), nil
}

func (s *Store) Replace(ctx context.Context, e core.Entry) (core.Entry, error) {
	coll, err := s.entries(e.Kind)
	if err != nil {
		return core.Entry{}, err
	}

	update := bson.M{"$set": bson.M{
		"amount_cents": e.Amount.Cents,
		"description":  e.Description,
		"date":         e.Date,
		"updated_at":   time.Now().UTC().Truncate(time.Millisecond),
	}}
	res, err := coll.UpdateOne(ctx, ownedBy(e.OwnerID, e.ID), update)
	if err != nil {
		return core.Entry{}, fmt.Errorf("update %s: %w", e.Kind, err)
	}
	if res.MatchedCount == 0 {
		return core.Entry{}, storage.ErrNotFound
	}
	return s.Get(ctx, e.Kind, e.OwnerID, e.ID)
}

func (s *Store) Delete(ctx context.Context, kind core.Kind, ownerID, id string) error {
	coll, err := s.entries(kind)
	if err != nil {
		return err
	}

	res, err := coll.DeleteOne(ctx, ownedBy(ownerID, id))
	if err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}
	if res.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, u core.User) error {
	_, err := s.db.Collection(UserCollection).InsertOne(ctx, userDoc{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt.UTC(),
	})
	if mongo.IsDuplicateKeyError(err) {
		return storage.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (core.User, error) {
	return s.user(ctx, bson.M{"email": email})
}

func (s *Store) UserByID(ctx context.Context, id string) (core.User, error) {
	return s.user(ctx, bson.M{"_id": id})
}

func (s *Store) user(ctx context.Context, filter bson.M) (core.User, error) {
	var d userDoc
	err := s.db.Collection(UserCollection).FindOne(ctx, filter).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.User{}, storage.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return core.User{
		ID:           d.ID,
		Email:        d.Email,
		Name:         d.Name,
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt,
	}, nil
}

func (s *Store) UpdateUserName(ctx context.Context, id, name string) error {
	res, err := s.db.Collection(UserCollection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"name": name}})
	if err != nil {
		return fmt.Errorf("update user name: %w", err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// RevokeToken relies on the TTL index on expires_at to purge old tokens.
func (s *Store) RevokeToken(ctx context.Context, tokenID string, expiresAt time.Time) error {
	_, err := s.db.Collection(RevokedTokenCollection).UpdateOne(ctx,
		bson.M{"_id": tokenID},
		bson.M{"$set": bson.M{"expires_at": expiresAt.UTC()}},
		options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *Store) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.db.Collection(RevokedTokenCollection).CountDocuments(ctx, bson.M{"_id": tokenID})
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return n > 0, nil
}

func toEntryDoc(e core.Entry) entryDoc {
	return entryDoc{
		ID:          e.ID,
		OwnerID:     e.OwnerID,
		AmountCents: e.Amount.Cents,
		Description: e.Description,
		Date:        e.Date,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func (d entryDoc) toEntry(kind core.Kind) core.Entry {
	return core.Entry{
		ID:          d.ID,
		Kind:        kind,
		Amount:      core.Money{Cents: d.AmountCents},
		Description: d.Description,
		Date:        dateString(d.Date),
		OwnerID:     d.OwnerID,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// dateString flattens the stored date to a calendar date string.
func dateString(v any) string {
	switch d := v.(type) {
	case string:
		return core.NormalizeDate(d)
	case bson.DateTime:
		return d.Time().UTC().Format(core.DateLayout)
	case time.Time:
		return d.UTC().Format(core.DateLayout)
	case nil:
		return ""
	default:
		return fmt.Sprint(d)
	}
}
