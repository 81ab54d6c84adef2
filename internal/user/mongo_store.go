package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	defaultMongoDatabase = "shelfshare"
	mongoCollection      = "users"
)

// MongoStore keeps users in a MongoDB collection with a unique index on email.
type MongoStore struct {
	client *mongo.Client
	users  *mongo.Collection
}

type mongoUser struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password_hash"`
	CreatedAt    time.Time `bson:"created_at"`
}

// NewMongoStore binds the store to a database and ensures the email index.
func NewMongoStore(ctx context.Context, client *mongo.Client, database string) (*MongoStore, error) {
	if database == "" {
		database = defaultMongoDatabase
	}
	users := client.Database(database).Collection(mongoCollection)

	_, err := users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("email_unique"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create email index: %w", err)
	}

	return &MongoStore{client: client, users: users}, nil
}

func (s *MongoStore) Insert(ctx context.Context, u *User) (*User, error) {
	record := *u
	record.Email = NormalizeEmail(record.Email)

	if _, err := s.users.InsertOne(ctx, toMongoUser(&record)); err != nil {
		return nil, mongoInsertError(err)
	}

	return &record, nil
}

// mongoInsertError maps a unique index violation to ErrAlreadyExists and
// anything else to ErrUnavailable.
func mongoInsertError(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return ErrAlreadyExists
	}
	return unavailable("create user", err)
}

func (s *MongoStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	var doc mongoUser
	err := s.users.FindOne(ctx, bson.D{{Key: "email", Value: NormalizeEmail(email)}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, unavailable("get user by email", err)
	}

	return fromMongoUser(&doc)
}

func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return unavailable("ping mongodb", err)
	}
	return nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func toMongoUser(u *User) mongoUser {
	return mongoUser{
		ID:           u.ID.String(),
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}
}

func fromMongoUser(doc *mongoUser) (*User, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse user ID: %w", err)
	}
	return &User{
		ID:           id,
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
		CreatedAt:    doc.CreatedAt,
	}, nil
}
