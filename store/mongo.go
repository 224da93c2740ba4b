// Package store persists users, menu items and orders.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"quickeats/gorest/models"
)

const (
	UsersCollection  = "users"
	MenuCollection   = "menuitems"
	OrdersCollection = "orders"
)

// Mongo implements the user, menu and order repositories on MongoDB.
type Mongo struct {
	Users   *mongo.Collection
	Menu    *mongo.Collection
	Orders  *mongo.Collection
	timeout time.Duration
}

func NewMongo(db *mongo.Database, timeout time.Duration) *Mongo {
	return &Mongo{
		Users:   db.Collection(UsersCollection),
		Menu:    db.Collection(MenuCollection),
		Orders:  db.Collection(OrdersCollection),
		timeout: timeout,
	}
}

// EnsureIndexes creates the unique email index and the order listing indexes.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	_, err := m.Users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}
	_, err = m.Orders.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return err
	}
	_, err = m.Menu.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "isAvailable", Value: 1}, {Key: "category", Value: 1}},
	})
	return err
}

func (m *Mongo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.timeout)
}

var newestFirst = options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})

// retryRead retries fn on transient driver errors. Writes never go through here:
// a retried insert would duplicate an order.
func retryRead[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxElapsedTime = 2 * time.Second

	err := backoff.Retry(func() error {
		v, err := fn(ctx)
		if err != nil {
			if isTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		out = v
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(policy, 3), ctx))
	return out, err
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return mongo.IsNetworkError(err) || mongo.IsTimeout(err)
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.ErrNotFound
	}
	return err
}
