package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"quickeats/gorest/models"
)

// InsertOrder writes the complete order as one document, so it is either
// stored whole or not at all.
func (m *Mongo) InsertOrder(ctx context.Context, order *models.Order) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	if _, err := m.Orders.InsertOne(ctx, order); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (m *Mongo) FindOrder(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	return retryRead(ctx, func(ctx context.Context) (*models.Order, error) {
		var order models.Order
		if err := m.Orders.FindOne(ctx, bson.M{"_id": id}).Decode(&order); err != nil {
			return nil, notFound(err)
		}
		return &order, nil
	})
}

func (m *Mongo) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	query := bson.M{}
	if filter.UserID != nil {
		query["userId"] = *filter.UserID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}

	return retryRead(ctx, func(ctx context.Context) ([]models.Order, error) {
		cursor, err := m.Orders.Find(ctx, query, newestFirst)
		if err != nil {
			return nil, err
		}
		orders := []models.Order{}
		if err := cursor.All(ctx, &orders); err != nil {
			return nil, err
		}
		return orders, nil
	})
}

// UpdateOrderStatus moves an order from one status to another only if it is
// still at the given status and version. A lost race yields models.ErrConflict.
func (m *Mongo) UpdateOrderStatus(ctx context.Context, id primitive.ObjectID, from models.OrderStatus, version int64, to models.OrderStatus, at time.Time) (*models.Order, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	filter := bson.M{"_id": id, "status": from, "version": version}
	update := bson.M{
		"$set": bson.M{"status": to, "updatedAt": at},
		"$inc": bson.M{"version": 1},
	}

	var order models.Order
	err := m.Orders.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&order)
	if err == nil {
		return &order, nil
	}
	if err = notFound(err); err != models.ErrNotFound {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	n, err := m.Orders.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	if n == 0 {
		return nil, models.ErrNotFound
	}
	return nil, models.ErrConflict
}
