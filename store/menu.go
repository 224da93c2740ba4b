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

func (m *Mongo) InsertMenuItem(ctx context.Context, item *models.MenuItem) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	if item.ID.IsZero() {
		item.ID = primitive.NewObjectID()
	}
	if _, err := m.Menu.InsertOne(ctx, item); err != nil {
		return fmt.Errorf("insert menu item: %w", err)
	}
	return nil
}

func (m *Mongo) FindMenuItem(ctx context.Context, id primitive.ObjectID) (*models.MenuItem, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	return retryRead(ctx, func(ctx context.Context) (*models.MenuItem, error) {
		var item models.MenuItem
		if err := m.Menu.FindOne(ctx, bson.M{"_id": id}).Decode(&item); err != nil {
			return nil, notFound(err)
		}
		return &item, nil
	})
}

func (m *Mongo) ListMenuItems(ctx context.Context, filter models.MenuFilter) ([]models.MenuItem, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	query := bson.M{}
	if filter.AvailableOnly {
		query["isAvailable"] = true
	}
	if filter.Category != "" {
		query["category"] = filter.Category
	}

	return retryRead(ctx, func(ctx context.Context) ([]models.MenuItem, error) {
		cursor, err := m.Menu.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "category", Value: 1}, {Key: "name", Value: 1}}))
		if err != nil {
			return nil, err
		}
		items := []models.MenuItem{}
		if err := cursor.All(ctx, &items); err != nil {
			return nil, err
		}
		return items, nil
	})
}

func (m *Mongo) UpdateMenuItem(ctx context.Context, id primitive.ObjectID, patch models.MenuItemPatch, at time.Time) (*models.MenuItem, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var item models.MenuItem
	err := m.Menu.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": menuPatchDoc(patch, at)},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&item)
	if err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

func (m *Mongo) DeleteMenuItem(ctx context.Context, id primitive.ObjectID) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	res, err := m.Menu.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete menu item: %w", err)
	}
	if res.DeletedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func menuPatchDoc(p models.MenuItemPatch, at time.Time) bson.M {
	set := bson.M{"updatedAt": at}
	if p.Name != nil {
		set["name"] = *p.Name
	}
	if p.Description != nil {
		set["description"] = *p.Description
	}
	if p.Price != nil {
		set["price"] = *p.Price
	}
	if p.Category != nil {
		set["category"] = *p.Category
	}
	if p.Image != nil {
		set["image"] = *p.Image
	}
	if p.Rating != nil {
		set["rating"] = *p.Rating
	}
	if p.IsAvailable != nil {
		set["isAvailable"] = *p.IsAvailable
	}
	return set
}
