package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"quickeats/gorest/models"
)

func (m *Mongo) CreateUser(ctx context.Context, user *models.User) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	if _, err := m.Users.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (m *Mongo) FindUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return m.findUser(ctx, bson.M{"_id": id})
}

func (m *Mongo) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.findUser(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))})
}

func (m *Mongo) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	return retryRead(ctx, func(ctx context.Context) (*models.User, error) {
		var user models.User
		if err := m.Users.FindOne(ctx, filter).Decode(&user); err != nil {
			return nil, notFound(err)
		}
		return &user, nil
	})
}

func (m *Mongo) UpdateUser(ctx context.Context, id primitive.ObjectID, patch models.ProfileUpdate, at time.Time) (*models.User, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	set := bson.M{"updatedAt": at}
	if patch.FullName != nil {
		set["fullName"] = *patch.FullName
	}
	if patch.Phone != nil {
		set["phone"] = *patch.Phone
	}
	if patch.FoodPreference != nil {
		set["foodPreference"] = *patch.FoodPreference
	}

	var user models.User
	err := m.Users.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&user)
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// DeleteUser removes the account only; orders keep their userId for history.
func (m *Mongo) DeleteUser(ctx context.Context, id primitive.ObjectID) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	res, err := m.Users.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if res.DeletedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (m *Mongo) ListUsersByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	return retryRead(ctx, func(ctx context.Context) ([]models.User, error) {
		cursor, err := m.Users.Find(ctx, bson.M{"role": role}, newestFirst)
		if err != nil {
			return nil, err
		}
		users := []models.User{}
		if err := cursor.All(ctx, &users); err != nil {
			return nil, err
		}
		return users, nil
	})
}
