// Package catalog manages menu items. Reads are open to everyone; writes are
// admin-only.
package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"

	"quickeats/gorest/models"
)

type Repository interface {
	InsertMenuItem(ctx context.Context, item *models.MenuItem) error
	FindMenuItem(ctx context.Context, id primitive.ObjectID) (*models.MenuItem, error)
	ListMenuItems(ctx context.Context, filter models.MenuFilter) ([]models.MenuItem, error)
	UpdateMenuItem(ctx context.Context, id primitive.ObjectID, patch models.MenuItemPatch, at time.Time) (*models.MenuItem, error)
	DeleteMenuItem(ctx context.Context, id primitive.ObjectID) error
}

// Cache is a JSON cache; Get returns an error on a miss.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// ImageStore keeps uploaded image bytes and hands back a reference.
type ImageStore interface {
	Save(ctx context.Context, filename string, r io.Reader) (string, error)
	Remove(ctx context.Context, ref string) error
}

// Image is an uploaded file attached to a create or update.
type Image struct {
	Filename string
	Body     io.Reader
}

type Service struct {
	repo   Repository
	cache  Cache
	images ImageStore
	log    *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, cache Cache, images ImageStore, log *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, images: images, log: log, now: time.Now}
}

const cachePrefix = "menu:"

func cacheKey(c models.Category) string {
	if c == "" {
		return cachePrefix + "all"
	}
	return cachePrefix + string(c)
}

// ListAvailable returns the items customers may order, optionally limited to
// one category.
func (s *Service) ListAvailable(ctx context.Context, category string) ([]models.MenuItem, error) {
	ctx, span := otel.Tracer("catalog").Start(ctx, "ListAvailable")
	defer span.End()

	var cat models.Category
	if category != "" {
		var ok bool
		if cat, ok = models.ParseCategory(category); !ok {
			return nil, models.NewValidationError("category", fmt.Sprintf("unknown category %q", category))
		}
	}

	key := cacheKey(cat)
	if s.cache != nil {
		var items []models.MenuItem
		if err := s.cache.Get(ctx, key, &items); err == nil {
			return items, nil
		}
	}

	items, err := s.repo.ListMenuItems(ctx, models.MenuFilter{Category: cat, AvailableOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list menu: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, items); err != nil {
			s.log.Warn("failed to cache menu", "key", key, "error", err)
		}
	}
	return items, nil
}

// ListAll includes unavailable items, for the admin console.
func (s *Service) ListAll(ctx context.Context, role models.Role) ([]models.MenuItem, error) {
	if !role.IsAdmin() {
		return nil, models.ErrForbidden
	}
	return s.repo.ListMenuItems(ctx, models.MenuFilter{})
}

func (s *Service) Get(ctx context.Context, id primitive.ObjectID) (*models.MenuItem, error) {
	return s.repo.FindMenuItem(ctx, id)
}

// Create stores a new menu item. New items are available and rated 4.5 unless
// the caller says otherwise.
func (s *Service) Create(ctx context.Context, item models.MenuItem, image *Image, role models.Role) (*models.MenuItem, error) {
	ctx, span := otel.Tracer("catalog").Start(ctx, "Create")
	defer span.End()

	if !role.IsAdmin() {
		return nil, models.ErrForbidden
	}

	item.Name = strings.TrimSpace(item.Name)
	if item.Name == "" {
		return nil, models.NewValidationError("name", "is required")
	}
	if err := validatePrice(item.Price); err != nil {
		return nil, err
	}
	if err := validateCategory(item.Category); err != nil {
		return nil, err
	}
	item.Category = models.Category(strings.ToLower(string(item.Category)))
	if item.Rating == 0 {
		item.Rating = models.DefaultRating
	}

	if image != nil {
		ref, err := s.images.Save(ctx, image.Filename, image.Body)
		if err != nil {
			return nil, fmt.Errorf("store image: %w", err)
		}
		item.Image = ref
	}

	now := s.now()
	item.ID = primitive.NilObjectID
	item.CreatedAt = now
	item.UpdatedAt = now
	if err := s.repo.InsertMenuItem(ctx, &item); err != nil {
		s.discardImage(ctx, item.Image, image)
		return nil, err
	}
	s.invalidate(ctx)
	return &item, nil
}

func (s *Service) Update(ctx context.Context, id primitive.ObjectID, patch models.MenuItemPatch, image *Image, role models.Role) (*models.MenuItem, error) {
	ctx, span := otel.Tracer("catalog").Start(ctx, "Update")
	defer span.End()

	if !role.IsAdmin() {
		return nil, models.ErrForbidden
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, models.NewValidationError("name", "must not be empty")
		}
		patch.Name = &name
	}
	if patch.Price != nil {
		if err := validatePrice(*patch.Price); err != nil {
			return nil, err
		}
	}
	if patch.Category != nil {
		if err := validateCategory(*patch.Category); err != nil {
			return nil, err
		}
		c := models.Category(strings.ToLower(string(*patch.Category)))
		patch.Category = &c
	}
	if image != nil {
		ref, err := s.images.Save(ctx, image.Filename, image.Body)
		if err != nil {
			return nil, fmt.Errorf("store image: %w", err)
		}
		patch.Image = &ref
	}

	item, err := s.repo.UpdateMenuItem(ctx, id, patch, s.now())
	if err != nil {
		if patch.Image != nil {
			s.discardImage(ctx, *patch.Image, image)
		}
		return nil, err
	}
	s.invalidate(ctx)
	return item, nil
}

func (s *Service) Delete(ctx context.Context, id primitive.ObjectID, role models.Role) error {
	if !role.IsAdmin() {
		return models.ErrForbidden
	}
	if err := s.repo.DeleteMenuItem(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// discardImage removes an upload whose menu write failed.
func (s *Service) discardImage(ctx context.Context, ref string, uploaded *Image) {
	if uploaded == nil || ref == "" {
		return
	}
	if err := s.images.Remove(context.WithoutCancel(ctx), ref); err != nil {
		s.log.Warn("failed to remove orphaned image", "image", ref, "error", err)
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, cachePrefix+"*"); err != nil {
		s.log.Warn("failed to invalidate menu cache", "error", err)
	}
}

func validatePrice(p float64) error {
	if p <= 0 {
		return models.NewValidationError("price", "must be greater than zero")
	}
	return nil
}

func validateCategory(c models.Category) error {
	if _, ok := models.ParseCategory(string(c)); !ok {
		return models.NewValidationError("category", fmt.Sprintf("must be one of %v", models.Categories))
	}
	return nil
}
