package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"quickeats/gorest/models"
)

// Memory is an in-process stand-in for Mongo, used by tests and by
// STORE_BACKEND=memory. It keeps the same not-found, duplicate-email and
// version-conflict semantics.
type Memory struct {
	mu     sync.RWMutex
	seq    int64
	users  map[primitive.ObjectID]models.User
	menu   map[primitive.ObjectID]models.MenuItem
	orders map[primitive.ObjectID]memOrder

	// FailInsertOrder, when set, makes InsertOrder fail without storing anything.
	FailInsertOrder error
}

type memOrder struct {
	order models.Order
	seq   int64
}

func NewMemory() *Memory {
	return &Memory{
		users:  map[primitive.ObjectID]models.User{},
		menu:   map[primitive.ObjectID]models.MenuItem{},
		orders: map[primitive.ObjectID]memOrder{},
	}
}

func (s *Memory) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	for _, u := range s.users {
		if u.Email == user.Email {
			return models.ErrEmailTaken
		}
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	s.users[user.ID] = *user
	return nil
}

func (s *Memory) FindUserByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &u, nil
}

func (s *Memory) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *Memory) UpdateUser(_ context.Context, id primitive.ObjectID, patch models.ProfileUpdate, at time.Time) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if patch.FullName != nil {
		u.FullName = *patch.FullName
	}
	if patch.Phone != nil {
		u.Phone = *patch.Phone
	}
	if patch.FoodPreference != nil {
		u.FoodPreference = *patch.FoodPreference
	}
	u.UpdatedAt = at
	s.users[id] = u
	return &u, nil
}

func (s *Memory) DeleteUser(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return models.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *Memory) ListUsersByRole(_ context.Context, role models.Role) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := []models.User{}
	for _, u := range s.users {
		if u.Role == role {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.After(users[j].CreatedAt) })
	return users, nil
}

func (s *Memory) InsertMenuItem(_ context.Context, item *models.MenuItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID.IsZero() {
		item.ID = primitive.NewObjectID()
	}
	s.menu[item.ID] = *item
	return nil
}

func (s *Memory) FindMenuItem(_ context.Context, id primitive.ObjectID) (*models.MenuItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.menu[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &item, nil
}

func (s *Memory) ListMenuItems(_ context.Context, filter models.MenuFilter) ([]models.MenuItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := []models.MenuItem{}
	for _, item := range s.menu {
		if filter.AvailableOnly && !item.IsAvailable {
			continue
		}
		if filter.Category != "" && item.Category != filter.Category {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Category != items[j].Category {
			return items[i].Category < items[j].Category
		}
		return items[i].Name < items[j].Name
	})
	return items, nil
}

func (s *Memory) UpdateMenuItem(_ context.Context, id primitive.ObjectID, p models.MenuItemPatch, at time.Time) (*models.MenuItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.menu[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if p.Name != nil {
		item.Name = *p.Name
	}
	if p.Description != nil {
		item.Description = *p.Description
	}
	if p.Price != nil {
		item.Price = *p.Price
	}
	if p.Category != nil {
		item.Category = *p.Category
	}
	if p.Image != nil {
		item.Image = *p.Image
	}
	if p.Rating != nil {
		item.Rating = *p.Rating
	}
	if p.IsAvailable != nil {
		item.IsAvailable = *p.IsAvailable
	}
	item.UpdatedAt = at
	s.menu[id] = item
	return &item, nil
}

func (s *Memory) DeleteMenuItem(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.menu[id]; !ok {
		return models.ErrNotFound
	}
	delete(s.menu, id)
	return nil
}

func (s *Memory) InsertOrder(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailInsertOrder != nil {
		return s.FailInsertOrder
	}
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	s.seq++
	s.orders[order.ID] = memOrder{order: cloneOrder(*order), seq: s.seq}
	return nil
}

func (s *Memory) FindOrder(_ context.Context, id primitive.ObjectID) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	order := cloneOrder(o.order)
	return &order, nil
}

func (s *Memory) ListOrders(_ context.Context, filter models.OrderFilter) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := []memOrder{}
	for _, o := range s.orders {
		if filter.UserID != nil && o.order.UserID != *filter.UserID {
			continue
		}
		if filter.Status != "" && o.order.Status != filter.Status {
			continue
		}
		matched = append(matched, o)
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.order.CreatedAt.Equal(b.order.CreatedAt) {
			return a.order.CreatedAt.After(b.order.CreatedAt)
		}
		return a.seq > b.seq
	})

	orders := make([]models.Order, 0, len(matched))
	for _, o := range matched {
		orders = append(orders, cloneOrder(o.order))
	}
	return orders, nil
}

func (s *Memory) UpdateOrderStatus(_ context.Context, id primitive.ObjectID, from models.OrderStatus, version int64, to models.OrderStatus, at time.Time) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if o.order.Status != from || o.order.Version != version {
		return nil, models.ErrConflict
	}
	o.order.Status = to
	o.order.UpdatedAt = at
	o.order.Version++
	s.orders[id] = o

	order := cloneOrder(o.order)
	return &order, nil
}

// OrderCount is a test helper.
func (s *Memory) OrderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

func cloneOrder(o models.Order) models.Order {
	o.Items = append([]models.OrderLine(nil), o.Items...)
	return o
}
