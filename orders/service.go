// Package orders turns submitted carts into orders and moves orders through
// their status lifecycle.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"quickeats/gorest/auth"
	"quickeats/gorest/cart"
	"quickeats/gorest/events"
	"quickeats/gorest/models"
)

type Repository interface {
	InsertOrder(ctx context.Context, order *models.Order) error
	FindOrder(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, id primitive.ObjectID, from models.OrderStatus, version int64, to models.OrderStatus, at time.Time) (*models.Order, error)
}

type MenuLookup interface {
	FindMenuItem(ctx context.Context, id primitive.ObjectID) (*models.MenuItem, error)
}

type UserLookup interface {
	FindUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

// Idempotency records which order a checkout key produced. Reserve returns the
// order id of a completed checkout, "" when the caller now owns the key, and
// models.ErrConflict while another checkout holds it.
type Idempotency interface {
	Reserve(ctx context.Context, key string, ttl time.Duration) (string, error)
	Complete(ctx context.Context, key, orderID string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

type Config struct {
	Options           cart.OptionTable
	Tolerance         float64
	IdempotencyWindow time.Duration
}

type Service struct {
	orders    Repository
	menu      MenuLookup
	users     UserLookup
	idem      Idempotency
	events    events.Publisher
	log       *slog.Logger
	options   cart.OptionTable
	tolerance decimal.Decimal
	window    time.Duration
	now       func() time.Time
}

func NewService(orders Repository, menu MenuLookup, users UserLookup, idem Idempotency, pub events.Publisher, log *slog.Logger, cfg Config) *Service {
	if cfg.Options.Bases == nil {
		cfg.Options = cart.DefaultOptions
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 0.01
	}
	if cfg.IdempotencyWindow <= 0 {
		cfg.IdempotencyWindow = 10 * time.Minute
	}
	if pub == nil {
		pub = events.NopPublisher{}
	}
	return &Service{
		orders:    orders,
		menu:      menu,
		users:     users,
		idem:      idem,
		events:    pub,
		log:       log,
		options:   cfg.Options,
		tolerance: decimal.NewFromFloat(cfg.Tolerance),
		window:    cfg.IdempotencyWindow,
		now:       time.Now,
	}
}

// CheckoutRequest is a submitted cart. ClaimedTotal is what the client
// displayed; when present it must agree with the server's total.
type CheckoutRequest struct {
	Identity       auth.Identity
	Lines          []models.CartLine
	ClaimedTotal   *float64
	IdempotencyKey string
}

// Checkout creates a pending order from the submitted lines. Prices come from
// the catalog and the option table, never from the client. The boolean result
// is true when the order was created by an earlier call with the same
// idempotency key.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*models.Order, bool, error) {
	ctx, span := otel.Tracer("orders").Start(ctx, "Checkout")
	defer span.End()

	if len(req.Lines) == 0 {
		return nil, false, models.ErrEmptyCart
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	var idemKey string
	if key != "" && s.idem != nil {
		idemKey = "idem:" + req.Identity.UserID.Hex() + ":" + key
		existing, err := s.idem.Reserve(ctx, idemKey, s.window)
		if err != nil {
			return nil, false, fmt.Errorf("checkout %q: %w", key, err)
		}
		if existing != "" {
			order, err := s.replay(ctx, req.Identity, existing)
			return order, err == nil, err
		}
	}

	order, err := s.build(ctx, req)
	if err == nil {
		order.IdempotencyKey = key
		err = s.orders.InsertOrder(ctx, order)
	}
	if err != nil {
		if idemKey != "" {
			if rerr := s.idem.Release(ctx, idemKey); rerr != nil {
				s.log.Warn("failed to release idempotency key", "key", idemKey, "error", rerr)
			}
		}
		return nil, false, err
	}

	if idemKey != "" {
		if err := s.idem.Complete(ctx, idemKey, order.ID.Hex(), s.window); err != nil {
			s.log.Warn("failed to record idempotency key", "key", idemKey, "order_id", order.ID.Hex(), "error", err)
		}
	}
	span.SetAttributes(attribute.String("order.id", order.ID.Hex()))
	s.log.Info("order placed", "order_id", order.ID.Hex(), "user_id", order.UserID.Hex(), "total", order.TotalAmount, "lines", len(order.Items))
	s.publish(ctx, events.Created(order))
	return order, false, nil
}

func (s *Service) replay(ctx context.Context, id auth.Identity, orderID string) (*models.Order, error) {
	oid, err := primitive.ObjectIDFromHex(orderID)
	if err != nil {
		return nil, fmt.Errorf("idempotency record %q: %w", orderID, err)
	}
	order, err := s.orders.FindOrder(ctx, oid)
	if err != nil {
		return nil, err
	}
	if order.UserID != id.UserID {
		return nil, models.ErrConflict
	}
	return order, nil
}

func (s *Service) build(ctx context.Context, req CheckoutRequest) (*models.Order, error) {
	c := cart.New()
	for i, submitted := range req.Lines {
		line, err := s.resolveLine(ctx, i, submitted)
		if err != nil {
			return nil, err
		}
		if err := c.AddN(line, submitted.Quantity); err != nil {
			var verr *models.ValidationError
			if errors.As(err, &verr) {
				return nil, models.NewValidationError(fmt.Sprintf("items[%d].quantity", i), verr.Reason)
			}
			return nil, err
		}
	}
	if c.IsEmpty() {
		return nil, models.ErrEmptyCart
	}

	total := c.Total().Round(2)
	if req.ClaimedTotal != nil {
		claimed := decimal.NewFromFloat(*req.ClaimedTotal)
		if claimed.Sub(total).Abs().GreaterThan(s.tolerance) {
			return nil, models.NewValidationError("totalAmount",
				fmt.Sprintf("claimed %s but items total %s", claimed.StringFixed(2), total.StringFixed(2)))
		}
	}

	user, err := s.users.FindUserByID(ctx, req.Identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("load customer: %w", err)
	}

	now := s.now()
	lines := c.Lines()
	items := make([]models.OrderLine, 0, len(lines))
	for _, l := range lines {
		items = append(items, models.OrderLine{
			ItemKey:       l.ItemKey,
			Name:          l.Name,
			UnitPrice:     l.UnitPrice,
			Quantity:      l.Quantity,
			Image:         l.Image,
			Customization: l.Customization,
		})
	}
	return &models.Order{
		ID:          primitive.NewObjectID(),
		UserID:      user.ID,
		Items:       items,
		TotalAmount: total.InexactFloat64(),
		Status:      models.StatusPending,
		UserDetails: user.Details(),
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// resolveLine reprices one submitted line. Lines carrying a customization are
// priced from the option table; all others must name an available menu item.
func (s *Service) resolveLine(ctx context.Context, i int, l models.CartLine) (models.CartLine, error) {
	field := fmt.Sprintf("items[%d]", i)
	if l.Customization != nil || strings.HasPrefix(l.ItemKey, "custom:") {
		c, err := s.options.Reprice(l.Customization)
		if err != nil {
			return models.CartLine{}, err
		}
		line := cart.CustomLine(c)
		line.Image = l.Image
		return line, nil
	}

	id, err := primitive.ObjectIDFromHex(l.ItemKey)
	if err != nil {
		return models.CartLine{}, models.NewValidationError(field+".itemKey", fmt.Sprintf("%q is not a menu item id", l.ItemKey))
	}
	item, err := s.menu.FindMenuItem(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return models.CartLine{}, models.NewValidationError(field+".itemKey", fmt.Sprintf("menu item %s does not exist", l.ItemKey))
	}
	if err != nil {
		return models.CartLine{}, fmt.Errorf("load menu item %s: %w", l.ItemKey, err)
	}
	if !item.IsAvailable {
		return models.CartLine{}, models.NewValidationError(field+".itemKey", fmt.Sprintf("%s is not available", item.Name))
	}
	return models.CartLine{
		ItemKey:   item.ID.Hex(),
		Name:      item.Name,
		UnitPrice: item.Price,
		Image:     item.Image,
	}, nil
}

// Transition moves an order to status. Only admins may call it. A non-nil
// expectedVersion must match the stored version.
func (s *Service) Transition(ctx context.Context, id auth.Identity, orderID primitive.ObjectID, status string, expectedVersion *int64) (*models.Order, error) {
	ctx, span := otel.Tracer("orders").Start(ctx, "Transition")
	defer span.End()

	if err := auth.RequireAdmin(id); err != nil {
		return nil, err
	}
	to, ok := models.ParseStatus(status)
	if !ok {
		return nil, models.NewValidationError("status", fmt.Sprintf("unknown status %q", status))
	}

	order, err := s.orders.FindOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if expectedVersion != nil && *expectedVersion != order.Version {
		return nil, fmt.Errorf("order is at version %d, not %d: %w", order.Version, *expectedVersion, models.ErrConflict)
	}
	if err := validateTransition(order.Status, to); err != nil {
		return nil, err
	}
	return s.move(ctx, id, order, to)
}

// Cancel withdraws an order that has not left the kitchen. Owners may cancel
// their own orders; admins may cancel any.
func (s *Service) Cancel(ctx context.Context, id auth.Identity, orderID primitive.ObjectID) (*models.Order, error) {
	ctx, span := otel.Tracer("orders").Start(ctx, "Cancel")
	defer span.End()

	order, err := s.orders.FindOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !id.CanActOn(order.UserID) {
		return nil, models.ErrForbidden
	}
	if !cancellable(order.Status) {
		return nil, fmt.Errorf("order is %s: %w", order.Status, models.ErrCannotCancel)
	}
	return s.move(ctx, id, order, models.StatusCancelled)
}

func (s *Service) move(ctx context.Context, id auth.Identity, order *models.Order, to models.OrderStatus) (*models.Order, error) {
	updated, err := s.orders.UpdateOrderStatus(ctx, order.ID, order.Status, order.Version, to, s.now())
	if err != nil {
		return nil, err
	}
	s.log.Info("order status changed",
		"order_id", updated.ID.Hex(), "from", order.Status, "to", updated.Status,
		"version", updated.Version, "changed_by", id.UserID.Hex())
	s.publish(ctx, events.StatusChanged(updated, order.Status, id.UserID.Hex()))
	return updated, nil
}

func (s *Service) publish(ctx context.Context, e events.OrderEvent) {
	if err := s.events.Publish(ctx, e); err != nil {
		s.log.Warn("failed to publish order event", "type", e.Type, "order_id", e.OrderID, "error", err)
	}
}

// Get returns an order its owner or an admin may see.
func (s *Service) Get(ctx context.Context, id auth.Identity, orderID primitive.ObjectID) (*models.Order, error) {
	order, err := s.orders.FindOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !id.CanActOn(order.UserID) {
		return nil, models.ErrForbidden
	}
	return order, nil
}

func (s *Service) MyOrders(ctx context.Context, id auth.Identity) ([]models.Order, error) {
	uid := id.UserID
	return s.orders.ListOrders(ctx, models.OrderFilter{UserID: &uid})
}

// Pending is the kitchen queue.
func (s *Service) Pending(ctx context.Context, id auth.Identity) ([]models.Order, error) {
	if err := auth.RequireAdmin(id); err != nil {
		return nil, err
	}
	return s.orders.ListOrders(ctx, models.OrderFilter{Status: models.StatusPending})
}

// All lists every order, optionally narrowed to one status.
func (s *Service) All(ctx context.Context, id auth.Identity, status string) ([]models.Order, error) {
	if err := auth.RequireAdmin(id); err != nil {
		return nil, err
	}
	filter := models.OrderFilter{}
	if status != "" {
		st, ok := models.ParseStatus(status)
		if !ok {
			return nil, models.NewValidationError("status", fmt.Sprintf("unknown status %q", status))
		}
		filter.Status = st
	}
	return s.orders.ListOrders(ctx, filter)
}

func (s *Service) CustomerHistory(ctx context.Context, id auth.Identity, customerID primitive.ObjectID) ([]models.Order, error) {
	if err := auth.RequireAdmin(id); err != nil {
		return nil, err
	}
	return s.orders.ListOrders(ctx, models.OrderFilter{UserID: &customerID})
}
