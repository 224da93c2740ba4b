package orders

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"quickeats/gorest/auth"
	"quickeats/gorest/cart"
	"quickeats/gorest/events"
	"quickeats/gorest/models"
	"quickeats/gorest/store"
)

type fixture struct {
	svc      *Service
	db       *store.Memory
	events   *events.Recorder
	customer auth.Identity
	other    auth.Identity
	admin    auth.Identity
	dosa     *models.MenuItem
	idli     *models.MenuItem
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := store.NewMemory()
	rec := &events.Recorder{}

	mkUser := func(name string, role models.Role) auth.Identity {
		u := &models.User{FullName: name, Email: name + "@campus.edu", Phone: "98765", RoomNo: "B-204", Role: role}
		require.NoError(t, db.CreateUser(ctx, u))
		return auth.Identity{UserID: u.ID, Role: role}
	}
	mkItem := func(name string, price float64, available bool) *models.MenuItem {
		item := &models.MenuItem{Name: name, Price: price, Category: models.CategoryBreakfast, IsAvailable: available}
		require.NoError(t, db.InsertMenuItem(ctx, item))
		return item
	}

	f := &fixture{
		db:       db,
		events:   rec,
		customer: mkUser("asha", models.RoleCustomer),
		other:    mkUser("ravi", models.RoleCustomer),
		admin:    mkUser("warden", models.RoleAdmin),
		dosa:     mkItem("Masala Dosa", 80, true),
		idli:     mkItem("Idli", 40, false),
	}
	f.svc = NewService(db, db, db, store.NewMemoryIdempotency(), rec,
		slog.New(slog.NewTextHandler(io.Discard, nil)), Config{})
	return f
}

func (f *fixture) place(t *testing.T) *models.Order {
	t.Helper()
	order, _, err := f.svc.Checkout(context.Background(), CheckoutRequest{
		Identity: f.customer,
		Lines:    []models.CartLine{{ItemKey: f.dosa.ID.Hex(), Quantity: 1}},
	})
	require.NoError(t, err)
	return order
}

func TestCheckoutMasalaDosa(t *testing.T) {
	f := newFixture(t)
	claimed := 160.0
	order, replayed, err := f.svc.Checkout(context.Background(), CheckoutRequest{
		Identity:     f.customer,
		Lines:        []models.CartLine{{ItemKey: f.dosa.ID.Hex(), Name: "Masala Dosa", UnitPrice: 80, Quantity: 2}},
		ClaimedTotal: &claimed,
	})
	require.NoError(t, err)
	assert.False(t, replayed)

	assert.Equal(t, 160.0, order.TotalAmount)
	assert.Equal(t, models.StatusPending, order.Status)
	assert.Equal(t, int64(1), order.Version)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 2, order.Items[0].Quantity)
	assert.Equal(t, 80.0, order.Items[0].UnitPrice)
	assert.Equal(t, "B-204", order.UserDetails.RoomNo)
	assert.Equal(t, "asha@campus.edu", order.UserDetails.Email)

	stored, err := f.db.FindOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.TotalAmount, stored.TotalAmount)

	evs := f.events.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, events.TypeOrderCreated, evs[0].Type)
	assert.Equal(t, order.ID.Hex(), evs[0].OrderID)
}

func TestCheckoutCustomMeal(t *testing.T) {
	f := newFixture(t)
	b := cart.NewBuilder()
	b.SelectBase(models.Option{Name: "Rice", Price: 40})
	b.ToggleProtein(models.Option{Name: "Chicken", Price: 80})
	b.ToggleExtra(models.Option{Name: "Cheese", Price: 30})
	line, err := b.Build()
	require.NoError(t, err)

	order, _, err := f.svc.Checkout(context.Background(), CheckoutRequest{Identity: f.customer, Lines: []models.CartLine{line}})
	require.NoError(t, err)
	assert.Equal(t, 150.0, order.TotalAmount)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "Custom Rice Bowl", order.Items[0].Name)
}

func TestCheckoutRecomputesPrices(t *testing.T) {
	f := newFixture(t)
	// Client prices are ignored: the catalog and option table win.
	lines := []models.CartLine{
		{ItemKey: f.dosa.ID.Hex(), UnitPrice: 1, Quantity: 1},
		{Quantity: 2, Customization: &models.Customization{
			Base:     &models.Option{Name: "Roti", Price: 0},
			Proteins: []models.Option{{Name: "paneer", Price: 0}},
		}},
	}
	order, _, err := f.svc.Checkout(context.Background(), CheckoutRequest{Identity: f.customer, Lines: lines})
	require.NoError(t, err)
	assert.Equal(t, 80.0+2*90.0, order.TotalAmount)
	assert.Equal(t, 80.0, order.Items[0].UnitPrice)
	assert.Equal(t, 90.0, order.Items[1].UnitPrice)
}

func TestCheckoutMergesRepeatedLines(t *testing.T) {
	f := newFixture(t)
	key := f.dosa.ID.Hex()
	order, _, err := f.svc.Checkout(context.Background(), CheckoutRequest{
		Identity: f.customer,
		Lines:    []models.CartLine{{ItemKey: key, Quantity: 1}, {ItemKey: key, Quantity: 2}},
	})
	require.NoError(t, err)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 3, order.Items[0].Quantity)
	assert.Equal(t, 240.0, order.TotalAmount)
}

func TestCheckoutClaimedTotal(t *testing.T) {
	tests := []struct {
		name    string
		claimed float64
		wantErr bool
	}{
		{"exact", 160, false},
		{"within rounding", 160.005, false},
		{"too low", 100, true},
		{"slightly high", 160.02, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			claimed := tt.claimed
			_, _, err := f.svc.Checkout(context.Background(), CheckoutRequest{
				Identity:     f.customer,
				Lines:        []models.CartLine{{ItemKey: f.dosa.ID.Hex(), Quantity: 2}},
				ClaimedTotal: &claimed,
			})
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var verr *models.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "totalAmount", verr.Field)
			assert.Zero(t, f.db.OrderCount())
		})
	}
}

func TestCheckoutRejects(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name  string
		lines []models.CartLine
		want  error
	}{
		{"empty cart", nil, models.ErrEmptyCart},
		{"zero quantity", []models.CartLine{{ItemKey: f.dosa.ID.Hex(), Quantity: 0}}, models.ErrValidation},
		{"unavailable item", []models.CartLine{{ItemKey: f.idli.ID.Hex(), Quantity: 1}}, models.ErrValidation},
		{"unknown item", []models.CartLine{{ItemKey: primitive.NewObjectID().Hex(), Quantity: 1}}, models.ErrValidation},
		{"bad key", []models.CartLine{{ItemKey: "dosa", Quantity: 1}}, models.ErrValidation},
		{"missing base", []models.CartLine{{Quantity: 1, Customization: &models.Customization{
			Extras: []models.Option{{Name: "Cheese", Price: 30}},
		}}}, models.ErrValidation},
		{"unknown option", []models.CartLine{{Quantity: 1, Customization: &models.Customization{
			Base: &models.Option{Name: "Quinoa", Price: 10},
		}}}, models.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.svc.Checkout(context.Background(), CheckoutRequest{Identity: f.customer, Lines: tt.lines})
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Zero(t, f.db.OrderCount())
	assert.Empty(t, f.events.Events())
}

func TestCheckoutCapsQuantity(t *testing.T) {
	f := newFixture(t)
	key := f.dosa.ID.Hex()
	tests := []struct {
		name  string
		lines []models.CartLine
		field string
	}{
		{"huge", []models.CartLine{{ItemKey: key, Quantity: 1 << 62}}, "items[0].quantity"},
		{"just over", []models.CartLine{{ItemKey: key, Quantity: cart.MaxQuantity + 1}}, "items[0].quantity"},
		{"merged over", []models.CartLine{{ItemKey: key, Quantity: 60}, {ItemKey: key, Quantity: 40}}, "items[1].quantity"},
		{"negative", []models.CartLine{{ItemKey: key, Quantity: -3}}, "items[0].quantity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.svc.Checkout(context.Background(), CheckoutRequest{Identity: f.customer, Lines: tt.lines})
			var verr *models.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
	assert.Zero(t, f.db.OrderCount())

	order, _, err := f.svc.Checkout(context.Background(), CheckoutRequest{
		Identity: f.customer,
		Lines:    []models.CartLine{{ItemKey: key, Quantity: cart.MaxQuantity}},
	})
	require.NoError(t, err)
	assert.Equal(t, 7920.0, order.TotalAmount)
}

func TestCheckoutMissingBaseNamesField(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.Checkout(context.Background(), CheckoutRequest{
		Identity: f.customer,
		Lines:    []models.CartLine{{Quantity: 1, ItemKey: "custom:", Customization: &models.Customization{}}},
	})
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "base", verr.Field)
}

func TestCheckoutIsAtomic(t *testing.T) {
	f := newFixture(t)
	f.db.FailInsertOrder = errors.New("write concern timeout")

	_, _, err := f.svc.Checkout(context.Background(), CheckoutRequest{
		Identity:       f.customer,
		Lines:          []models.CartLine{{ItemKey: f.dosa.ID.Hex(), Quantity: 2}},
		IdempotencyKey: "k1",
	})
	require.Error(t, err)
	assert.Zero(t, f.db.OrderCount())
	assert.Empty(t, f.events.Events())

	// The failed attempt released its key, so a retry goes through.
	f.db.FailInsertOrder = nil
	order, replayed, err := f.svc.Checkout(context.Background(), CheckoutRequest{
		Identity:       f.customer,
		Lines:          []models.CartLine{{ItemKey: f.dosa.ID.Hex(), Quantity: 2}},
		IdempotencyKey: "k1",
	})
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, 160.0, order.TotalAmount)
	assert.Equal(t, 1, f.db.OrderCount())
}

func TestCheckoutIdempotency(t *testing.T) {
	f := newFixture(t)
	req := CheckoutRequest{
		Identity:       f.customer,
		Lines:          []models.CartLine{{ItemKey: f.dosa.ID.Hex(), Quantity: 1}},
		IdempotencyKey: "tap-1",
	}
	first, replayed, err := f.svc.Checkout(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, replayed)

	second, replayed, err := f.svc.Checkout(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.db.OrderCount())

	// Keys are scoped per user.
	req.Identity = f.other
	third, replayed, err := f.svc.Checkout(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.NotEqual(t, first.ID, third.ID)
	assert.Equal(t, 2, f.db.OrderCount())
}

func TestCheckoutWithoutKeyIsNotDeduplicated(t *testing.T) {
	f := newFixture(t)
	f.place(t)
	f.place(t)
	assert.Equal(t, 2, f.db.OrderCount())
}

type blockingIdem struct{ held bool }

func (b *blockingIdem) Reserve(context.Context, string, time.Duration) (string, error) {
	if b.held {
		return "", models.ErrConflict
	}
	b.held = true
	return "", nil
}
func (b *blockingIdem) Complete(context.Context, string, string, time.Duration) error { return nil }
func (b *blockingIdem) Release(context.Context, string) error                         { return nil }

func TestCheckoutInFlightDuplicate(t *testing.T) {
	f := newFixture(t)
	f.svc.idem = &blockingIdem{held: true}
	_, _, err := f.svc.Checkout(context.Background(), CheckoutRequest{
		Identity:       f.customer,
		Lines:          []models.CartLine{{ItemKey: f.dosa.ID.Hex(), Quantity: 1}},
		IdempotencyKey: "tap-1",
	})
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Zero(t, f.db.OrderCount())
}

func TestLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.place(t)
	created := order.CreatedAt

	clock := created
	f.svc.now = func() time.Time { clock = clock.Add(time.Minute); return clock }

	for i, next := range []string{"preparing", "On the way", "delivered"} {
		updated, err := f.svc.Transition(ctx, f.admin, order.ID, next, nil)
		require.NoError(t, err, next)
		assert.Equal(t, int64(i+2), updated.Version)
		assert.True(t, updated.UpdatedAt.After(created))
		assert.Equal(t, order.TotalAmount, updated.TotalAmount)
		assert.Equal(t, order.Items, updated.Items)
	}

	_, err := f.svc.Cancel(ctx, f.customer, order.ID)
	assert.ErrorIs(t, err, models.ErrCannotCancel)

	for _, s := range []string{"pending", "preparing", "on_the_way", "cancelled", "delivered"} {
		_, err := f.svc.Transition(ctx, f.admin, order.ID, s, nil)
		assert.ErrorIs(t, err, models.ErrInvalidTransition, s)
	}

	evs := f.events.Events()
	require.Len(t, evs, 4)
	assert.Equal(t, models.StatusOnTheWay, evs[3].OldStatus)
	assert.Equal(t, models.StatusDelivered, evs[3].NewStatus)
	assert.Equal(t, f.admin.UserID.Hex(), evs[3].ChangedBy)
}

func TestTransitionRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.place(t)

	_, err := f.svc.Transition(ctx, f.customer, order.ID, "preparing", nil)
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = f.svc.Transition(ctx, f.admin, order.ID, "shipped", nil)
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.svc.Transition(ctx, f.admin, order.ID, "delivered", nil)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = f.svc.Transition(ctx, f.admin, primitive.NewObjectID(), "preparing", nil)
	assert.ErrorIs(t, err, models.ErrNotFound)

	stale := int64(7)
	_, err = f.svc.Transition(ctx, f.admin, order.ID, "preparing", &stale)
	assert.ErrorIs(t, err, models.ErrConflict)

	current := int64(1)
	updated, err := f.svc.Transition(ctx, f.admin, order.ID, "preparing", &current)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPreparing, updated.Status)

	cancelled, err := f.svc.Transition(ctx, f.admin, order.ID, "cancelled", nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	_, err = f.svc.Transition(ctx, f.admin, order.ID, "preparing", nil)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestConcurrentTransitionsOneWins(t *testing.T) {
	f := newFixture(t)
	order := f.place(t)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Transition(context.Background(), f.admin, order.ID, "preparing", nil)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		// Losers either read the old version and lost the write, or read the new
		// status and found no edge preparing→preparing.
		assert.True(t, errors.Is(err, models.ErrConflict) || errors.Is(err, models.ErrInvalidTransition), err)
	}
	assert.Equal(t, 1, wins)

	stored, err := f.db.FindOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order := f.place(t)
	_, err := f.svc.Cancel(ctx, f.other, order.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)

	cancelled, err := f.svc.Cancel(ctx, f.customer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	_, err = f.svc.Cancel(ctx, f.customer, order.ID)
	assert.ErrorIs(t, err, models.ErrCannotCancel)

	preparing := f.place(t)
	_, err = f.svc.Transition(ctx, f.admin, preparing.ID, "preparing", nil)
	require.NoError(t, err)
	cancelled, err = f.svc.Cancel(ctx, f.admin, preparing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	onTheWay := f.place(t)
	for _, s := range []string{"preparing", "on_the_way"} {
		_, err = f.svc.Transition(ctx, f.admin, onTheWay.ID, s, nil)
		require.NoError(t, err)
	}
	_, err = f.svc.Cancel(ctx, f.customer, onTheWay.ID)
	assert.ErrorIs(t, err, models.ErrCannotCancel)
}

func TestReads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	clock := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { clock = clock.Add(time.Minute); return clock }

	first := f.place(t)
	second := f.place(t)
	_, _, err := f.svc.Checkout(ctx, CheckoutRequest{
		Identity: f.other,
		Lines:    []models.CartLine{{ItemKey: f.dosa.ID.Hex(), Quantity: 1}},
	})
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, f.admin, first.ID, "preparing", nil)
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, f.customer, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	_, err = f.svc.Get(ctx, f.other, first.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = f.svc.Get(ctx, f.admin, first.ID)
	assert.NoError(t, err)

	mine, err := f.svc.MyOrders(ctx, f.customer)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID)
	assert.Equal(t, first.ID, mine[1].ID)

	_, err = f.svc.Pending(ctx, f.customer)
	assert.ErrorIs(t, err, models.ErrForbidden)
	pending, err := f.svc.Pending(ctx, f.admin)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
	for _, o := range pending {
		assert.Equal(t, models.StatusPending, o.Status)
	}

	all, err := f.svc.All(ctx, f.admin, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
	preparing, err := f.svc.All(ctx, f.admin, "Preparing")
	require.NoError(t, err)
	assert.Len(t, preparing, 1)
	_, err = f.svc.All(ctx, f.admin, "lost")
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = f.svc.All(ctx, f.other, "")
	assert.ErrorIs(t, err, models.ErrForbidden)

	history, err := f.svc.CustomerHistory(ctx, f.admin, f.customer.UserID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
	_, err = f.svc.CustomerHistory(ctx, f.customer, f.customer.UserID)
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestPublishFailureDoesNotFailCheckout(t *testing.T) {
	f := newFixture(t)
	f.events.Err = errors.New("broker down")
	order := f.place(t)
	assert.Equal(t, models.StatusPending, order.Status)
	assert.Equal(t, 1, f.db.OrderCount())
}
