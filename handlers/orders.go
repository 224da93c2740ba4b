package handlers

import (
	"net/http"
	"strings"

	"quickeats/gorest/models"
	"quickeats/gorest/orders"
	"quickeats/gorest/utils"
)

// orderView adds the statuses an admin may move the order to next.
type orderView struct {
	*models.Order
	NextStatuses []models.OrderStatus `json:"nextStatuses"`
}

func viewOf(o *models.Order) orderView {
	next := orders.NextStatuses(o.Status)
	if next == nil {
		next = []models.OrderStatus{}
	}
	return orderView{Order: o, NextStatuses: next}
}

type checkoutRequest struct {
	Items          []models.CartLine `json:"items"`
	TotalAmount    *float64          `json:"totalAmount"`
	IdempotencyKey string            `json:"idempotencyKey"`
}

// Checkout places an order. A retry carrying the same Idempotency-Key header
// gets the original order back with status 200 instead of 201.
func (a *API) Checkout(w http.ResponseWriter, r *http.Request) {
	var body checkoutRequest
	if err := decodeJSON(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" {
		key = body.IdempotencyKey
	}

	order, replayed, err := a.Orders.Checkout(r.Context(), orders.CheckoutRequest{
		Identity:       identity(r),
		Lines:          body.Items,
		ClaimedTotal:   body.TotalAmount,
		IdempotencyKey: key,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if replayed {
		w.Header().Set("Idempotent-Replayed", "true")
		utils.WriteJSON(w, http.StatusOK, viewOf(order))
		return
	}
	ordersPlaced.Inc()
	utils.WriteJSON(w, http.StatusCreated, viewOf(order))
}

func (a *API) MyOrders(w http.ResponseWriter, r *http.Request) {
	list, err := a.Orders.MyOrders(r.Context(), identity(r))
	a.writeList(w, r, list, err)
}

func (a *API) PendingOrders(w http.ResponseWriter, r *http.Request) {
	list, err := a.Orders.Pending(r.Context(), identity(r))
	a.writeList(w, r, list, err)
}

func (a *API) AllOrders(w http.ResponseWriter, r *http.Request) {
	list, err := a.Orders.All(r.Context(), identity(r), r.URL.Query().Get("status"))
	a.writeList(w, r, list, err)
}

func (a *API) CustomerHistory(w http.ResponseWriter, r *http.Request) {
	customerID, err := pathID(r, "customerId")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	list, err := a.Orders.CustomerHistory(r.Context(), identity(r), customerID)
	a.writeList(w, r, list, err)
}

func (a *API) writeList(w http.ResponseWriter, r *http.Request, list []models.Order, err error) {
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	views := make([]orderView, 0, len(list))
	for i := range list {
		views = append(views, viewOf(&list[i]))
	}
	utils.WriteJSON(w, http.StatusOK, views)
}

func (a *API) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	order, err := a.Orders.Get(r.Context(), identity(r), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, viewOf(order))
}

type statusRequest struct {
	Status  string `json:"status"`
	Version *int64 `json:"version"`
}

func (a *API) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var body statusRequest
	if err := decodeJSON(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	order, err := a.Orders.Transition(r.Context(), identity(r), id, body.Status, body.Version)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	orderTransitions.WithLabelValues(string(order.Status)).Inc()
	utils.WriteJSON(w, http.StatusOK, viewOf(order))
}

func (a *API) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	order, err := a.Orders.Cancel(r.Context(), identity(r), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	orderTransitions.WithLabelValues(string(order.Status)).Inc()
	utils.WriteJSON(w, http.StatusOK, viewOf(order))
}
