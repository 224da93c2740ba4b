// Package handlers exposes the ordering services over HTTP under /api.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"quickeats/gorest/accounts"
	"quickeats/gorest/auth"
	"quickeats/gorest/catalog"
	"quickeats/gorest/middleware"
	"quickeats/gorest/middleware/logkafka"
	"quickeats/gorest/models"
	"quickeats/gorest/orders"
	"quickeats/gorest/utils"
)

var (
	requestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickeats_http_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"handler", "status"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quickeats_http_request_duration_seconds",
			Help:    "Histogram of API request durations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler", "status"},
	)

	ordersPlaced = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "quickeats_orders_placed_total",
		Help: "Total number of orders created by checkout",
	})

	orderTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quickeats_order_transitions_total",
		Help: "Total number of order status changes by target status",
	},
		[]string{"status"})

	initOnce sync.Once
)

// Init registers the handler metrics with the default Prometheus registry.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(requestCount)
		prometheus.MustRegister(requestDuration)
		prometheus.MustRegister(ordersPlaced)
		prometheus.MustRegister(orderTransitions)
	})
}

// API holds the services the routes dispatch to.
type API struct {
	Accounts   *accounts.Service
	Catalog    *catalog.Service
	Orders     *orders.Service
	Guard      *auth.Guard
	Log        *slog.Logger
	RequestLog *logkafka.RequestLogger

	// UploadDir, when set, is served read-only under /uploads/.
	UploadDir string
	// Ready backs /health; nil means always healthy.
	Ready func(ctx context.Context) error
}

const hexID = "{id:[0-9a-fA-F]{24}}"

func NewRouter(a *API) *mux.Router {
	r := mux.NewRouter()
	if a.RequestLog != nil {
		r.Use(a.RequestLog.Middleware)
	}
	r.HandleFunc("/health", a.instrument("health", a.Health)).Methods(http.MethodGet)
	if a.UploadDir != "" {
		r.PathPrefix("/uploads/").Handler(http.StripPrefix("/uploads/", http.FileServer(http.Dir(a.UploadDir))))
	}

	public := r.PathPrefix("/api").Subrouter()
	public.Use(middleware.RequireJSON)
	public.HandleFunc("/auth/signup", a.instrument("signup", a.Signup)).Methods(http.MethodPost)
	public.HandleFunc("/auth/login", a.instrument("login", a.Login)).Methods(http.MethodPost)
	public.HandleFunc("/auth/admin/login", a.instrument("admin_login", a.AdminLogin)).Methods(http.MethodPost)
	public.HandleFunc("/auth/admin-register", a.instrument("admin_register", a.RegisterAdmin)).Methods(http.MethodPost)
	public.HandleFunc("/menu", a.instrument("menu_list", a.ListMenu)).Methods(http.MethodGet)
	public.HandleFunc("/menu/"+hexID, a.instrument("menu_get", a.GetMenuItem)).Methods(http.MethodGet)

	private := r.PathPrefix("/api").Subrouter()
	private.Use(middleware.Authenticate(a.Guard))
	private.Use(middleware.RequireJSON)

	private.HandleFunc("/auth/profile", a.instrument("profile", a.Profile)).Methods(http.MethodGet)
	private.HandleFunc("/auth/update-profile", a.instrument("update_profile", a.UpdateProfile)).Methods(http.MethodPut)
	private.HandleFunc("/auth/update-preferences", a.instrument("update_preferences", a.UpdatePreferences)).Methods(http.MethodPut)
	private.HandleFunc("/auth/delete-account", a.instrument("delete_account", a.DeleteAccount)).Methods(http.MethodDelete)
	private.HandleFunc("/auth/users", a.instrument("list_customers", a.ListCustomers)).Methods(http.MethodGet)

	private.HandleFunc("/menu/all", a.instrument("menu_all", a.ListAllMenu)).Methods(http.MethodGet)
	private.HandleFunc("/menu", a.instrument("menu_create", a.CreateMenuItem)).Methods(http.MethodPost)
	private.HandleFunc("/menu/"+hexID, a.instrument("menu_update", a.UpdateMenuItem)).Methods(http.MethodPut)
	private.HandleFunc("/menu/"+hexID, a.instrument("menu_delete", a.DeleteMenuItem)).Methods(http.MethodDelete)

	private.HandleFunc("/orders", a.instrument("checkout", a.Checkout)).Methods(http.MethodPost)
	private.HandleFunc("/orders", a.instrument("orders_all", a.AllOrders)).Methods(http.MethodGet)
	private.HandleFunc("/orders/my-orders", a.instrument("orders_mine", a.MyOrders)).Methods(http.MethodGet)
	private.HandleFunc("/orders/pending", a.instrument("orders_pending", a.PendingOrders)).Methods(http.MethodGet)
	private.HandleFunc("/orders/customer/{customerId}", a.instrument("orders_customer", a.CustomerHistory)).Methods(http.MethodGet)
	private.HandleFunc("/orders/"+hexID, a.instrument("order_get", a.GetOrder)).Methods(http.MethodGet)
	private.HandleFunc("/orders/"+hexID+"/status", a.instrument("order_status", a.UpdateOrderStatus)).Methods(http.MethodPut)
	private.HandleFunc("/orders/"+hexID+"/cancel", a.instrument("order_cancel", a.CancelOrder)).Methods(http.MethodPut)

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// instrument wraps h in a span and records request count and duration by
// handler name and status code.
func (a *API) instrument(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := otel.Tracer("quickeats-api").Start(r.Context(), name)
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w}
		h(rec, r.WithContext(ctx))
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		status := strconv.Itoa(rec.status)
		span.SetAttributes(attribute.Int("http.status_code", rec.status))
		if rec.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rec.status))
		}
		requestCount.WithLabelValues(name, status).Inc()
		requestDuration.WithLabelValues(name, status).Observe(time.Since(start).Seconds())
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if status := utils.WriteError(w, err); status >= http.StatusInternalServerError {
		a.Log.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
}

type message struct {
	Message string `json:"message"`
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return models.NewValidationError("", "request body is empty")
		}
		return models.NewValidationError("", "malformed JSON: "+err.Error())
	}
	return nil
}

func pathID(r *http.Request, name string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(mux.Vars(r)[name])
	if err != nil {
		return primitive.NilObjectID, models.NewValidationError(name, "is not a valid id")
	}
	return id, nil
}

// identity is set by middleware.Authenticate on every private route.
func identity(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}

func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	if a.Ready != nil {
		if err := a.Ready(r.Context()); err != nil {
			a.Log.Warn("health check failed", "error", err)
			utils.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
