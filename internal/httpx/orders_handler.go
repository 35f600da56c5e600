package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/karavanmarket/orderflow/internal/kafka"
	"github.com/karavanmarket/orderflow/internal/orders"
	"github.com/karavanmarket/orderflow/internal/redisx"
)

// Publisher is satisfied by *kafkax.Producer; tests swap in a recorder.
type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

type OrdersHandler struct {
	Service  *orders.Service
	Producer Publisher
	Redis    *redis.Client
	Name     string // producer name stamped on events
}

type CreateOrderReq struct {
	Address     string             `json:"address"`
	PhoneNumber string             `json:"phone_number"`
	Items       []orders.ItemInput `json:"items"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/my", h.listMyOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getOrderStatus)
	r.Delete("/orders/{id}", h.cancelOrder)

	r.With(RequireAdmin).Post("/orders/{id}/approve", h.approveOrder)
	r.With(RequireAdmin).Post("/orders/{id}/deliver", h.deliverOrder)
	r.Route("/admin/orders", func(r chi.Router) {
		r.Use(RequireAdmin)
		r.Get("/", h.listAllOrders)
		r.Get("/{status}", h.listOrdersByStatus)
	})
}

// writeDomainErr maps the order error taxonomy onto HTTP statuses. The
// precondition and validation failures mirror the storefront's original
// BadRequest responses.
func writeDomainErr(w http.ResponseWriter, err error) {
	var (
		unknown  *orders.UnknownProductError
		short    *orders.InsufficientStockError
		badState *orders.InvalidTransitionError
	)
	switch {
	case errors.Is(err, orders.ErrInvalidInput),
		errors.As(err, &unknown),
		errors.As(err, &short),
		errors.As(err, &badState):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, orders.ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
	case errors.Is(err, orders.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
	case errors.Is(err, orders.ErrConcurrentModification):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "order modified concurrently, retry"})
	default:
		log.Printf("orders handler: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id := identityFrom(r.Context())
	o, err := h.Service.Create(ctx, orders.CreateOrderInput{
		CustomerID:  id.UserID,
		Address:     req.Address,
		PhoneNumber: req.PhoneNumber,
		Items:       req.Items,
	})
	if err != nil {
		writeDomainErr(w, err)
		return
	}

	h.cacheStatus(ctx, o)
	h.publish(r, orders.TopicOrderCreated, orders.EventOrderCreated, o.ID, orders.NewCreatedPayload(o))
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) listMyOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Service.ListMine(ctx, identityFrom(r.Context()).UserID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	id := identityFrom(r.Context())
	o, err := h.Service.Get(ctx, chi.URLParam(r, "id"), id.UserID, id.IsAdmin)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// statusDoc is the cached shape served by the status endpoint. CustomerID is
// kept so a cache hit can still enforce the ownership rule.
type statusDoc struct {
	OrderID    string        `json:"order_id"`
	CustomerID string        `json:"customer_id"`
	Status     orders.Status `json:"status"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	orderID := chi.URLParam(r, "id")
	id := identityFrom(r.Context())

	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
		if raw, err := h.Redis.Get(ctx, key).Bytes(); err == nil {
			var doc statusDoc
			if json.Unmarshal(raw, &doc) == nil && (doc.CustomerID == id.UserID || id.IsAdmin) {
				writeJSON(w, http.StatusOK, map[string]any{"order_id": doc.OrderID, "status": doc.Status})
				return
			}
		}
	}

	o, err := h.Service.Get(ctx, orderID, id.UserID, id.IsAdmin)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, map[string]any{"order_id": o.ID, "status": o.Status})
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	orderID := chi.URLParam(r, "id")
	id := identityFrom(r.Context())
	o, err := h.Service.Cancel(ctx, orderID, id.UserID, id.IsAdmin)
	if err != nil {
		writeDomainErr(w, err)
		return
	}

	h.dropStatus(ctx, orderID)
	h.publish(r, orders.TopicOrderCancelled, orders.EventOrderCancelled, orderID,
		orders.OrderCancelledPayload{OrderID: o.ID, CancelledBy: id.UserID})
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrdersHandler) approveOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	orderID := chi.URLParam(r, "id")
	id := identityFrom(r.Context())
	o, err := h.Service.Approve(ctx, orderID, id.UserID, id.IsAdmin)
	if err != nil {
		var short *orders.InsufficientStockError
		if errors.As(err, &short) {
			h.publish(r, orders.TopicOrderRejected, orders.EventOrderRejected, orderID,
				orders.OrderRejectedPayload{
					OrderID: orderID,
					Reason:  "OUT_OF_STOCK",
					Detail: orders.ShortageDetail{
						ProductID: short.ProductID,
						Available: short.Available,
						Requested: short.Requested,
					},
				})
		}
		writeDomainErr(w, err)
		return
	}

	h.cacheStatus(ctx, o)
	h.publish(r, orders.TopicOrderApproved, orders.EventOrderApproved, o.ID, orders.NewApprovedPayload(o))
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) deliverOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	orderID := chi.URLParam(r, "id")
	id := identityFrom(r.Context())
	o, err := h.Service.Deliver(ctx, orderID, id.UserID, id.IsAdmin)
	if err != nil {
		writeDomainErr(w, err)
		return
	}

	h.cacheStatus(ctx, o)
	h.publish(r, orders.TopicOrderDelivered, orders.EventOrderDelivered, o.ID,
		orders.OrderDeliveredPayload{OrderID: o.ID, TotalCents: o.TotalCents})
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) listAllOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Service.ListAll(ctx, identityFrom(r.Context()).IsAdmin)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) listOrdersByStatus(w http.ResponseWriter, r *http.Request) {
	status, ok := orders.ParseStatus(chi.URLParam(r, "status"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown status"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Service.ListByStatus(ctx, status, identityFrom(r.Context()).IsAdmin)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, o *orders.Order) {
	if h.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	doc := statusDoc{OrderID: o.ID, CustomerID: o.CustomerID, Status: o.Status, UpdatedAt: time.Now().UTC()}
	_ = h.Redis.Set(ctx, key, kafkax.MustMarshal(doc), redisx.TTLStatusCache).Err()
}

func (h *OrdersHandler) dropStatus(ctx context.Context, orderID string) {
	if h.Redis == nil {
		return
	}
	_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderID)).Err()
}

func (h *OrdersHandler) publish(r *http.Request, topic, eventType, orderID string, payload any) {
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Name,
		TraceID:       r.Header.Get("X-Request-Id"),
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	h.Producer.Publish(topic, orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
