package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/quantlab/scanbridge/internal/dhan"
	"github.com/quantlab/scanbridge/pkg/logger"
)

// OrderGateway places, inspects and cancels broker orders.
type OrderGateway interface {
	PlaceOrder(ctx context.Context, order dhan.OrderRequest) (dhan.OrderResponse, error)
	OrderStatus(ctx context.Context, orderID string) (dhan.OrderResponse, error)
	CancelOrder(ctx context.Context, orderID string) (dhan.OrderResponse, error)
}

// OrderHandler handles order API endpoints
type OrderHandler struct {
	gateway OrderGateway
	logger  *logger.Logger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(gateway OrderGateway, log *logger.Logger) *OrderHandler {
	return &OrderHandler{
		gateway: gateway,
		logger:  log,
	}
}

// Place submits an order
// POST /api/orders
func (h *OrderHandler) Place(w http.ResponseWriter, r *http.Request) {
	var order dhan.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if order.SecurityID == "" || order.Quantity <= 0 {
		respondError(w, http.StatusBadRequest, "security_id and a positive quantity are required")
		return
	}

	resp, err := h.gateway.PlaceOrder(r.Context(), order)
	if err != nil {
		if errors.Is(err, dhan.ErrRiskLimit) {
			respondError(w, http.StatusUnprocessableEntity, "Order exceeds per-trade risk limit")
			return
		}
		h.logger.WithError(err).Error("Failed to place order")
		respondUpstreamError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, resp)
}

// Status returns the broker state of an order
// GET /api/orders/{id}
func (h *OrderHandler) Status(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	resp, err := h.gateway.OrderStatus(r.Context(), orderID)
	if err != nil {
		h.logger.WithError(err).WithField("order_id", orderID).Error("Failed to fetch order status")
		respondUpstreamError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// Cancel cancels an open order
// DELETE /api/orders/{id}
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	resp, err := h.gateway.CancelOrder(r.Context(), orderID)
	if err != nil {
		h.logger.WithError(err).WithField("order_id", orderID).Error("Failed to cancel order")
		respondUpstreamError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}
