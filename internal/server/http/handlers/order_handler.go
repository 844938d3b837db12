package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	domainErrors "github.com/polkiloo/orderpipeline/internal/domain/errors"
	"github.com/polkiloo/orderpipeline/internal/domain/model"
	"github.com/polkiloo/orderpipeline/internal/server/http/dto"
)

// IdempotencyKeyHeader carries the optional client request key.
const IdempotencyKeyHeader = "Idempotency-Key"

const orderCreatedMessage = "Order created successfully"

// OrderHandler manages order-related endpoints.
type OrderHandler struct {
	facade OrderFacade
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(facade OrderFacade) *OrderHandler {
	return &OrderHandler{facade: facade}
}

// Create handles POST /orders.
func (h *OrderHandler) Create(c *gin.Context) {
	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "customerId, productId, quantity and totalAmount are required"})
		return
	}

	intent := model.OrderIntent{
		CustomerID:  *req.CustomerID,
		ProductID:   *req.ProductID,
		Quantity:    *req.Quantity,
		TotalAmount: *req.TotalAmount,
	}
	key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))

	order, err := h.facade.CreateOrder(c.Request.Context(), intent, key)
	if err != nil {
		var rejection *domainErrors.RiskRejectionError
		switch {
		case errors.Is(err, domainErrors.ErrValidation):
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		case errors.As(err, &rejection):
			c.JSON(http.StatusUnprocessableEntity, dto.ErrorResponse{Error: "Order rejected", Reason: rejection.Reason})
		case errors.Is(err, domainErrors.ErrDuplicateRequest):
			c.JSON(http.StatusConflict, dto.ErrorResponse{Error: "request with this idempotency key is in progress"})
		default:
			c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
		}
		return
	}

	c.JSON(http.StatusCreated, dto.CreateOrderResponse{
		OrderID: order.ID,
		Status:  string(order.Status),
		Message: orderCreatedMessage,
	})
}

// Get handles GET /orders/:id.
func (h *OrderHandler) Get(c *gin.Context) {
	order, err := h.facade.Order(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domainErrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, toOrderResponse(order))
}

func toOrderResponse(order *model.Order) dto.OrderResponse {
	return dto.OrderResponse{
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		ProductID:   order.ProductID,
		Quantity:    order.Quantity,
		TotalAmount: order.TotalAmount,
		Status:      string(order.Status),
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
}
