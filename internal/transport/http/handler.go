package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/foodly/order-service/internal/model"
	"github.com/foodly/order-service/internal/repo"
	"github.com/foodly/order-service/internal/service"
)

// Identity headers. An upstream auth gateway is expected to have
// verified these before the request reaches this service.
const (
	headerUserID       = "X-User-Id"
	headerRestaurantID = "X-Restaurant-Id"
)

func RegisterHandlers(r *gin.Engine, orders *service.OrderService,
	payments *service.PaymentService, repository repo.RepositoryInterface) {
	v1 := r.Group("/v1")
	{
		v1.POST("/orders", createOrderHandler(orders))
		v1.GET("/orders", listOrdersHandler(orders))
		v1.GET("/orders/:id", getOrderHandler(orders))
		v1.GET("/orders/:id/status", orderStatusHandler(orders))
		v1.POST("/orders/:id/cancel", cancelOrderHandler(orders))
		v1.POST("/orders/:id/confirm", confirmOrderHandler(orders))
		v1.POST("/orders/:id/prepare", prepareOrderHandler(orders))
		v1.POST("/orders/:id/deliver", deliverOrderHandler(orders))
		v1.POST("/orders/:id/complete", completeOrderHandler(orders))
		v1.DELETE("/orders/:id", deleteOrderHandler(orders))

		v1.GET("/payments/:id", getPaymentHandler(payments))
		v1.DELETE("/payments/:id", deletePaymentHandler(payments))

		v1.GET("/events", listEventsHandler(repository))
	}
}

type orderItemReq struct {
	MenuID         string                   `json:"menu_id" binding:"required"`
	MenuName       string                   `json:"menu_name" binding:"required"`
	BasePrice      string                   `json:"base_price" binding:"required"`
	Quantity       int                      `json:"quantity" binding:"required"`
	RestaurantID   string                   `json:"restaurant_id" binding:"required"`
	RestaurantName string                   `json:"restaurant_name" binding:"required"`
	OptionGroups   []model.OrderOptionGroup `json:"option_groups"`
}

type createOrderReq struct {
	UserName        string         `json:"user_name" binding:"required"`
	UserPhone       string         `json:"user_phone" binding:"required"`
	DeliveryAddress string         `json:"delivery_address" binding:"required"`
	DeliveryRequest string         `json:"delivery_request"`
	PaymentKey      string         `json:"payment_key" binding:"required"`
	Items           []orderItemReq `json:"items" binding:"required"`
}

func createOrderHandler(orders *service.OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(headerUserID)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
			return
		}
		var req createOrderReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		items := make([]service.OrderItemInput, 0, len(req.Items))
		for _, it := range req.Items {
			price, err := decimal.NewFromString(it.BasePrice)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid base_price"})
				return
			}
			items = append(items, service.OrderItemInput{
				MenuID:         it.MenuID,
				MenuName:       it.MenuName,
				BasePrice:      price,
				Quantity:       it.Quantity,
				RestaurantID:   it.RestaurantID,
				RestaurantName: it.RestaurantName,
				OptionGroups:   it.OptionGroups,
			})
		}
		order, err := orders.CreateOrder(c, service.CreateOrderInput{
			UserID:          userID,
			UserName:        req.UserName,
			UserPhone:       req.UserPhone,
			DeliveryAddress: req.DeliveryAddress,
			DeliveryRequest: req.DeliveryRequest,
			PaymentKey:      req.PaymentKey,
			Items:           items,
		})
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, order)
	}
}

func getOrderHandler(orders *service.OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := orders.GetOrder(c, c.Param("id"), c.GetHeader(headerUserID))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

func orderStatusHandler(orders *service.OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := orders.GetOrderStatus(c, c.Param("id"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"order_id": c.Param("id"), "status": status})
	}
}

func listOrdersHandler(orders *service.OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(headerUserID)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		list, err := orders.ListOrders(c, userID, limit, offset)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

type cancelOrderReq struct {
	Reason string `json:"reason" binding:"required"`
}

func cancelOrderHandler(orders *service.OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req cancelOrderReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := orders.CancelOrder(c, c.Param("id"), req.Reason, c.GetHeader(headerUserID)); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"order_id": c.Param("id"), "cancel": "requested"})
	}
}

func confirmOrderHandler(orders *service.OrderService) gin.HandlerFunc {
	return restaurantAction(func(c *gin.Context, restaurantID string) error {
		return orders.ConfirmOrder(c, c.Param("id"), restaurantID)
	})
}

func prepareOrderHandler(orders *service.OrderService) gin.HandlerFunc {
	return restaurantAction(func(c *gin.Context, restaurantID string) error {
		return orders.StartPreparing(c, c.Param("id"), restaurantID)
	})
}

func deliverOrderHandler(orders *service.OrderService) gin.HandlerFunc {
	return restaurantAction(func(c *gin.Context, restaurantID string) error {
		return orders.StartDelivering(c, c.Param("id"), restaurantID)
	})
}

func restaurantAction(do func(c *gin.Context, restaurantID string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		restaurantID := c.GetHeader(headerRestaurantID)
		if restaurantID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing restaurant identity"})
			return
		}
		if err := do(c, restaurantID); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"order_id": c.Param("id")})
	}
}

func completeOrderHandler(orders *service.OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := orders.CompleteOrder(c, c.Param("id"), c.GetHeader(headerUserID)); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"order_id": c.Param("id"), "status": model.OrderCompleted})
	}
}

func deleteOrderHandler(orders *service.OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := orders.DeleteOrder(c, c.Param("id"), c.GetHeader(headerUserID)); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func getPaymentHandler(payments *service.PaymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		payment, err := payments.GetPayment(c, c.Param("id"), c.GetHeader(headerUserID))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, payment)
	}
}

func deletePaymentHandler(payments *service.PaymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := payments.DeletePayment(c, c.Param("id"), c.GetHeader(headerUserID)); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// listEventsHandler is the operator view over the event ledger,
// typically queried with status=FAILED or status=DEAD_LETTER.
func listEventsHandler(repository repo.RepositoryInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := model.EventStatus(c.DefaultQuery("status", string(model.EventDeadLetter)))
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown event status"})
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		entries, err := repository.ListEventLogs(c, status, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, entries)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrForbiddenOrderAccess),
		errors.Is(err, model.ErrForbiddenPaymentAccess):
		return http.StatusForbidden
	case errors.Is(err, model.ErrInvalidOrderTransition),
		errors.Is(err, model.ErrCannotCancelOrder),
		errors.Is(err, model.ErrOrderNotDeletable),
		errors.Is(err, model.ErrPaymentNotDeletable):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
