package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/foodly/order-service/internal/config"
	"github.com/foodly/order-service/internal/repo"
	"github.com/foodly/order-service/internal/service"
)

func NewRouter(orders *service.OrderService, payments *service.PaymentService,
	repository repo.RepositoryInterface, rl config.RateLimitConfig, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware(log))
	r.Use(RateLimitMiddleware(rl.RPS, rl.Burst))
	RegisterHandlers(r, orders, payments, repository)
	return r
}
