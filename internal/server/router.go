package server

import (
	"secureop-core/internal/handler"
	"secureop-core/pkg/monitor"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handlers 路由需要的全部处理器
type Handlers struct {
	Tx     *handler.TransactionHandler
	Role   *handler.RoleHandler
	MetaTx *handler.MetaTxHandler
}

// NewHTTPRouter 初始化并返回一个 Gin Engine
func NewHTTPRouter(h Handlers) *gin.Engine {
	// 1. 创建 Engine (使用默认中间件: Logger, Recovery)
	r := gin.Default()

	// 2. 注册通用中间件
	r.Use(monitor.PrometheusMiddleware())

	// 3. 注册基础路由
	r.GET("/health", handler.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 4. 注册 API 路由组
	api := r.Group("/api/v1")
	{
		tx := api.Group("/tx")
		{
			tx.POST("/request/standard", h.Tx.RequestStandard)
			tx.POST("/request/raw", h.Tx.RequestRaw)
			tx.POST("/request/simple", h.Tx.RequestSimple)
			tx.POST("/:tx_id/approve", h.Tx.Approve)
			tx.POST("/:tx_id/cancel", h.Tx.Cancel)
			tx.PUT("/:tx_id/payment", h.Tx.UpdatePayment)
			tx.GET("/:tx_id", h.Tx.Get)
			tx.GET("", h.Tx.List)
		}

		roles := api.Group("/roles")
		{
			roles.POST("", h.Role.Create)
			roles.GET("", h.Role.List)
			roles.GET("/:role_hash", h.Role.Get)
			roles.DELETE("/:role_hash", h.Role.Delete)
			roles.PUT("/:role_hash/capacity", h.Role.UpdateCapacity)
			roles.POST("/:role_hash/wallets", h.Role.AssignWallet)
			roles.POST("/:role_hash/wallets/revoke", h.Role.RevokeWallet)
			roles.POST("/:role_hash/wallets/replace", h.Role.ReplaceWallet)
			roles.POST("/:role_hash/permissions", h.Role.AddPermission)
		}
		api.GET("/permissions/check", h.Role.CheckPermission)

		metatx := api.Group("/metatx")
		{
			metatx.POST("/unsigned", h.MetaTx.GenerateUnsigned)
			metatx.POST("/approve", h.MetaTx.Approve)
			metatx.POST("/cancel", h.MetaTx.Cancel)
			metatx.POST("/request_and_approve", h.MetaTx.RequestAndApprove)
			metatx.GET("/nonce/:address", h.MetaTx.GetNonce)
		}
	}

	return r
}
