package main

import (
	"context"
	"fmt"
	"time"

	"secureop-core/internal/handler"
	"secureop-core/internal/model"
	"secureop-core/internal/server"
	"secureop-core/internal/service"
	"secureop-core/internal/service/mq"

	"secureop-core/pkg/cache"
	"secureop-core/pkg/config"
	"secureop-core/pkg/database"
	"secureop-core/pkg/logger"
	"secureop-core/pkg/monitor"
	"secureop-core/pkg/validator"

	"go.uber.org/zap"
)

// @title SecureOp Core API
// @version 1.0
// @description Multi-phase transaction authorization engine with time locks, role permissions and meta-transactions

// @host localhost:8080
// @BasePath /api/v1
func main() {
	// 0. 初始化 Config
	config.Init()

	// 初始化 Validator
	validator.Init()

	// 1. 初始化 Logger
	logger.Init(config.Global.App.Env)
	defer logger.Sync()

	// 2. 初始化监控指标
	monitor.Init()
	monitor.InitBusinessMetrics()

	// 3. 连接数据库
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		config.Global.DB.Host,
		config.Global.DB.User,
		config.Global.DB.Password,
		config.Global.DB.Name,
		config.Global.DB.Port,
	)
	db, err := database.ConnectPostgres(dsn)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}

	// 4. 连接 Redis
	rdb, err := database.ConnectRedis(config.Global.Redis.Addr, config.Global.Redis.Password, config.Global.Redis.DB)
	if err != nil {
		logger.Fatal("Redis 连接失败", zap.Error(err))
	}

	// 5. 开发环境自动建表; 生产环境走 migrate 命令
	if config.Global.App.Env == "development" {
		logger.Info("开发环境: AutoMigrate 建表")
		if err := db.AutoMigrate(model.AllModels()...); err != nil {
			logger.Fatal("AutoMigrate 失败", zap.Error(err))
		}
	}

	// 6. 组装核心服务 (权限缓存可选 Redis 共享，多实例部署时用)
	var permCache cache.Cache
	if config.Global.Redis.CacheType == "redis" {
		permCache = cache.NewRedisCache(rdb)
	} else {
		permCache = cache.NewMemoryCache(1*time.Minute, 5*time.Minute)
	}

	dispatcher := service.NewDispatcher()
	registryService := service.NewRegistryService(db, permCache)
	catalogService := service.NewCatalogService(db)
	ledgerService := service.NewLedgerService(db, catalogService, dispatcher)
	metaTxService := service.NewMetaTxService(db, ledgerService)

	// 7. 初始化聚合状态 (配置行 / 受保护角色 / 内置 schema / 定义文件)
	bootstrapper := service.NewBootstrapper(db, catalogService, registryService, dispatcher)
	if err := bootstrapper.Run(context.Background()); err != nil {
		logger.Fatal("Bootstrap 失败", zap.Error(err))
	}

	// 8. 初始化消息队列
	var producer mq.Producer
	if config.Global.Redis.MQType == "kafka" {
		logger.Info("使用 Kafka 作为消息队列...")
		producer = mq.NewKafkaProducer(config.Global.Kafka.Brokers, "secureop_events_transaction")
	} else {
		logger.Info("使用 Redis Streams 作为消息队列...")
		producer = mq.NewRedisProducer(rdb)
	}
	defer producer.Close()

	// 9. 启动消息中继服务
	relayService := service.NewRelayService(db, producer)
	go relayService.Start(context.Background())

	// 10. 启动定时任务服务
	cronService := service.NewCronService(db, rdb)
	cronService.Start()
	defer cronService.Stop()

	// 11. HTTP Router
	r := server.NewHTTPRouter(server.Handlers{
		Tx:     handler.NewTransactionHandler(ledgerService),
		Role:   handler.NewRoleHandler(registryService),
		MetaTx: handler.NewMetaTxHandler(metaTxService),
	})

	// 12. gRPC Server (健康检查)
	grpcServer, _ := server.NewGRPCServer()

	// 13. 启动应用
	app, err := server.New(server.Config{
		HttpPort: config.Global.App.HttpPort,
		GrpcPort: config.Global.App.GrpcPort,
	}, r, grpcServer)
	if err != nil {
		logger.Fatal("应用启动失败", zap.Error(err))
	}

	// 运行 (阻塞)
	app.Run()

	// 14. 退出后资源清理
	logger.Info("正在关闭数据库连接...")
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	rdb.Close()
	logger.Info("系统已退出")
}
