package service

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"secureop-core/internal/model"
	"secureop-core/pkg/config"
	"secureop-core/pkg/monitor"
)

// 测试网关的固定参数
const (
	testChainID         = uint64(1)
	testHandlerContract = "0x00000000000000000000000000000000000000A1"
)

func TestMain(m *testing.M) {
	// Prometheus 指标只能注册一次
	monitor.InitBusinessMetrics()

	// 内置处理器读取的引擎参数
	config.Global.Engine.MinTimeLock = 60
	config.Global.Engine.MaxTimeLock = 90 * 86400
	config.Global.Engine.GasPrice = "0"

	os.Exit(m.Run())
}

// testDB 连接测试数据库，连不上就跳过 (本地无 Postgres 时不阻塞单元测试)
func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv("SECUREOP_TEST_DSN")
	if dsn == "" {
		dsn = "host=localhost user=secureop_user password=secureop_password dbname=secureop_test port=5432 sslmode=disable"
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Skip("Skipping DB test: postgres not available? " + err.Error())
	}
	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Ping(); err != nil {
			t.Skip("Skipping DB test: postgres not reachable? " + err.Error())
		}
	}

	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		t.Fatalf("automigrate failed: %v", err)
	}
	return db
}

// testServices 组装一套互相连好的服务，并保证配置行存在
func testServices(t *testing.T, db *gorm.DB) (*RegistryService, *CatalogService, *LedgerService, *MetaTxService, *Dispatcher) {
	t.Helper()

	settings := model.EngineSettings{
		ID: 1, ChainID: testChainID, TimeLockPeriod: 3600, HandlerContract: testHandlerContract,
	}
	if err := db.Where("id = 1").FirstOrCreate(&settings).Error; err != nil {
		t.Fatalf("settings row: %v", err)
	}

	dispatcher := NewDispatcher()
	registry := NewRegistryService(db, nil)
	catalog := NewCatalogService(db)
	ledger := NewLedgerService(db, catalog, dispatcher)
	metatx := NewMetaTxService(db, ledger)
	return registry, catalog, ledger, metatx, dispatcher
}

// uniq 给角色名 / 操作类型名加唯一后缀，避免重复跑测试时撞唯一索引
func uniq(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

// forceRelease 把记录的时间锁调到过去，模拟等待期已过
func forceRelease(t *testing.T, db *gorm.DB, txID uint64) {
	t.Helper()
	err := db.Model(&model.Transaction{}).Where("id = ?", txID).
		Update("release_time", time.Now().Add(-time.Minute)).Error
	if err != nil {
		t.Fatalf("force release: %v", err)
	}
}

// uniqSelector 生成本次测试独有的 4 字节选择器
func uniqSelector() string {
	return fmt.Sprintf("0x%08x", uint32(time.Now().UnixNano()))
}

// grantActions 建一个一次性角色，把选择器上的若干动作授予钱包
func grantActions(t *testing.T, registry *RegistryService, selector, wallet string, actions ...model.TxAction) {
	t.Helper()
	role, err := registry.CreateRole(testCtx, uniq("GRANT"), 4, false)
	require.NoError(t, err)
	require.NoError(t, registry.AssignWallet(testCtx, role.RoleHash, wallet))
	require.NoError(t, registry.AddFunctionToRole(testCtx, role.RoleHash, selector, actions, false, false))
}

var testCtx = context.Background()
