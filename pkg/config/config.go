package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	DB     DBConfig     `mapstructure:"db"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Kafka  KafkaConfig  `mapstructure:"kafka"`
	Engine EngineConfig `mapstructure:"engine"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	HttpPort string `mapstructure:"http_port"`
	GrpcPort string `mapstructure:"grpc_port"`
}

type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	MQType    string `mapstructure:"mq_type"`    // "redis" or "kafka"
	CacheType string `mapstructure:"cache_type"` // "memory" or "redis"
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

// EngineConfig 安全操作引擎的核心参数
type EngineConfig struct {
	ChainID         uint64 `mapstructure:"chain_id"`         // 元交易签名域中的链 ID
	TimeLockPeriod  int64  `mapstructure:"time_lock_period"` // 默认时间锁 (秒)
	MinTimeLock     int64  `mapstructure:"min_time_lock"`    // 时间锁下界 (秒)
	MaxTimeLock     int64  `mapstructure:"max_time_lock"`    // 时间锁上界 (秒)
	GasPrice        string `mapstructure:"gas_price"`        // 当前执行环境 gas price (wei, 十进制字符串, "0" 表示不限)
	HandlerContract string `mapstructure:"handler_contract"` // 元交易签名必须绑定的处理合约地址
	EventForwarder  string `mapstructure:"event_forwarder"`  // 事件转发器地址 (仅记录，尽力投递)
	DefinitionsFile string `mapstructure:"definitions_file"` // 启动时批量加载的 schema/role 定义
}

var Global Config

func Init() {
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yaml")   // REQUIRED if the config file does not have the extension in the name
	viper.AddConfigPath(".")      // optionally look for config in the working directory
	viper.AddConfigPath("./configs")

	// 环境变量设置
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 设置默认值
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; ignore error if desired
			log.Printf("Warning: Config file not found, using defaults and environment variables")
		} else {
			// Config file was found but another error was produced
			log.Fatalf("Fatal error config file: %s \n", err)
		}
	}

	if err := viper.Unmarshal(&Global); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}

	log.Printf("Configuration loaded successfully. Env: %s", Global.App.Env)
}

func setDefaults() {
	viper.SetDefault("app.env", "development")
	viper.SetDefault("app.http_port", "8080")
	viper.SetDefault("app.grpc_port", "50051")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.user", "secureop_user")
	viper.SetDefault("db.password", "secureop_password")
	viper.SetDefault("db.name", "secureop_db")

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.mq_type", "redis")
	viper.SetDefault("redis.cache_type", "memory")

	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})

	viper.SetDefault("engine.chain_id", 1)
	viper.SetDefault("engine.time_lock_period", 86400) // 24h
	viper.SetDefault("engine.min_time_lock", 60)
	viper.SetDefault("engine.max_time_lock", 90*86400)
	viper.SetDefault("engine.gas_price", "0")
	viper.SetDefault("engine.definitions_file", "configs/definitions.yaml")
}
