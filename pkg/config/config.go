// Package config 提供 TOML 配置加载、.env 与环境变量覆盖、默认值与校验
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 服务配置
type Config struct {
	// 服务名称
	ServiceName string `mapstructure:"service_name"`
	// 服务版本
	Version string `mapstructure:"version"`
	// 环境：dev, staging, prod
	Environment string `mapstructure:"environment"`

	HTTP      HTTPConfig      `mapstructure:"http"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Contract  ContractConfig  `mapstructure:"contract"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Assets    []AssetConfig   `mapstructure:"assets"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// Addr 监听地址
func (c HTTPConfig) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// GRPCConfig gRPC 服务配置
type GRPCConfig struct {
	Host                 string `mapstructure:"host"`
	Port                 int    `mapstructure:"port"`
	MaxConcurrentStreams int    `mapstructure:"max_concurrent_streams"`
}

// Addr 监听地址
func (c GRPCConfig) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动：mysql, postgres, sqlite
	Driver             string `mapstructure:"driver"`
	DSN                string `mapstructure:"dsn"`
	MaxOpenConns       int    `mapstructure:"max_open_conns"`
	MaxIdleConns       int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime    int    `mapstructure:"conn_max_lifetime"`
	LogEnabled         bool   `mapstructure:"log_enabled"`
	SlowQueryThreshold int    `mapstructure:"slow_query_threshold"`
}

// RedisConfig Redis 配置，Host 为空时不启用缓存与限流
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	MaxPoolSize  int    `mapstructure:"max_pool_size"`
	ConnTimeout  int    `mapstructure:"conn_timeout"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	// 价格缓存过期时间（秒）
	PriceTTL int `mapstructure:"price_ttl"`
}

// Enabled 是否配置了 Redis
func (c RedisConfig) Enabled() bool { return c.Host != "" }

// KafkaConfig Kafka 配置，Brokers 为空时事件只写日志
type KafkaConfig struct {
	Brokers      []string `mapstructure:"brokers"`
	TopicPrefix  string   `mapstructure:"topic_prefix"`
	MaxRetries   int      `mapstructure:"max_retries"`
	RetryBackoff int      `mapstructure:"retry_backoff"`
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
	WithCaller bool   `mapstructure:"with_caller"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// RateLimitConfig 限流配置（依赖 Redis）
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	QPS     int  `mapstructure:"qps"`
	Burst   int  `mapstructure:"burst"`
}

// ContractConfig 合约部署参数
type ContractConfig struct {
	// 部署者，唯一的管理员
	Owner string `mapstructure:"owner"`
	// 合约托管账户，抵押品锁定在此
	Principal string `mapstructure:"principal"`
	// PUT 抵押校验与行权使用的参考价格符号
	ReferenceSymbol string `mapstructure:"reference_symbol"`
	// 不可下架的结算资产
	CriticalAssets []string `mapstructure:"critical_assets"`
	// 不可下架的价格符号
	CriticalSymbols []string `mapstructure:"critical_symbols"`
	// 初始协议费率（基点）
	ProtocolFeeRate uint64 `mapstructure:"protocol_fee_rate"`
}

// LedgerConfig 账本高度配置
type LedgerConfig struct {
	// 创世时间，RFC3339
	Genesis string `mapstructure:"genesis"`
	// 出块间隔（秒）
	BlockInterval int `mapstructure:"block_interval"`
	// 创世高度
	StartHeight uint64 `mapstructure:"start_height"`
}

// GenesisTime 解析创世时间
func (c LedgerConfig) GenesisTime() (time.Time, error) {
	return time.Parse(time.RFC3339, c.Genesis)
}

// AssetConfig 启动时注册的结算资产
type AssetConfig struct {
	ID       string          `mapstructure:"id"`
	Name     string          `mapstructure:"name"`
	Symbol   string          `mapstructure:"symbol"`
	Decimals uint8           `mapstructure:"decimals"`
	URI      string          `mapstructure:"uri"`
	Balances []BalanceConfig `mapstructure:"balances"`
}

// BalanceConfig 创世余额
type BalanceConfig struct {
	Principal string `mapstructure:"principal"`
	Amount    uint64 `mapstructure:"amount"`
}

// Load 从 TOML 文件加载配置，文件缺失时使用默认值；支持 .env 与 APP_ 前缀环境变量覆盖
func Load(configPath string) (*Config, error) {
	// .env 不存在不算错误
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.Environment == "" {
		c.Environment = "dev"
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}
	if c.GRPC.Port <= 0 || c.GRPC.Port > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPC.Port)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required for %s driver", c.Database.Driver)
	}
	if c.Contract.Owner == "" {
		return fmt.Errorf("contract.owner is required")
	}
	if c.Contract.Principal == "" {
		return fmt.Errorf("contract.principal is required")
	}
	if c.Contract.Owner == c.Contract.Principal {
		return fmt.Errorf("contract.owner must differ from contract.principal")
	}
	if c.Contract.ProtocolFeeRate > 1000 {
		return fmt.Errorf("contract.protocol_fee_rate must be <= 1000, got %d", c.Contract.ProtocolFeeRate)
	}
	if c.Ledger.BlockInterval <= 0 {
		return fmt.Errorf("ledger.block_interval must be positive")
	}
	if _, err := c.Ledger.GenesisTime(); err != nil {
		return fmt.Errorf("invalid ledger.genesis: %w", err)
	}
	for _, a := range c.Assets {
		if a.ID == "" {
			return fmt.Errorf("asset id is required")
		}
	}
	return nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "optionsvault")
	v.SetDefault("version", "dev")
	v.SetDefault("environment", "dev")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 30)

	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50051)
	v.SetDefault("grpc.max_concurrent_streams", 1000)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "optionsvault.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 0)
	v.SetDefault("database.log_enabled", false)
	v.SetDefault("database.slow_query_threshold", 1000)

	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_pool_size", 10)
	v.SetDefault("redis.conn_timeout", 5)
	v.SetDefault("redis.read_timeout", 3)
	v.SetDefault("redis.write_timeout", 3)
	v.SetDefault("redis.price_ttl", 30)

	v.SetDefault("kafka.topic_prefix", "optionsvault")
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_backoff", 100)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/optionsvault.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.with_caller", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.qps", 50)
	v.SetDefault("ratelimit.burst", 100)

	v.SetDefault("contract.reference_symbol", "BTC-USD")
	v.SetDefault("contract.critical_symbols", []string{"BTC-USD", "STX-USD"})
	v.SetDefault("contract.protocol_fee_rate", 50)

	v.SetDefault("ledger.genesis", "2024-01-01T00:00:00Z")
	v.SetDefault("ledger.block_interval", 600)
	v.SetDefault("ledger.start_height", 0)
}
