package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig 应用基础配置
type AppConfig struct {
	Name string `yaml:"name"`
	Env  string `yaml:"env"` // local / staging / production
}

// DBConfig 数据库配置
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	// 慢查询阈值（毫秒），0 表示使用默认值
	SlowQueryMS int `yaml:"slow_query_ms"`
	MaxConns    int `yaml:"max_conns"`
}

// MQConfig 消息队列配置
type MQConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port string `yaml:"port"`
}

// TxServiceConfig 交易执行服务（钱包/链上后端）配置
type TxServiceConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout 返回请求超时，未配置时为 10 秒
func (c TxServiceConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SessionConfig 对话框作用域（session）配置
type SessionConfig struct {
	TTLMinutes int `yaml:"ttl_minutes"`
	Capacity   int `yaml:"capacity"`
}

// TTL 返回 session 的存活时间，默认 30 分钟
func (c SessionConfig) TTL() time.Duration {
	if c.TTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.TTLMinutes) * time.Minute
}

// OutboxConfig Outbox Dispatcher 配置
type OutboxConfig struct {
	MaxRetries      int `yaml:"max_retries"`
	IntervalSeconds int `yaml:"interval_seconds"`
	BatchSize       int `yaml:"batch_size"`
}

// OTelConfig OpenTelemetry 配置
type OTelConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Version  string `yaml:"version"`
}

// OverrideDBFromEnv 从环境变量覆盖数据库配置
func OverrideDBFromEnv(cfg *DBConfig) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Name = name
	}
}

// OverrideMQFromEnv 从环境变量覆盖MQ配置
func OverrideMQFromEnv(cfg *MQConfig) {
	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.URL = url
	}
}

// OverrideRedisFromEnv 从环境变量覆盖Redis配置
func OverrideRedisFromEnv(cfg *RedisConfig) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Password = password
	}
}

// OverrideJWTFromEnv 从环境变量覆盖JWT配置
func OverrideJWTFromEnv(cfg *JWTConfig) {
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Secret = secret
	}
}

// OverrideServerFromEnv 从环境变量覆盖服务器配置
func OverrideServerFromEnv(cfg *ServerConfig) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}
}

// OverrideTxServiceFromEnv 从环境变量覆盖交易服务配置
func OverrideTxServiceFromEnv(cfg *TxServiceConfig) {
	if url := os.Getenv("TX_SERVICE_URL"); url != "" {
		cfg.URL = url
	}
}

// OverrideOTelFromEnv 从环境变量覆盖 OpenTelemetry 配置
func OverrideOTelFromEnv(cfg *OTelConfig) {
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		cfg.Endpoint = endpoint
	}
	if enabled := os.Getenv("OTEL_ENABLED"); enabled != "" {
		cfg.Enabled = strings.EqualFold(enabled, "true") || enabled == "1"
	}
}
