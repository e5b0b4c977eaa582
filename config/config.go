package config

import (
	"log"
	"time"

	"escrowflow/pkg/config"
)

// SettlementConfig escrow.tx.settled 消费配置
type SettlementConfig struct {
	DedupTTLHours int `yaml:"dedup_ttl_hours"`
	RetryTTLHours int `yaml:"retry_ttl_hours"`
}

func hours(h, def int) time.Duration {
	if h <= 0 {
		h = def
	}
	return time.Duration(h) * time.Hour
}

// DedupTTL 去重锁存活时间，默认 24 小时
func (c SettlementConfig) DedupTTL() time.Duration { return hours(c.DedupTTLHours, 24) }

// RetryTTL 重试计数存活时间，默认 1 小时
func (c SettlementConfig) RetryTTL() time.Duration { return hours(c.RetryTTLHours, 1) }

// RBACConfig 管理员名单
type RBACConfig struct {
	AdminUserIDs []int `yaml:"admin_user_ids"`
}

type Config struct {
	App        config.AppConfig       `yaml:"app"`
	Server     config.ServerConfig    `yaml:"server"`
	DB         config.DBConfig        `yaml:"db"`
	Redis      config.RedisConfig     `yaml:"redis"`
	MQ         config.MQConfig        `yaml:"mq"`
	JWT        config.JWTConfig       `yaml:"jwt"`
	TxService  config.TxServiceConfig `yaml:"tx_service"`
	Session    config.SessionConfig   `yaml:"session"`
	Outbox     config.OutboxConfig    `yaml:"outbox"`
	OTel       config.OTelConfig      `yaml:"otel"`
	Settlement SettlementConfig       `yaml:"settlement"`
	RBAC       RBACConfig             `yaml:"rbac"`
}

// LoadFrom 读取 configDir 下 base.yaml + <env>.yaml + secrets.env，再用环境变量覆盖
func LoadFrom(env, configDir string) (*Config, error) {
	cfgMap, err := config.LoadConfig(env, configDir)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := config.Decode(cfgMap, &cfg); err != nil {
		return nil, err
	}
	if cfg.App.Env == "" {
		cfg.App.Env = env
	}

	// 环境变量覆盖（优先级最高）
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideTxServiceFromEnv(&cfg.TxService)
	config.OverrideOTelFromEnv(&cfg.OTel)

	return &cfg, nil
}

func Load() *Config {
	// 使用统一配置中心
	env := config.GetConfigEnv()
	configDir := config.GetEnv("CONFIG_DIR", "config")

	cfg, err := LoadFrom(env, configDir)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}
