/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-10-09 09:12:35
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-15 10:20:44
 * @FilePath: \go-relay\config.go
 * @Description: 中继配置 - 内嵌 go-config WSC 配置，扩展上游数据源与接入参数
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package relay

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	wscconfig "github.com/kamalyes/go-config/pkg/wsc"
	"github.com/kamalyes/go-toolbox/pkg/osx"

	"github.com/kamalyes/go-relay/models"
	"github.com/kamalyes/go-relay/protocol"
	"github.com/kamalyes/go-relay/source"
)

// 环境变量前缀
const EnvPrefix = "RELAY_"

// BrokerConfig Redis 消息代理配置
type BrokerConfig struct {
	Addr     string // 为空表示不启用
	Password string
	DB       int
	Pattern  bool // 使用 PSUBSCRIBE <kind>_* 订阅所有租户
}

// Enabled 是否启用
func (b BrokerConfig) Enabled() bool { return b.Addr != "" }

// PostgresConfig PostgreSQL LISTEN/NOTIFY 配置
type PostgresConfig struct {
	DSN                  string // 为空表示不启用
	MinReconnectInterval time.Duration
	MaxReconnectInterval time.Duration
	PingInterval         time.Duration
}

// Enabled 是否启用
func (p PostgresConfig) Enabled() bool { return p.DSN != "" }

// Config 中继配置
type Config struct {
	*wscconfig.WSC

	AllowedOrigins      []string           // CORS 与 WebSocket 来源白名单
	EventKinds          []models.EventKind // 订阅的事件类型
	Tenants             []models.TenantID  // 已知租户，用于枚举订阅频道
	Broker              BrokerConfig
	Postgres            PostgresConfig
	AuditDSN            string          // MySQL 连接审计，为空表示不记录
	DefaultTenant       models.TenantID // 请求未携带租户时使用，为空则拒绝
	EnableTestEndpoints bool            // 开放 /trigger 与 /simulate
	SSEEventField       bool            // SSE 帧是否带 event 行
	DedupWindow         time.Duration   // eventId 去重窗口，0 表示不去重
	DispatchQueueSize   int
	StatsSyncInterval   time.Duration
	StartupTimeout      time.Duration // 上游初始连接超时
}

// NewDefaultConfig 创建默认配置
func NewDefaultConfig() *Config {
	return &Config{
		WSC: wscconfig.Default().
			WithNodeInfo("0.0.0.0", 3001).
			WithHeartbeatInterval(30 * time.Second),
		AllowedOrigins: []string{"*"},
		EventKinds:     append([]models.EventKind(nil), models.UpstreamEventKinds...),
		Tenants:        []models.TenantID{"1"},
		Postgres: PostgresConfig{
			MinReconnectInterval: 10 * time.Second,
			MaxReconnectInterval: time.Minute,
			PingInterval:         90 * time.Second,
		},
		SSEEventField:     true,
		DispatchQueueSize: 4096,
		StatsSyncInterval: 15 * time.Second,
		StartupTimeout:    10 * time.Second,
	}
}

// ListenAddr HTTP 监听地址
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.NodeIP, c.NodePort)
}

// Channels 订阅频道集合 <kind>_<tenant>
func (c *Config) Channels() []string {
	return source.BuildChannels(c.EventKinds, c.Tenants)
}

// ============================================================================
// 链式设置
// ============================================================================

// WithListen 设置监听地址
func (c *Config) WithListen(ip string, port int) *Config {
	c.NodeIP, c.NodePort = ip, port
	return c
}

// WithHeartbeatInterval 设置心跳间隔
func (c *Config) WithHeartbeatInterval(d time.Duration) *Config {
	c.WSC.HeartbeatInterval = d
	return c
}

// WithAllowedOrigins 设置来源白名单
func (c *Config) WithAllowedOrigins(origins ...string) *Config {
	c.AllowedOrigins = origins
	return c
}

// WithEventKinds 设置订阅的事件类型
func (c *Config) WithEventKinds(kinds ...models.EventKind) *Config {
	c.EventKinds = kinds
	return c
}

// WithTenants 设置已知租户
func (c *Config) WithTenants(tenants ...models.TenantID) *Config {
	c.Tenants = tenants
	return c
}

// WithBroker 设置 Redis 消息代理
func (c *Config) WithBroker(broker BrokerConfig) *Config {
	c.Broker = broker
	return c
}

// WithPostgresDSN 设置 PostgreSQL 连接串
func (c *Config) WithPostgresDSN(dsn string) *Config {
	c.Postgres.DSN = dsn
	return c
}

// WithAuditDSN 设置 MySQL 审计连接串
func (c *Config) WithAuditDSN(dsn string) *Config {
	c.AuditDSN = dsn
	return c
}

// WithDefaultTenant 设置默认租户
func (c *Config) WithDefaultTenant(tenant models.TenantID) *Config {
	c.DefaultTenant = tenant
	return c
}

// WithTestEndpoints 开关测试接口
func (c *Config) WithTestEndpoints(enabled bool) *Config {
	c.EnableTestEndpoints = enabled
	return c
}

// WithDedupWindow 设置去重窗口
func (c *Config) WithDedupWindow(d time.Duration) *Config {
	c.DedupWindow = d
	return c
}

// ============================================================================
// 环境变量
// ============================================================================

// LoadFromEnv 在默认配置基础上读取 .env 文件与 RELAY_* 环境变量
// 解析失败的变量返回错误，而不是静默回退
func LoadFromEnv(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return nil, models.NewConfigError(fmt.Sprintf("load %s: %v", file, err))
		}
	}

	c := NewDefaultConfig()
	p := &envParser{}

	c.NodeIP = env("HOST", c.NodeIP)
	c.NodePort = p.getInt("PORT", c.NodePort)
	c.HeartbeatInterval = p.getDuration("HEARTBEAT_INTERVAL", c.HeartbeatInterval)
	c.WriteTimeout = p.getDuration("WRITE_TIMEOUT", c.WriteTimeout)
	c.MessageBufferSize = p.getInt("SEND_QUEUE_SIZE", c.MessageBufferSize)

	c.AllowedOrigins = p.getList("ALLOWED_ORIGINS", c.AllowedOrigins)
	c.EventKinds = p.getKinds("EVENT_KINDS", c.EventKinds)
	c.Tenants = p.getTenants("TENANTS", c.Tenants)

	c.Broker.Addr = env("REDIS_ADDR", c.Broker.Addr)
	c.Broker.Password = env("REDIS_PASSWORD", c.Broker.Password)
	c.Broker.DB = p.getInt("REDIS_DB", c.Broker.DB)
	c.Broker.Pattern = p.getBool("BROKER_PATTERN", c.Broker.Pattern)

	c.Postgres.DSN = env("DATABASE_URL", c.Postgres.DSN)
	c.Postgres.MinReconnectInterval = p.getDuration("LISTENER_MIN_RECONNECT", c.Postgres.MinReconnectInterval)
	c.Postgres.MaxReconnectInterval = p.getDuration("LISTENER_MAX_RECONNECT", c.Postgres.MaxReconnectInterval)
	c.Postgres.PingInterval = p.getDuration("LISTENER_PING_INTERVAL", c.Postgres.PingInterval)

	c.AuditDSN = env("AUDIT_MYSQL_DSN", c.AuditDSN)
	if raw := env("DEFAULT_TENANT", ""); raw != "" {
		tenant, err := protocol.ParseTenantParam(raw)
		if err != nil {
			p.fail("DEFAULT_TENANT", raw, err)
		}
		c.DefaultTenant = tenant
	}
	c.EnableTestEndpoints = p.getBool("ENABLE_TEST_ENDPOINTS", c.EnableTestEndpoints)
	c.SSEEventField = p.getBool("SSE_EVENT_FIELD", c.SSEEventField)
	c.DedupWindow = p.getDuration("DEDUP_WINDOW", c.DedupWindow)
	c.DispatchQueueSize = p.getInt("DISPATCH_QUEUE_SIZE", c.DispatchQueueSize)
	c.StatsSyncInterval = p.getDuration("STATS_SYNC_INTERVAL", c.StatsSyncInterval)
	c.StartupTimeout = p.getDuration("STARTUP_TIMEOUT", c.StartupTimeout)

	if len(p.errs) > 0 {
		return nil, models.NewConfigError(strings.Join(p.errs, "; "))
	}
	return c, nil
}

func env(key, fallback string) string {
	return strings.TrimSpace(osx.Getenv(EnvPrefix+key, fallback))
}

// envParser 收集解析错误
type envParser struct {
	errs []string
}

func (p *envParser) fail(key, raw string, err error) {
	p.errs = append(p.errs, fmt.Sprintf("%s%s=%q: %v", EnvPrefix, key, raw, err))
}

func (p *envParser) getInt(key string, fallback int) int {
	raw := env(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return v
}

func (p *envParser) getBool(key string, fallback bool) bool {
	raw := env(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return v
}

// getDuration 接受 Go 时长格式，纯数字按毫秒处理
func (p *envParser) getDuration(key string, fallback time.Duration) time.Duration {
	raw := env(key, "")
	if raw == "" {
		return fallback
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return v
}

func (p *envParser) getList(key string, fallback []string) []string {
	raw := env(key, "")
	if raw == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (p *envParser) getKinds(key string, fallback []models.EventKind) []models.EventKind {
	items := p.getList(key, nil)
	if items == nil {
		return fallback
	}
	out := make([]models.EventKind, 0, len(items))
	for _, item := range items {
		kind, err := models.ParseEventKind(item)
		if err != nil || !kind.IsUpstream() {
			p.fail(key, item, models.NewUnknownEventKindError(item))
			continue
		}
		out = append(out, kind)
	}
	return out
}

func (p *envParser) getTenants(key string, fallback []models.TenantID) []models.TenantID {
	items := p.getList(key, nil)
	if items == nil {
		return fallback
	}
	out := make([]models.TenantID, 0, len(items))
	for _, item := range items {
		tenant, err := protocol.ParseTenantParam(item)
		if err != nil {
			p.fail(key, item, err)
			continue
		}
		out = append(out, tenant)
	}
	return out
}
