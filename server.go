/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-10-10 09:30:18
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-15 10:20:44
 * @FilePath: \go-relay\server.go
 * @Description: 中继服务 - 组装 Hub、数据源、仓库与 HTTP 接入层，负责启动与优雅关闭
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package relay

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kamalyes/go-cachex"
	"github.com/kamalyes/go-toolbox/pkg/syncx"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kamalyes/go-relay/handler"
	"github.com/kamalyes/go-relay/hub"
	"github.com/kamalyes/go-relay/metrics"
	"github.com/kamalyes/go-relay/middleware"
	"github.com/kamalyes/go-relay/models"
	"github.com/kamalyes/go-relay/repository"
	"github.com/kamalyes/go-relay/source"
)

// MetricsNamespace Prometheus 指标前缀
const MetricsNamespace = "relay"

// ServerOption 服务可选项
type ServerOption func(*Server)

// WithServerLogger 设置日志器
func WithServerLogger(l RelayLogger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRedisClient 使用外部创建的 Redis 客户端（不会在关闭时释放）
func WithRedisClient(client *redis.Client) ServerOption {
	return func(s *Server) {
		s.redis = client
		s.ownRedis = false
	}
}

// WithAuditDB 使用外部创建的审计数据库连接
func WithAuditDB(db *gorm.DB) ServerOption {
	return func(s *Server) { s.auditDB = db }
}

// WithListenerFactory 替换 PostgreSQL 监听器工厂
func WithListenerFactory(factory source.ListenerFactory) ServerOption {
	return func(s *Server) { s.listenerFactory = factory }
}

// Server 中继服务
type Server struct {
	config  *Config
	logger  RelayLogger
	metrics *metrics.Collector

	hub      *hub.Hub
	pipeline *source.Pipeline
	sources  []source.Source

	redis           *redis.Client
	ownRedis        bool
	auditDB         *gorm.DB
	auditRepo       repository.ConnectionRecordRepository
	listenerFactory source.ListenerFactory

	engine     *gin.Engine
	httpServer *http.Server
	listener   net.Listener
	serveErr   chan error

	started  atomic.Bool
	stopOnce sync.Once
}

// NewServer 校验配置并组装各组件，不建立任何网络连接
func NewServer(config *Config, opts ...ServerOption) (*Server, error) {
	if config == nil {
		config = NewDefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		config:   config,
		ownRedis: true,
		serveErr: make(chan error, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = middleware.InitLogger(config.WSC)
	}
	s.metrics = metrics.NewCollector(MetricsNamespace)

	s.hub = hub.NewHub(config.WSC,
		hub.WithLogger(s.logger),
		hub.WithMetrics(s.metrics),
		hub.WithDispatchQueueSize(config.DispatchQueueSize),
		hub.WithSSEEventField(config.SSEEventField),
		hub.WithStatsSyncInterval(config.StatsSyncInterval),
	)
	s.pipeline = source.NewPipeline(s.hub, s.logger, s.metrics)

	if config.Broker.Enabled() && s.redis == nil {
		s.redis = redis.NewClient(&redis.Options{
			Addr:     config.Broker.Addr,
			Password: config.Broker.Password,
			DB:       config.Broker.DB,
		})
	}
	if s.redis != nil {
		s.wireRedis()
	} else if config.DedupWindow > 0 {
		s.hub.SetDeduplicator(hub.NewMemoryDeduplicator(config.DedupWindow))
	}

	if config.Postgres.Enabled() {
		factory := s.listenerFactory
		if factory == nil {
			factory = source.PQListenerFactory(config.Postgres.DSN,
				config.Postgres.MinReconnectInterval, config.Postgres.MaxReconnectInterval)
		}
		s.sources = append(s.sources, source.NewPostgresSource(factory, source.PostgresSourceConfig{
			Channels:     config.Channels(),
			StartTimeout: config.StartupTimeout,
			PingInterval: config.Postgres.PingInterval,
		}, s.pipeline, s.logger, s.metrics))
	}

	s.hub.SetChannelProvider(s.channels)

	s.engine = handler.NewRouter(handler.New(s.hub, handler.Config{
		DefaultTenant:       config.DefaultTenant,
		EnableTestEndpoints: config.EnableTestEndpoints,
		AllowedOrigins:      config.AllowedOrigins,
		WriteTimeout:        config.WriteTimeout,
	},
		handler.WithLogger(s.logger),
		handler.WithSimulator(s.pipeline),
		handler.WithSources(s.sourceKinds),
	))
	s.httpServer = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// wireRedis Redis 承担的组件：消息代理订阅、节点统计、集群触发、跨节点去重
func (s *Server) wireRedis() {
	if s.config.Broker.Enabled() {
		cfg := source.RedisSourceConfig{StartTimeout: s.config.StartupTimeout}
		if s.config.Broker.Pattern {
			cfg.Patterns = source.BuildPatterns(s.config.EventKinds)
		} else {
			cfg.Channels = s.config.Channels()
		}
		s.sources = append(s.sources, source.NewRedisSource(s.redis, cfg, s.pipeline, s.logger, s.metrics))
	}

	s.hub.SetStatsRepository(repository.NewRedisNodeStatsRepository(s.redis, nil))
	s.hub.SetPubSub(cachex.NewPubSub(s.redis, cachex.PubSubConfig{
		Namespace: "relay",
		Logger:    s.logger,
	}))
	if s.config.DedupWindow > 0 {
		s.hub.SetDeduplicator(hub.NewRedisDeduplicator(s.redis, "", s.config.DedupWindow, s.logger))
	}
}

// Start 按顺序启动：审计库、Hub、上游数据源、HTTP 监听
// 任一步骤失败都会回滚已启动的部分并返回错误，进程应以非零状态退出
func (s *Server) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}

	if err := s.openAudit(); err != nil {
		return err
	}

	go s.hub.Run()
	if err := s.hub.WaitForStartWithTimeout(s.config.StartupTimeout); err != nil {
		s.hub.Shutdown()
		return err
	}

	for i, src := range s.sources {
		if err := src.Start(ctx); err != nil {
			s.logger.ErrorKV("上游数据源启动失败", "source", src.Name(), "error", err)
			for _, started := range s.sources[:i] {
				_ = started.Stop()
			}
			s.hub.Shutdown()
			return err
		}
	}

	listener, err := net.Listen("tcp", s.config.ListenAddr())
	if err != nil {
		s.logger.ErrorKV("端口监听失败", "addr", s.config.ListenAddr(), "error", err)
		s.stopSources()
		s.hub.Shutdown()
		return err
	}
	s.listener = listener

	syncx.Go().
		OnPanic(func(r any) {
			s.logger.ErrorKV("HTTP 服务 panic", "panic", r)
		}).
		OnError(func(err error) {
			s.logger.ErrorKV("HTTP 服务异常退出", "error", err)
		}).
		ExecWithContext(func(context.Context) error {
			defer close(s.serveErr)
			if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.serveErr <- err
				return err
			}
			return nil
		})

	s.logger.InfoKV("中继服务已启动",
		"addr", listener.Addr().String(),
		"node_id", s.hub.GetNodeID(),
		"sources", s.sourceKinds(),
		"channels", len(s.channels()),
	)
	return nil
}

// openAudit 连接 MySQL 审计库并迁移表结构
func (s *Server) openAudit() error {
	if s.auditDB == nil && s.config.AuditDSN != "" {
		db, err := gorm.Open(mysql.Open(s.config.AuditDSN), &gorm.Config{
			Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
			SkipDefaultTransaction: true,
		})
		if err != nil {
			return err
		}
		if err := db.AutoMigrate(&models.ConnectionRecord{}); err != nil {
			return err
		}
		s.auditDB = db
	}
	if s.auditDB == nil {
		return nil
	}
	s.auditRepo = repository.NewConnectionRecordRepository(s.auditDB, nil, s.logger)
	s.hub.SetConnectionRecordRepository(s.auditRepo)
	return nil
}

// Shutdown 优雅关闭：先停上游，再关闭所有下行连接，最后停止 HTTP 监听
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	s.stopOnce.Do(func() {
		s.stopSources()

		if err := s.hub.SafeShutdown(); err != nil {
			errs = append(errs, err)
		}

		if s.listener != nil {
			if err := s.httpServer.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}

		if s.auditRepo != nil {
			if err := s.auditRepo.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if s.redis != nil && s.ownRedis {
			if err := s.redis.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		s.logger.InfoKV("中继服务已停止", "errors", len(errs))
	})
	return errors.Join(errs...)
}

func (s *Server) stopSources() {
	for _, src := range s.sources {
		if err := src.Stop(); err != nil {
			s.logger.WarnKV("停止数据源失败", "source", src.Name(), "error", err)
		}
	}
}

// Done HTTP 服务意外退出时返回错误，正常关闭时通道关闭
func (s *Server) Done() <-chan error { return s.serveErr }

// Addr 实际监听地址，未启动时为配置地址
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.ListenAddr()
}

// Hub 返回中继核心
func (s *Server) Hub() *hub.Hub { return s.hub }

// Handler 返回 HTTP 处理器
func (s *Server) Handler() http.Handler { return s.engine }

// Sources 已配置的数据源
func (s *Server) Sources() []source.Source { return s.sources }

func (s *Server) sourceKinds() []models.SourceKind {
	kinds := make([]models.SourceKind, 0, len(s.sources))
	for _, src := range s.sources {
		kinds = append(kinds, src.Name())
	}
	return kinds
}

func (s *Server) channels() []string {
	var out []string
	for _, src := range s.sources {
		out = append(out, src.Channels()...)
	}
	if out == nil {
		return []string{}
	}
	return out
}
