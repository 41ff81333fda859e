/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-10-11 09:18:40
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-15 12:10:05
 * @FilePath: \go-relay\cmd\relay\main.go
 * @Description: 中继服务命令行入口
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	relay "github.com/kamalyes/go-relay"
	"github.com/kamalyes/go-relay/middleware"
	"github.com/kamalyes/go-relay/models"
)

var version = "dev"

// flags 命令行参数，显式指定时覆盖环境变量
type flags struct {
	envFile       string
	host          string
	port          int
	redisAddr     string
	databaseURL   string
	auditDSN      string
	tenants       []string
	testEndpoints bool
	pattern       bool
	debug         bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "relay:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	rootCmd := &cobra.Command{
		Use:           "relay",
		Short:         "实时变更通知中继",
		Long:          "订阅 Redis 与 PostgreSQL 的变更通知，按租户经 SSE/WebSocket 推送给浏览器。",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), config, f.debug)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&f.envFile, "env-file", ".env", "dotenv 文件路径")
	pf.StringVar(&f.host, "host", "", "监听地址 (RELAY_HOST)")
	pf.IntVarP(&f.port, "port", "p", 0, "监听端口 (RELAY_PORT)")
	pf.StringVar(&f.redisAddr, "redis-addr", "", "Redis 消息代理地址 (RELAY_REDIS_ADDR)")
	pf.StringVar(&f.databaseURL, "database-url", "", "PostgreSQL 连接串 (RELAY_DATABASE_URL)")
	pf.StringVar(&f.auditDSN, "audit-dsn", "", "MySQL 连接审计库 (RELAY_AUDIT_MYSQL_DSN)")
	pf.StringSliceVar(&f.tenants, "tenants", nil, "订阅的租户列表 (RELAY_TENANTS)")
	pf.BoolVar(&f.testEndpoints, "test-endpoints", false, "开放 /trigger 与 /simulate (RELAY_ENABLE_TEST_ENDPOINTS)")
	pf.BoolVar(&f.pattern, "broker-pattern", false, "按 <kind>_* 模式订阅 Redis (RELAY_BROKER_PATTERN)")
	pf.BoolVar(&f.debug, "debug", false, "输出调试日志")

	rootCmd.AddCommand(newCheckConfigCmd(f))
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "打印版本",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})
	return rootCmd
}

// newCheckConfigCmd 输出配置校验报告，有错误时以非零状态退出
func newCheckConfigCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "校验配置并输出报告",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), relay.NewConfigValidator().ValidateAndReport(config))
			return config.Validate()
		},
	}
}

func loadConfig(cmd *cobra.Command, f *flags) (*relay.Config, error) {
	config, err := relay.LoadFromEnv(f.envFile)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("host") {
		config.NodeIP = f.host
	}
	if changed("port") {
		config.NodePort = f.port
	}
	if changed("redis-addr") {
		config.Broker.Addr = f.redisAddr
	}
	if changed("broker-pattern") {
		config.Broker.Pattern = f.pattern
	}
	if changed("database-url") {
		config.Postgres.DSN = f.databaseURL
	}
	if changed("audit-dsn") {
		config.AuditDSN = f.auditDSN
	}
	if changed("test-endpoints") {
		config.EnableTestEndpoints = f.testEndpoints
	}
	if changed("tenants") {
		tenants := make([]models.TenantID, 0, len(f.tenants))
		for _, raw := range f.tenants {
			tenant, err := relay.ParseTenantParam(raw)
			if err != nil {
				return nil, err
			}
			tenants = append(tenants, tenant)
		}
		config.Tenants = tenants
	}
	return config, nil
}

// serve 启动服务并阻塞到收到 SIGINT/SIGTERM 或 HTTP 服务异常退出
func serve(ctx context.Context, config *relay.Config, debug bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := middleware.InitLogger(config.WSC)
	if debug {
		logger = middleware.NewDebugRelayLogger()
	}

	server, err := relay.NewServer(config, relay.WithServerLogger(logger))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		_ = server.Shutdown(context.Background())
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.InfoKV("收到退出信号，开始关闭")
	case err, ok := <-server.Done():
		if ok {
			serveErr = err
		}
	}

	timeout := config.ShutdownBaseTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		return err
	}
	return serveErr
}
