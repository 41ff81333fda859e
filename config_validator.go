/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-10-09 11:40:02
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-15 10:20:44
 * @FilePath: \go-relay\config_validator.go
 * @Description: 配置验证和自动修复机制
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package relay

import (
	"fmt"
	"strings"
	"time"

	"github.com/kamalyes/go-relay/models"
	"github.com/kamalyes/go-relay/protocol"
)

// ValidationLevel 验证级别
type ValidationLevel int

const (
	ValidationLevelInfo     ValidationLevel = 1 // 信息级别
	ValidationLevelWarning  ValidationLevel = 2 // 警告级别
	ValidationLevelError    ValidationLevel = 3 // 错误级别
	ValidationLevelCritical ValidationLevel = 4 // 严重级别
)

// String 级别名称
func (l ValidationLevel) String() string {
	switch l {
	case ValidationLevelCritical:
		return "严重"
	case ValidationLevelError:
		return "错误"
	case ValidationLevelWarning:
		return "警告"
	default:
		return "信息"
	}
}

// ValidationResult 验证结果
type ValidationResult struct {
	Level       ValidationLevel     `json:"level"`
	Field       string              `json:"field"`
	Message     string              `json:"message"`
	Suggestion  string              `json:"suggestion"`
	AutoFixable bool                `json:"auto_fixable"`
	FixAction   func(*Config) error `json:"-"`
}

// ValidationRule 验证规则接口
type ValidationRule interface {
	// Validate 验证配置
	Validate(config *Config) []ValidationResult

	// GetName 获取规则名称
	GetName() string
}

// ConfigValidator 配置验证器
type ConfigValidator struct {
	rules []ValidationRule
}

// NewConfigValidator 创建带默认规则的验证器
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{
		rules: []ValidationRule{
			&NodeConfigRule{},
			&QueueConfigRule{},
			&SubscriptionConfigRule{},
			&SourceConfigRule{},
			&TenantConfigRule{},
		},
	}
}

// AddRule 添加验证规则
func (cv *ConfigValidator) AddRule(rule ValidationRule) {
	cv.rules = append(cv.rules, rule)
}

// Validate 执行所有规则
func (cv *ConfigValidator) Validate(config *Config) []ValidationResult {
	if config == nil || config.WSC == nil {
		return []ValidationResult{{Level: ValidationLevelCritical, Field: "Config", Message: "配置为空"}}
	}
	var results []ValidationResult
	for _, rule := range cv.rules {
		results = append(results, rule.Validate(config)...)
	}
	return results
}

// AutoFix 修复可自动修复的问题，返回已修复项
func (cv *ConfigValidator) AutoFix(config *Config) ([]ValidationResult, error) {
	fixed := make([]ValidationResult, 0)
	for _, result := range cv.Validate(config) {
		if !result.AutoFixable || result.FixAction == nil {
			continue
		}
		if err := result.FixAction(config); err != nil {
			return fixed, models.NewConfigError(fmt.Sprintf("fix %s: %v", result.Field, err))
		}
		fixed = append(fixed, ValidationResult{
			Level:   ValidationLevelInfo,
			Field:   result.Field,
			Message: fmt.Sprintf("已自动修复: %s", result.Message),
		})
	}
	return fixed, nil
}

// ValidateAndReport 验证并生成文本报告
func (cv *ConfigValidator) ValidateAndReport(config *Config) string {
	results := cv.Validate(config)

	var report strings.Builder
	report.WriteString("配置验证报告\n")
	report.WriteString("================\n\n")

	counts := map[ValidationLevel]int{}
	for _, result := range results {
		counts[result.Level]++
		report.WriteString(fmt.Sprintf("[%s] %s: %s\n", result.Level, result.Field, result.Message))
		if result.Suggestion != "" {
			report.WriteString(fmt.Sprintf("   建议: %s\n", result.Suggestion))
		}
		if result.AutoFixable {
			report.WriteString("   可自动修复\n")
		}
	}

	report.WriteString(fmt.Sprintf("\n汇总: 严重=%d, 错误=%d, 警告=%d, 信息=%d\n",
		counts[ValidationLevelCritical], counts[ValidationLevelError],
		counts[ValidationLevelWarning], counts[ValidationLevelInfo]))
	return report.String()
}

// Validate 先自动修复，仍有错误级别问题时返回配置错误
func (c *Config) Validate() error {
	validator := NewConfigValidator()
	if _, err := validator.AutoFix(c); err != nil {
		return err
	}

	var problems []string
	for _, result := range validator.Validate(c) {
		if result.Level >= ValidationLevelError {
			problems = append(problems, fmt.Sprintf("%s: %s", result.Field, result.Message))
		}
	}
	if len(problems) > 0 {
		return models.NewConfigError(strings.Join(problems, "; "))
	}
	return nil
}

// ========== 具体验证规则实现 ==========

// NodeConfigRule 节点与连接参数
type NodeConfigRule struct{}

func (r *NodeConfigRule) GetName() string { return "NodeConfig" }

func (r *NodeConfigRule) Validate(config *Config) []ValidationResult {
	var results []ValidationResult

	if config.NodeIP == "" {
		results = append(results, ValidationResult{
			Level:       ValidationLevelError,
			Field:       "NodeIP",
			Message:     "监听地址未设置",
			Suggestion:  "使用 0.0.0.0 监听所有接口",
			AutoFixable: true,
			FixAction: func(c *Config) error {
				c.NodeIP = "0.0.0.0"
				return nil
			},
		})
	}

	if config.NodePort <= 0 || config.NodePort > 65535 {
		results = append(results, ValidationResult{
			Level:      ValidationLevelCritical,
			Field:      "NodePort",
			Message:    fmt.Sprintf("监听端口无效: %d", config.NodePort),
			Suggestion: "设置有效的端口号 (1-65535)",
		})
	}

	if config.HeartbeatInterval <= 0 {
		results = append(results, ValidationResult{
			Level:       ValidationLevelError,
			Field:       "HeartbeatInterval",
			Message:     "心跳间隔必须大于0",
			Suggestion:  "推荐设置为30秒",
			AutoFixable: true,
			FixAction: func(c *Config) error {
				c.HeartbeatInterval = 30 * time.Second
				return nil
			},
		})
	} else if config.HeartbeatInterval > 5*time.Minute {
		results = append(results, ValidationResult{
			Level:      ValidationLevelWarning,
			Field:      "HeartbeatInterval",
			Message:    fmt.Sprintf("心跳间隔过长: %s", config.HeartbeatInterval),
			Suggestion: "代理或负载均衡器可能提前关闭空闲连接",
		})
	}

	if config.WriteTimeout <= 0 {
		results = append(results, ValidationResult{
			Level:       ValidationLevelWarning,
			Field:       "WriteTimeout",
			Message:     "未设置写超时，慢连接可能长期占用写出协程",
			AutoFixable: true,
			FixAction: func(c *Config) error {
				c.WriteTimeout = 10 * time.Second
				return nil
			},
		})
	}

	return results
}

// QueueConfigRule 队列容量
type QueueConfigRule struct{}

func (r *QueueConfigRule) GetName() string { return "QueueConfig" }

func (r *QueueConfigRule) Validate(config *Config) []ValidationResult {
	var results []ValidationResult

	if config.MessageBufferSize <= 0 {
		results = append(results, ValidationResult{
			Level:       ValidationLevelError,
			Field:       "MessageBufferSize",
			Message:     "单连接发送队列必须大于0",
			AutoFixable: true,
			FixAction: func(c *Config) error {
				c.MessageBufferSize = 256
				return nil
			},
		})
	}

	if config.DispatchQueueSize <= 0 {
		results = append(results, ValidationResult{
			Level:       ValidationLevelError,
			Field:       "DispatchQueueSize",
			Message:     "分发队列必须大于0",
			AutoFixable: true,
			FixAction: func(c *Config) error {
				c.DispatchQueueSize = 4096
				return nil
			},
		})
	} else if config.DispatchQueueSize < config.MessageBufferSize {
		results = append(results, ValidationResult{
			Level:      ValidationLevelWarning,
			Field:      "DispatchQueueSize",
			Message:    "分发队列小于单连接发送队列，突发流量时会先在分发阶段丢弃",
			Suggestion: "分发队列建议为发送队列的数倍",
		})
	}

	return results
}

// SubscriptionConfigRule 订阅频道集合
type SubscriptionConfigRule struct{}

func (r *SubscriptionConfigRule) GetName() string { return "SubscriptionConfig" }

func (r *SubscriptionConfigRule) Validate(config *Config) []ValidationResult {
	var results []ValidationResult

	if len(config.EventKinds) == 0 {
		results = append(results, ValidationResult{
			Level:       ValidationLevelError,
			Field:       "EventKinds",
			Message:     "未配置订阅的事件类型",
			AutoFixable: true,
			FixAction: func(c *Config) error {
				c.EventKinds = append([]models.EventKind(nil), models.UpstreamEventKinds...)
				return nil
			},
		})
	}
	for _, kind := range config.EventKinds {
		if !kind.IsUpstream() {
			results = append(results, ValidationResult{
				Level:   ValidationLevelError,
				Field:   "EventKinds",
				Message: fmt.Sprintf("不是上游事件类型: %s", kind),
			})
		}
	}

	if len(config.Tenants) == 0 && !config.Broker.Pattern {
		level := ValidationLevelWarning
		if config.Postgres.Enabled() || config.Broker.Enabled() {
			level = ValidationLevelError
		}
		results = append(results, ValidationResult{
			Level:      level,
			Field:      "Tenants",
			Message:    "未配置租户，数据源没有可订阅的频道",
			Suggestion: "设置 RELAY_TENANTS 或开启 RELAY_BROKER_PATTERN",
		})
	}

	return results
}

// SourceConfigRule 上游数据源
type SourceConfigRule struct{}

func (r *SourceConfigRule) GetName() string { return "SourceConfig" }

func (r *SourceConfigRule) Validate(config *Config) []ValidationResult {
	var results []ValidationResult

	if !config.Broker.Enabled() && !config.Postgres.Enabled() {
		results = append(results, ValidationResult{
			Level:      ValidationLevelWarning,
			Field:      "Sources",
			Message:    "未配置任何上游数据源，只能收到心跳与手动触发事件",
			Suggestion: "设置 RELAY_REDIS_ADDR 或 RELAY_DATABASE_URL",
		})
	}

	if config.Broker.DB < 0 {
		results = append(results, ValidationResult{
			Level:   ValidationLevelError,
			Field:   "Broker.DB",
			Message: fmt.Sprintf("Redis DB 无效: %d", config.Broker.DB),
		})
	}

	pg := config.Postgres
	if pg.Enabled() {
		if pg.MinReconnectInterval <= 0 || pg.MaxReconnectInterval < pg.MinReconnectInterval {
			results = append(results, ValidationResult{
				Level:       ValidationLevelError,
				Field:       "Postgres.ReconnectInterval",
				Message:     fmt.Sprintf("重连间隔无效: min=%s max=%s", pg.MinReconnectInterval, pg.MaxReconnectInterval),
				AutoFixable: true,
				FixAction: func(c *Config) error {
					c.Postgres.MinReconnectInterval = 10 * time.Second
					c.Postgres.MaxReconnectInterval = time.Minute
					return nil
				},
			})
		}
	}

	if config.StartupTimeout <= 0 {
		results = append(results, ValidationResult{
			Level:       ValidationLevelError,
			Field:       "StartupTimeout",
			Message:     "上游初始连接超时必须大于0",
			AutoFixable: true,
			FixAction: func(c *Config) error {
				c.StartupTimeout = 10 * time.Second
				return nil
			},
		})
	}

	return results
}

// TenantConfigRule 默认租户与测试接口
type TenantConfigRule struct{}

func (r *TenantConfigRule) GetName() string { return "TenantConfig" }

func (r *TenantConfigRule) Validate(config *Config) []ValidationResult {
	var results []ValidationResult

	if !config.DefaultTenant.IsEmpty() {
		if _, err := protocol.ParseTenantParam(config.DefaultTenant.String()); err != nil {
			results = append(results, ValidationResult{
				Level:   ValidationLevelError,
				Field:   "DefaultTenant",
				Message: err.Error(),
			})
		}
	}

	if config.EnableTestEndpoints {
		results = append(results, ValidationResult{
			Level:      ValidationLevelWarning,
			Field:      "EnableTestEndpoints",
			Message:    "测试接口已开放，任何人都可以向租户注入事件",
			Suggestion: "生产环境关闭 RELAY_ENABLE_TEST_ENDPOINTS",
		})
	}

	return results
}
