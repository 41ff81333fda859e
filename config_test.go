/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-10-09 10:05:44
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-15 11:52:30
 * @FilePath: \go-relay\config_test.go
 * @Description: 配置加载与校验测试
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package relay

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamalyes/go-relay/models"
)

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, "0.0.0.0:3001", config.ListenAddr())
	assert.Equal(t, 30*time.Second, config.HeartbeatInterval)
	assert.Equal(t, []string{"*"}, config.AllowedOrigins)
	assert.Equal(t, models.UpstreamEventKinds, config.EventKinds)
	assert.False(t, config.Broker.Enabled())
	assert.False(t, config.Postgres.Enabled())
	assert.False(t, config.EnableTestEndpoints)
	assert.True(t, config.SSEEventField)
	require.NoError(t, config.Validate())

	// 修改副本不影响全局事件类型列表
	config.EventKinds[0] = models.EventKindTrigger
	assert.NotEqual(t, models.EventKindTrigger, models.UpstreamEventKinds[0])
}

func TestConfigChannels(t *testing.T) {
	config := NewDefaultConfig().
		WithEventKinds(models.EventKindShiftDeleted, models.EventKindSummaryUpdated).
		WithTenants("3", "12")

	assert.Equal(t, []string{
		"shift_deleted_12",
		"shift_deleted_3",
		"summary_updated_12",
		"summary_updated_3",
	}, config.Channels())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RELAY_HOST", "127.0.0.1")
	t.Setenv("RELAY_PORT", "4100")
	t.Setenv("RELAY_HEARTBEAT_INTERVAL", "15s")
	t.Setenv("RELAY_WRITE_TIMEOUT", "2500")
	t.Setenv("RELAY_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("RELAY_EVENT_KINDS", "shift_created,employee_updated")
	t.Setenv("RELAY_TENANTS", "1, 007")
	t.Setenv("RELAY_REDIS_ADDR", "localhost:6379")
	t.Setenv("RELAY_REDIS_DB", "2")
	t.Setenv("RELAY_BROKER_PATTERN", "true")
	t.Setenv("RELAY_DATABASE_URL", "postgres://relay@localhost/relay")
	t.Setenv("RELAY_DEFAULT_TENANT", "0005")
	t.Setenv("RELAY_ENABLE_TEST_ENDPOINTS", "1")
	t.Setenv("RELAY_DEDUP_WINDOW", "1m")

	config, err := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:4100", config.ListenAddr())
	assert.Equal(t, 15*time.Second, config.HeartbeatInterval)
	assert.Equal(t, 2500*time.Millisecond, config.WriteTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, config.AllowedOrigins)
	assert.Equal(t, []models.EventKind{models.EventKindShiftCreated, models.EventKindEmployeeUpdated}, config.EventKinds)
	assert.Equal(t, []models.TenantID{"1", "7"}, config.Tenants)
	assert.Equal(t, BrokerConfig{Addr: "localhost:6379", DB: 2, Pattern: true}, config.Broker)
	assert.True(t, config.Postgres.Enabled())
	assert.Equal(t, models.TenantID("5"), config.DefaultTenant)
	assert.True(t, config.EnableTestEndpoints)
	assert.Equal(t, time.Minute, config.DedupWindow)
	require.NoError(t, config.Validate())
}

func TestLoadFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.env")
	require.NoError(t, os.WriteFile(path, []byte("RELAY_PORT=4200\nRELAY_TENANTS=9\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("RELAY_PORT")
		os.Unsetenv("RELAY_TENANTS")
	})

	config, err := LoadFromEnv(path)
	require.NoError(t, err)
	assert.Equal(t, 4200, config.NodePort)
	assert.Equal(t, []models.TenantID{"9"}, config.Tenants)
}

func TestLoadFromEnvErrors(t *testing.T) {
	t.Setenv("RELAY_PORT", "abc")
	t.Setenv("RELAY_EVENT_KINDS", "shift_created,heartbeat,bogus")
	t.Setenv("RELAY_TENANTS", "-1")
	t.Setenv("RELAY_SSE_EVENT_FIELD", "maybe")

	config, err := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Nil(t, config)
	assert.True(t, models.IsErrorType(err, models.ErrTypeConfigInvalid))

	msg := err.Error()
	for _, key := range []string{"RELAY_PORT", "RELAY_EVENT_KINDS", "RELAY_TENANTS", "RELAY_SSE_EVENT_FIELD"} {
		assert.Contains(t, msg, key)
	}
	assert.Equal(t, 2, strings.Count(msg, "RELAY_EVENT_KINDS"), "heartbeat 与未知类型都应报错")
}

func TestValidateAutoFix(t *testing.T) {
	config := NewDefaultConfig()
	config.NodeIP = ""
	config.HeartbeatInterval = 0
	config.MessageBufferSize = 0
	config.DispatchQueueSize = -1
	config.EventKinds = nil
	config.StartupTimeout = 0

	require.NoError(t, config.Validate())
	assert.Equal(t, "0.0.0.0", config.NodeIP)
	assert.Equal(t, 30*time.Second, config.HeartbeatInterval)
	assert.Equal(t, 256, config.MessageBufferSize)
	assert.Equal(t, 4096, config.DispatchQueueSize)
	assert.Equal(t, models.UpstreamEventKinds, config.EventKinds)
	assert.Equal(t, 10*time.Second, config.StartupTimeout)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"非法端口", func(c *Config) { c.NodePort = 70000 }, "NodePort"},
		{"非上游事件类型", func(c *Config) { c.EventKinds = []models.EventKind{models.EventKindHeartbeat} }, "EventKinds"},
		{"有数据源但无租户", func(c *Config) {
			c.Tenants = nil
			c.Postgres.DSN = "postgres://x"
		}, "Tenants"},
		{"负数 Redis DB", func(c *Config) { c.Broker.DB = -1 }, "Broker.DB"},
		{"非法默认租户", func(c *Config) { c.DefaultTenant = "-3" }, "DefaultTenant"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewDefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestPatternSubscriptionNeedsNoTenants(t *testing.T) {
	config := NewDefaultConfig().
		WithTenants().
		WithBroker(BrokerConfig{Addr: "localhost:6379", Pattern: true})
	assert.NoError(t, config.Validate())
}

func TestValidateAndReport(t *testing.T) {
	config := NewDefaultConfig().WithTestEndpoints(true)
	config.NodePort = 0

	report := NewConfigValidator().ValidateAndReport(config)
	assert.Contains(t, report, "NodePort")
	assert.Contains(t, report, "EnableTestEndpoints")
	assert.Contains(t, report, "严重=1")
}

// portRule 自定义规则示例
type portRule struct{ reserved int }

func (r portRule) GetName() string { return "ReservedPort" }

func (r portRule) Validate(config *Config) []ValidationResult {
	if config.NodePort != r.reserved {
		return nil
	}
	return []ValidationResult{{Level: ValidationLevelError, Field: "NodePort", Message: "端口已被保留"}}
}

func TestCustomValidationRule(t *testing.T) {
	validator := NewConfigValidator()
	validator.AddRule(portRule{reserved: 3001})

	var found bool
	for _, result := range validator.Validate(NewDefaultConfig()) {
		if result.Field == "NodePort" && result.Level == ValidationLevelError {
			found = true
		}
	}
	assert.True(t, found)
	assert.Equal(t, "错误", ValidationLevelError.String())
	assert.NotEmpty(t, validator.Validate(nil))
}
