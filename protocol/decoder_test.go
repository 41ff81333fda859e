/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-09-24 16:10:37
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-12 21:03:15
 * @FilePath: \go-relay\protocol\decoder_test.go
 * @Description: 解码与租户解析测试
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package protocol

import (
	"encoding/json"
	"testing"

	"github.com/kamalyes/go-relay/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDecodeEnvelopeFromChannel 频道前缀决定事件类型，操作由后缀推断
func TestDecodeEnvelopeFromChannel(t *testing.T) {
	raw := []byte(`{"id": 42, "workSetId": 7, "name": "早班"}`)

	env, err := DecodeEnvelope(raw, "shift_created_7", models.SourceKindBroker)
	require.NoError(t, err)

	assert.Equal(t, models.EventKindShiftCreated, env.EventKind)
	assert.Equal(t, models.OperationInsert, env.Operation)
	assert.Equal(t, "shift_created_7", env.SourceChannel)
	assert.Equal(t, models.SourceKindBroker, env.Source)
	assert.JSONEq(t, string(raw), string(env.Payload), "无嵌套对象时转发整个对象")
	assert.True(t, env.TenantID.IsEmpty(), "解码阶段不填充租户")
}

// TestDecodeEnvelopeNestedPayload 嵌套 data 对象作为转发载荷
func TestDecodeEnvelopeNestedPayload(t *testing.T) {
	raw := []byte(`{"eventId":"evt-1","operation":"delete","data":{"id":3,"tenantId":"5"}}`)

	env, err := DecodeEnvelope(raw, "shift_updated", models.SourceKindDatabase)
	require.NoError(t, err)

	assert.Equal(t, "evt-1", env.EventID)
	assert.Equal(t, models.OperationDelete, env.Operation, "显式操作字段覆盖后缀推断")
	assert.JSONEq(t, `{"id":3,"tenantId":"5"}`, string(env.Payload))
}

// TestDecodeEnvelopeKindFromPayload 频道无法识别时使用载荷中的事件类型
func TestDecodeEnvelopeKindFromPayload(t *testing.T) {
	raw := []byte(`{"type":"employee_updated","TG_OP":"UPDATE","record":{"id":1}}`)

	env, err := DecodeEnvelope(raw, "relay_changes", models.SourceKindDatabase)
	require.NoError(t, err)
	assert.Equal(t, models.EventKindEmployeeUpdated, env.EventKind)
	assert.Equal(t, models.OperationUpdate, env.Operation)
}

// TestDecodeEnvelopeMalformed 非法输入返回解码错误，不会 panic
func TestDecodeEnvelopeMalformed(t *testing.T) {
	cases := map[string]struct {
		raw     string
		channel string
	}{
		"空消息":     {raw: "   ", channel: "shift_updated_1"},
		"非法JSON":  {raw: `{"id":`, channel: "shift_updated_1"},
		"截断字符串":   {raw: `"abc`, channel: "shift_updated_1"},
		"未知事件类型":  {raw: `{"id":1}`, channel: "unknown_channel_1"},
		"载荷类型也未知": {raw: `{"type":"nope"}`, channel: "x"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				env, err := DecodeEnvelope([]byte(tc.raw), tc.channel, models.SourceKindBroker)
				assert.Nil(t, env)
				assert.True(t, models.IsDecodeError(err), "应为解码错误: %v", err)
			})
		})
	}
}

// TestDecodeEnvelopeNonObject 合法但非对象的 JSON 原样转发
func TestDecodeEnvelopeNonObject(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`[1,2,3]`), "summary_updated_3", models.SourceKindBroker)
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`[1,2,3]`), env.Payload)
}

// TestSplitChannel 频道名拆分
func TestSplitChannel(t *testing.T) {
	prefix, tenant := SplitChannel("shift_updated_12")
	assert.Equal(t, "shift_updated", prefix)
	assert.Equal(t, "12", tenant)

	prefix, tenant = SplitChannel("shift_updated")
	assert.Equal(t, "shift_updated", prefix)
	assert.Empty(t, tenant)

	assert.Equal(t, "shift_deleted_9", ChannelName(models.EventKindShiftDeleted, "9"))
}

// TestResolveTenantPayloadWins 载荷中的租户优先于频道后缀
func TestResolveTenantPayloadWins(t *testing.T) {
	tenant, err := ResolveTenant([]byte(`{"tenantId":5}`), "shift_updated_9")
	require.NoError(t, err)
	assert.Equal(t, models.TenantID("5"), tenant)
}

// TestResolveTenantAliases 各种别名与嵌套层级
func TestResolveTenantAliases(t *testing.T) {
	cases := []struct {
		raw  string
		want models.TenantID
	}{
		{`{"tenant_id": 1}`, "1"},
		{`{"workSetId": "2"}`, "2"},
		{`{"workset_id": 3}`, "3"},
		{`{"worksetId": 4}`, "4"},
		{`{"work_set_id": "005"}`, "5"},
		{`{"data": {"workSetId": 6}}`, "6"},
		{`{"tenantId": null, "payload": {"tenant_id": 7}}`, "7"},
	}
	for _, tc := range cases {
		tenant, err := ResolveTenant([]byte(tc.raw), "summary_updated")
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, tenant, tc.raw)
	}
}

// TestResolveTenantChannelFallback 载荷无租户时使用频道后缀
func TestResolveTenantChannelFallback(t *testing.T) {
	tenant, err := ResolveTenant([]byte(`{"id":1}`), "shift_deleted_42")
	require.NoError(t, err)
	assert.Equal(t, models.TenantID("42"), tenant)

	tenant, err = ResolveTenant([]byte(`not json at all`), "employee_updated_8")
	require.NoError(t, err)
	assert.Equal(t, models.TenantID("8"), tenant)
}

// TestResolveTenantNormalized 频道后缀、载荷、URL 参数得到同一个租户
func TestResolveTenantNormalized(t *testing.T) {
	fromChannel, err := ResolveTenant([]byte(`{"id":1}`), "shift_updated_007")
	require.NoError(t, err)
	fromPayload, err := ResolveTenant([]byte(`{"workSetId":"007"}`), "shift_updated")
	require.NoError(t, err)
	fromParam, err := ParseTenantParam("007")
	require.NoError(t, err)

	assert.Equal(t, models.TenantID("7"), fromChannel)
	assert.Equal(t, fromParam, fromChannel)
	assert.Equal(t, fromParam, fromPayload)
}

// TestResolveTenantUnresolvable 无法确定租户时返回错误，绝不广播给所有租户
func TestResolveTenantUnresolvable(t *testing.T) {
	tenant, err := ResolveTenant([]byte(`{"id":1}`), "shift_updated")
	assert.Empty(t, tenant)
	assert.True(t, models.IsErrorType(err, models.ErrTypeTenantUnresolvable))

	tenant, err = ResolveTenant([]byte(`{"tenantId":-3}`), "shift_updated")
	assert.Empty(t, tenant)
	assert.True(t, models.IsErrorType(err, models.ErrTypeInvalidTenant))
	assert.True(t, models.IsResolutionError(err))
}

// TestParseTenantParam URL 参数解析
func TestParseTenantParam(t *testing.T) {
	tenant, err := ParseTenantParam(" 0012 ")
	require.NoError(t, err)
	assert.Equal(t, models.TenantID("12"), tenant)

	_, err = ParseTenantParam("")
	assert.ErrorIs(t, err, models.ErrTenantRequired)

	_, err = ParseTenantParam("-1")
	assert.Error(t, err)

	tenant, err = ParseTenantParam("ws-alpha")
	require.NoError(t, err)
	assert.Equal(t, models.TenantID("ws-alpha"), tenant)
}
