/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-09-24 11:36:52
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-12 20:44:38
 * @FilePath: \go-relay\protocol\resolver.go
 * @Description: 租户解析 - 载荷字段优先，频道后缀兜底，否则丢弃
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package protocol

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/kamalyes/go-relay/models"
)

// TenantKeys 载荷中租户ID的别名，按优先级排列
var TenantKeys = []string{
	"tenantId",
	"tenant_id",
	"workSetId",
	"workSetID",
	"workset_id",
	"worksetId",
	"work_set_id",
}

// ResolveTenant 确定消息所属租户
//
// 规则:
//   - 先查顶层字段，再查嵌套的 data/payload/record 对象
//   - 载荷中无有效租户时取频道名末尾的 _<数字>
//   - 都没有则返回错误，调用方必须丢弃该消息
func ResolveTenant(raw []byte, channel string) (models.TenantID, error) {
	fields, _ := decodeObject(bytes.TrimSpace(raw))
	nested, _ := nestedObject(fields)

	var invalid any
	for _, layer := range []map[string]json.RawMessage{fields, nested} {
		for _, key := range TenantKeys {
			v, ok := layer[key]
			if !ok || string(bytes.TrimSpace(v)) == "null" {
				continue
			}
			tenant, err := parseTenantValue(v)
			if err == nil {
				return tenant, nil
			}
			if invalid == nil {
				invalid = string(v)
			}
		}
	}

	if _, suffix := SplitChannel(channel); suffix != "" {
		return ParseTenantParam(suffix)
	}

	if invalid != nil {
		return "", models.NewInvalidTenantError(invalid)
	}
	return "", models.NewTenantUnresolvableError(channel)
}

// parseTenantValue 解析单个租户值：非负整数或非空字符串
func parseTenantValue(raw json.RawMessage) (models.TenantID, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return "", err
	}

	switch t := v.(type) {
	case json.Number:
		n, err := strconv.ParseInt(t.String(), 10, 64)
		if err != nil || n < 0 {
			return "", models.NewInvalidTenantError(t.String())
		}
		return models.TenantIDFromInt(n), nil
	case string:
		return ParseTenantParam(t)
	default:
		return "", models.NewInvalidTenantError(v)
	}
}

// ParseTenantParam 解析来自 URL 参数或载荷字符串的租户ID
// 纯数字会去掉前导零，其他非空字符串原样保留
func ParseTenantParam(s string) (models.TenantID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", models.ErrTenantRequired
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return "", models.NewInvalidTenantError(s)
		}
		return models.TenantIDFromInt(n), nil
	}
	if strings.ContainsAny(s, " \t\r\n/") {
		return "", models.NewInvalidTenantError(s)
	}
	return models.TenantID(s), nil
}
