/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-09-24 10:02:11
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-12 20:44:38
 * @FilePath: \go-relay\protocol\decoder.go
 * @Description: 上游通知解码 - 原始消息 -> 事件信封
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/kamalyes/go-relay/models"
)

// 上游载荷中的字段别名，按优先级排列
var (
	eventKindKeys = []string{"eventKind", "event_kind", "type", "event"}
	operationKeys = []string{"operation", "op", "action", "TG_OP"}
	eventIDKeys   = []string{"eventId", "event_id", "eventID"}
	nestedKeys    = []string{"data", "payload", "record"}
)

// channelTenantSuffix 匹配频道名末尾的 _<数字>
var channelTenantSuffix = regexp.MustCompile(`^(.+)_(\d+)$`)

// SplitChannel 拆分 <eventKind>_<tenantId> 形式的频道名
// 没有数字后缀时 tenant 返回空
func SplitChannel(channel string) (prefix string, tenant string) {
	m := channelTenantSuffix.FindStringSubmatch(channel)
	if m == nil {
		return channel, ""
	}
	return m[1], m[2]
}

// ChannelName 组装频道名
func ChannelName(kind models.EventKind, tenant models.TenantID) string {
	return string(kind) + "_" + string(tenant)
}

// DecodeEnvelope 将上游原始消息解析为事件信封
// 租户字段由 ResolveTenant 单独解析，这里不填充
func DecodeEnvelope(raw []byte, channel string, source models.SourceKind) (*models.Envelope, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, models.ErrEmptyPayload
	}
	if !json.Valid(raw) {
		return nil, models.NewDecodeError(errInvalidJSON)
	}

	fields, _ := decodeObject(raw)
	nested, nestedRaw := nestedObject(fields)

	kind, err := resolveEventKind(channel, fields)
	if err != nil {
		return nil, err
	}

	env := &models.Envelope{
		EventID:       firstString(eventIDKeys, fields, nested),
		EventKind:     kind,
		Operation:     kind.DefaultOperation(),
		Payload:       json.RawMessage(raw),
		SourceChannel: channel,
		Source:        source,
		ReceivedAt:    time.Now(),
	}
	if nestedRaw != nil {
		env.Payload = nestedRaw
	}
	if op, ok := models.ParseOperation(firstString(operationKeys, fields, nested)); ok {
		env.Operation = op
	}
	return env, nil
}

// resolveEventKind 事件类型以频道前缀为准，频道无法识别时再看载荷字段
func resolveEventKind(channel string, fields map[string]json.RawMessage) (models.EventKind, error) {
	prefix, _ := SplitChannel(channel)
	if kind, err := models.ParseEventKind(prefix); err == nil {
		return kind, nil
	}
	if kind, err := models.ParseEventKind(firstString(eventKindKeys, fields)); err == nil {
		return kind, nil
	}
	return "", models.NewUnknownEventKindError(channel)
}

// decodeObject 解析 JSON 对象的顶层字段，非对象返回 nil
func decodeObject(raw []byte) (map[string]json.RawMessage, bool) {
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, false
	}
	return fields, true
}

// nestedObject 查找嵌套的 data/payload/record 对象
func nestedObject(fields map[string]json.RawMessage) (map[string]json.RawMessage, json.RawMessage) {
	for _, key := range nestedKeys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		if obj, ok := decodeObject(bytes.TrimSpace(raw)); ok {
			return obj, raw
		}
	}
	return nil, nil
}

// firstString 依次在各层字段中查找第一个非空字符串值
func firstString(keys []string, layers ...map[string]json.RawMessage) string {
	for _, layer := range layers {
		for _, key := range keys {
			raw, ok := layer[key]
			if !ok {
				continue
			}
			var s string
			if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

var errInvalidJSON = errors.New("invalid json")
