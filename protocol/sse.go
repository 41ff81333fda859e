/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-09-24 14:20:05
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-13 08:51:27
 * @FilePath: \go-relay\protocol\sse.go
 * @Description: SSE 帧编码与解析
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package protocol

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/kamalyes/go-relay/models"
)

// SSE 响应头
var SSEHeaders = map[string]string{
	"Content-Type":      "text/event-stream",
	"Cache-Control":     "no-cache",
	"Connection":        "keep-alive",
	"X-Accel-Buffering": "no",
}

// EncodeSSE 编码一帧 SSE
// event 为空时只输出 data 行；data 中的换行拆成多个 data 行
func EncodeSSE(event string, data []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(event) + len(data) + 16)
	if event != "" {
		buf.WriteString("event: ")
		buf.WriteString(event)
		buf.WriteByte('\n')
	}
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		buf.WriteString("data: ")
		buf.Write(bytes.TrimSuffix(line, []byte{'\r'}))
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}

// EncodeEnvelopeSSE 将信封编码为 SSE 帧
func EncodeEnvelopeSSE(env *models.Envelope, withEvent bool) ([]byte, error) {
	data, err := env.Marshal()
	if err != nil {
		return nil, err
	}
	if !withEvent {
		return EncodeSSE("", data), nil
	}
	return EncodeSSE(env.Channel(), data), nil
}

// SSEEvent 解析出的一帧
type SSEEvent struct {
	ID    string
	Event string
	Data  []byte
}

// SSEReader 按 text/event-stream 规则逐帧读取
type SSEReader struct {
	scanner *bufio.Scanner
}

// NewSSEReader 创建读取器，maxFrame 为单行最大字节数
func NewSSEReader(r io.Reader, maxFrame int) *SSEReader {
	scanner := bufio.NewScanner(r)
	if maxFrame <= 0 {
		maxFrame = 1 << 20
	}
	scanner.Buffer(make([]byte, 0, 4096), maxFrame)
	return &SSEReader{scanner: scanner}
}

// Next 读取下一帧，注释行（以 : 开头）会回调 onComment 但不返回帧
// 流结束返回 io.EOF
func (r *SSEReader) Next(onComment func(string)) (*SSEEvent, error) {
	var (
		ev      SSEEvent
		data    [][]byte
		hasData bool
	)
	for r.scanner.Scan() {
		line := r.scanner.Text()
		if line == "" {
			if hasData || ev.Event != "" {
				ev.Data = bytes.Join(data, []byte{'\n'})
				return &ev, nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			if onComment != nil {
				onComment(strings.TrimSpace(line[1:]))
			}
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Event = value
		case "data":
			data = append(data, []byte(value))
			hasData = true
		case "id":
			ev.ID = value
		}
	}
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}
