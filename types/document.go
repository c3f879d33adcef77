package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Document 无结构 JSON 文档
// 用于 context/metadata/response 等调用方自定义负载，引擎不校验内部结构。
// 统一使用同一类型跨层传递，持久化为 JSON 列。
type Document map[string]any

// Value implements driver.Valuer, serializing the document to JSON.
func (d Document) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner, deserializing a JSON column value.
func (d *Document) Scan(value any) error {
	if value == nil {
		*d = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported document column type %T", value)
	}

	if len(data) == 0 {
		*d = nil
		return nil
	}

	return json.Unmarshal(data, d)
}

// Clone 深拷贝（单层嵌套通过 JSON 往返实现）
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil
	}
	var out Document
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
