package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Metadata 是每次刷新后写在 CSV 旁边的摘要，增量续拉时
// 优先读它拿最后时间戳，避免重新解析整个 CSV。
type Metadata struct {
	Symbol   string `json:"symbol"`
	Rows     int    `json:"rows"`
	Interval string `json:"interval"`
	Start    string `json:"start"`
	End      string `json:"end"`
}

// 元数据文件可能被外部脚本改写过，读之前先过一遍 schema，
// 结构对不上就降级回 CSV 扫描而不是带着坏数据继续。
const metadataSchemaJSON = `{
  "oneOf": [
    {"$ref": "#/definitions/entry"},
    {"type": "array", "items": {"$ref": "#/definitions/entry"}}
  ],
  "definitions": {
    "entry": {
      "type": "object",
      "required": ["symbol", "rows"],
      "properties": {
        "symbol": {"type": "string"},
        "rows": {"type": "integer", "minimum": 0},
        "interval": {"type": "string"},
        "start": {"type": ["string", "null"]},
        "end": {"type": ["string", "null"]}
      }
    }
  }
}`

var metadataSchema = jsonschema.MustCompileString("metadata.json", metadataSchemaJSON)

// ReadMetadata 读取摘要文件。文件内容可以是单个对象，也可以是
// 多次运行追加出来的列表（取最后一条）。
func ReadMetadata(path string) (*Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("parsing metadata failed: %w", err)
	}
	if err := metadataSchema.Validate(decoded); err != nil {
		return nil, fmt.Errorf("metadata schema mismatch: %w", err)
	}

	var entry Metadata
	switch v := decoded.(type) {
	case []any:
		if len(v) == 0 {
			return nil, fmt.Errorf("metadata list is empty")
		}
		buf, _ := json.Marshal(v[len(v)-1])
		if err := json.Unmarshal(buf, &entry); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, err
		}
	}
	return &entry, nil
}

// WriteMetadata 原子性重写摘要文件。
func WriteMetadata(path string, entries []Metadata) error {
	if len(entries) == 0 {
		return fmt.Errorf("metadata entries cannot be empty")
	}
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	var payload any = entries
	if len(entries) == 1 {
		payload = entries[0]
	}
	buf, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".candlesync-*.json")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(append(buf, '\n')); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// EndTime 解析元数据里的最后时间戳；兼容历史文件里的 Z 后缀写法。
func (m *Metadata) EndTime() (time.Time, bool) {
	raw := strings.TrimSpace(m.End)
	if raw == "" {
		return time.Time{}, false
	}
	if t := ParseTimestamp(raw); !t.IsZero() {
		return t, true
	}
	if strings.HasSuffix(raw, "Z") {
		if t := ParseTimestamp(strings.TrimSuffix(raw, "Z") + "+00:00"); !t.IsZero() {
			return t, true
		}
	}
	return time.Time{}, false
}

// BuildMetadata 从合并后的数据集构造摘要。
func BuildMetadata(symbol, interval string, rows []Row) Metadata {
	m := Metadata{Symbol: symbol, Rows: len(rows), Interval: interval}
	if len(rows) > 0 {
		m.Start = FormatTimestamp(rows[0].Timestamp)
		m.End = FormatTimestamp(rows[len(rows)-1].Timestamp)
	}
	return m
}
