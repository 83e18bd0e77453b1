package symbols

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse 解析换行或逗号分隔的 ticker 列表：
// # 开头的注释与空行跳过，大小写不敏感去重并保留首次出现的顺序。
func Parse(raw string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, part := range strings.Split(line, ",") {
			sym := strings.TrimSpace(part)
			if sym == "" || strings.HasPrefix(sym, "#") {
				continue
			}
			key := strings.ToUpper(sym)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, sym)
		}
	}
	return out
}

// LoadFile 从文件加载 ticker 列表。文件缺失属于配置错误，直接失败。
func LoadFile(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading symbols file failed (%s): %w", path, err)
	}
	syms := Parse(string(raw))
	if len(syms) == 0 {
		return nil, fmt.Errorf("symbols file %s contains no tickers", path)
	}
	return syms, nil
}

// WithSuffix 为缺少交易所后缀的 ticker 追加后缀（如 .NS），
// 已带后缀（含 "."）的保持原样。
func WithSuffix(syms []string, suffix string) []string {
	if suffix == "" {
		return syms
	}
	out := make([]string, 0, len(syms))
	for _, s := range syms {
		if strings.Contains(s, ".") {
			out = append(out, s)
			continue
		}
		out = append(out, s+suffix)
	}
	return out
}

// Universe 是 YAML 宇宙文件：按组管理标的，每组可覆盖后缀与输出目录。
type Universe struct {
	Groups []UniverseGroup `yaml:"groups"`
}

type UniverseGroup struct {
	Name       string   `yaml:"name"`
	Suffix     string   `yaml:"suffix"`
	OutputRoot string   `yaml:"output_root"`
	Symbols    []string `yaml:"symbols"`
}

// LoadUniverse 解析 YAML 宇宙文件，未知字段视为错误。
func LoadUniverse(path string) (*Universe, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading universe file failed (%s): %w", path, err)
	}
	var u Universe
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&u); err != nil {
		return nil, fmt.Errorf("parsing universe file failed: %w", err)
	}
	if len(u.Groups) == 0 {
		return nil, fmt.Errorf("universe file %s has no groups", path)
	}
	for i := range u.Groups {
		u.Groups[i].Symbols = dedupe(u.Groups[i].Symbols)
	}
	return &u, nil
}

func dedupe(syms []string) []string {
	var buf strings.Builder
	for _, s := range syms {
		buf.WriteString(s)
		buf.WriteString("\n")
	}
	return Parse(buf.String())
}

// WriteList 按每行一个 ticker 的格式写出列表文件。
func WriteList(path string, syms []string) error {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	for _, s := range syms {
		fmt.Fprintln(w, s)
	}
	w.Flush()
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
