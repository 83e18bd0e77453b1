package dataset

import "time"

// Row 是规范化后的一行 CSV 记录。数值字段保存为已格式化的字符串，
// 空串表示缺失（不是 0），这让列并集与缺失填充在合并时自然成立。
type Row struct {
	Symbol       string
	Timestamp    time.Time
	Open         string
	High         string
	Low          string
	Close        string
	AdjClose     string
	Volume       int64
	PctChange    string
	AdjPctChange string

	// Extra 保留既有文件里本工具不认识的列，合并时取列并集。
	Extra map[string]string
}
