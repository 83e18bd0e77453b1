package refresh

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Job 是一个标的的同步工作单元。各 Job 的输出路径互不相交，
// worker 之间没有共享可变状态。
type Job struct {
	ID           string
	Symbol       string
	CSVPath      string
	MetadataPath string
}

func (j Job) SymbolDisplay() string { return strings.ToUpper(j.Symbol) }

// PlanJobs 为每个标的规划输出目录：<root>/<BASE>/，BASE 是去掉
// 交易所后缀的大写 ticker。文件名沿用历史布局，小时线带窗口天数。
func PlanJobs(syms []string, outputRoot, interval string, maxWindowDays int) []Job {
	jobs := make([]Job, 0, len(syms))
	for _, sym := range syms {
		base := strings.ToUpper(strings.SplitN(sym, ".", 2)[0])
		folder := filepath.Join(outputRoot, base)
		var csvName, metaName string
		if interval == "1h" || interval == "60m" {
			csvName = fmt.Sprintf("%s_complete_historical_1h_%ddays.csv", base, maxWindowDays)
			metaName = fmt.Sprintf("%s_complete_historical_1h_%ddays_metadata.json", base, maxWindowDays)
		} else {
			csvName = base + "_complete_with_pct.csv"
			metaName = base + "_complete_metadata.json"
		}
		jobs = append(jobs, Job{
			ID:           uuid.NewString(),
			Symbol:       sym,
			CSVPath:      filepath.Join(folder, csvName),
			MetadataPath: filepath.Join(folder, metaName),
		})
	}
	return jobs
}
