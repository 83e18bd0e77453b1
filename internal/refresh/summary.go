package refresh

import "time"

// Result 是单个 Job 的执行结果。
type Result struct {
	JobID       string
	Symbol      string
	Status      string
	RowsFetched int
	RowsAdded   int
	RowsTotal   int
	Start       time.Time
	End         time.Time
	Warnings    []string
	Err         error
	Elapsed     time.Duration
}

// Summary 汇总一次运行的所有结果。
type Summary struct {
	Results []Result
	Elapsed time.Duration
}

func (s Summary) Succeeded() int {
	n := 0
	for _, r := range s.Results {
		if r.Err == nil {
			n++
		}
	}
	return n
}

func (s Summary) Failed() int { return len(s.Results) - s.Succeeded() }

// ExitCode 只有在所有标的都失败时才报非零。
// 部分失败按警告处理（警告已记录在各 Result 里）。
func (s Summary) ExitCode() int {
	if len(s.Results) == 0 {
		return 0
	}
	if s.Succeeded() == 0 {
		return 1
	}
	return 0
}
