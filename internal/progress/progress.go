package progress

// StatusCompleted 唯一计入进度的状态
const StatusCompleted = "completed"

// Milestone 只关心状态
type Milestone interface {
	MilestoneStatus() string
}

// Status 字符串状态，便于直接传入状态列表
type Status string

func (s Status) MilestoneStatus() string { return string(s) }

// Report 进度汇总
type Report struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Percent   int `json:"percent"`
}

// Percent 返回 [0,100] 的完成百分比，四舍五入；空列表为 0
func Percent[M Milestone](milestones []M) int {
	return Summary(milestones).Percent
}

// Summary 统计总数、完成数和百分比
func Summary[M Milestone](milestones []M) Report {
	n := len(milestones)
	if n == 0 {
		return Report{}
	}

	c := 0
	for _, m := range milestones {
		if m.MilestoneStatus() == StatusCompleted {
			c++
		}
	}

	// 整数运算，全部完成时恰好为 100
	return Report{
		Total:     n,
		Completed: c,
		Percent:   (200*c + n) / (2 * n),
	}
}
