package types

// TaskType identifies the calling use case. It selects routing and is used for
// cost attribution.
type TaskType string

const (
	TaskProductMatching TaskType = "product_matching"
	TaskListBuilding    TaskType = "list_building"
	TaskMealPlanning    TaskType = "meal_planning"
	TaskTitleGeneration TaskType = "title_generation"
	TaskPriceAnalysis   TaskType = "price_analysis"
	TaskReceiptScan     TaskType = "receipt_scan"
)

// AllTaskTypes returns every known task type in a stable order.
func AllTaskTypes() []TaskType {
	return []TaskType{
		TaskProductMatching,
		TaskListBuilding,
		TaskMealPlanning,
		TaskTitleGeneration,
		TaskPriceAnalysis,
		TaskReceiptScan,
	}
}

// Known reports whether t is one of the declared task types.
func (t TaskType) Known() bool {
	switch t {
	case TaskProductMatching, TaskListBuilding, TaskMealPlanning,
		TaskTitleGeneration, TaskPriceAnalysis, TaskReceiptScan:
		return true
	default:
		return false
	}
}

// Volatile reports whether responses for this task go stale quickly.
// Price data changes daily, so its answers should not be cached for long.
func (t TaskType) Volatile() bool {
	switch t {
	case TaskPriceAnalysis, TaskProductMatching:
		return true
	default:
		return false
	}
}

func ParseTaskType(s string) (TaskType, bool) {
	t := TaskType(s)
	if !t.Known() {
		return "", false
	}
	return t, true
}
