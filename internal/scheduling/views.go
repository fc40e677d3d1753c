package scheduling

import (
	"sort"
	"time"

	"task-calendar/backend/internal/models"
)

const upcomingWindowDays = 7

type DateBuckets struct {
	Today    []models.Task `json:"today"`
	Overdue  []models.Task `json:"overdue"`
	Upcoming []models.Task `json:"upcoming"`
}

// Buckets splits unfinished tasks by due day relative to today. today is
// read once so every task is compared against the same date.
func Buckets(tasks []models.Task, today time.Time) DateBuckets {
	todayStr := today.Format(DateLayout)
	limit := today.AddDate(0, 0, upcomingWindowDays).Format(DateLayout)

	buckets := DateBuckets{
		Today:    []models.Task{},
		Overdue:  []models.Task{},
		Upcoming: []models.Task{},
	}
	for _, task := range tasks {
		if task.Status == models.StatusDone {
			continue
		}
		if task.Due() == "" {
			continue
		}
		due, err := NormalizeDate(task.Due())
		if err != nil {
			continue
		}
		switch {
		case due == todayStr:
			buckets.Today = append(buckets.Today, task)
		case due < todayStr:
			buckets.Overdue = append(buckets.Overdue, task)
		case due <= limit:
			buckets.Upcoming = append(buckets.Upcoming, task)
		}
	}
	return buckets
}

// Occupies reports whether the task is shown on the given calendar day.
func Occupies(task *models.Task, day string) bool {
	start := task.CalendarStart()
	if start == nil {
		return false
	}
	first, err := NormalizeDate(*start)
	if err != nil {
		return false
	}
	last := first
	if task.EndDate != nil {
		if end, err := NormalizeDate(*task.EndDate); err == nil && end > first {
			last = end
		}
	}
	return day >= first && day <= last
}

// TasksOn returns the tasks on a calendar day ordered by start time, with
// untimed tasks last.
func TasksOn(tasks []models.Task, day time.Time) []models.Task {
	dayStr := day.Format(DateLayout)
	result := []models.Task{}
	for i := range tasks {
		if Occupies(&tasks[i], dayStr) {
			result = append(result, tasks[i])
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		a, okA := clockOf(result[i].StartTime)
		b, okB := clockOf(result[j].StartTime)
		switch {
		case okA && okB:
			return a < b
		case okA:
			return true
		default:
			return false
		}
	})
	return result
}

type BoardColumn struct {
	Status models.TaskStatus `json:"status"`
	Tasks  []models.Task     `json:"tasks"`
}

// Board groups tasks into kanban columns. Ties in kanban_order keep the
// order the tasks were fetched in.
func Board(tasks []models.Task) []BoardColumn {
	columns := make([]BoardColumn, 0, len(models.BoardColumns))
	for _, status := range models.BoardColumns {
		column := BoardColumn{Status: status, Tasks: []models.Task{}}
		for _, task := range tasks {
			if task.Status == status {
				column.Tasks = append(column.Tasks, task)
			}
		}
		sort.SliceStable(column.Tasks, func(i, j int) bool {
			return column.Tasks[i].KanbanOrder < column.Tasks[j].KanbanOrder
		})
		columns = append(columns, column)
	}
	return columns
}

func clockOf(s *string) (int, bool) {
	if s == nil {
		return 0, false
	}
	return ParseClock(*s)
}
