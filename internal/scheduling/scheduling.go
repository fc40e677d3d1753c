// Package scheduling holds the date and time rules shared by the task form,
// the calendar views and the kanban board. Everything here is pure.
package scheduling

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

var (
	ErrEndTimeNotAfterStart = errors.New("종료 시간은 시작 시간보다 늦어야 합니다")
	ErrEndDateBeforeStart   = errors.New("종료일은 시작일보다 빠를 수 없습니다")
	ErrInvalidDate          = errors.New("날짜 형식이 올바르지 않습니다 (YYYY-MM-DD)")
	ErrInvalidClock         = errors.New("시간 형식이 올바르지 않습니다 (HH:MM)")
)

// ParseClock converts "HH:MM" (or the "HH:MM:SS" form databases return) to
// minutes after midnight.
func ParseClock(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	for _, p := range parts {
		if !twoDigits(p) {
			return 0, false
		}
	}
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	if h > 23 || m > 59 {
		return 0, false
	}
	if len(parts) == 3 {
		if sec, _ := strconv.Atoi(parts[2]); sec > 59 {
			return 0, false
		}
	}
	return h*60 + m, true
}

func twoDigits(s string) bool {
	return len(s) == 2 && s[0] >= '0' && s[0] <= '9' && s[1] >= '0' && s[1] <= '9'
}

func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Duration returns end-start in minutes. ok is false when either time is
// missing or end is not after start.
func Duration(startTime, endTime string) (minutes int, ok bool) {
	start, okStart := ParseClock(startTime)
	end, okEnd := ParseClock(endTime)
	if !okStart || !okEnd || end <= start {
		return 0, false
	}
	return end - start, true
}

// DateSpan returns the inclusive number of days covered by a range whose end
// is strictly after its start, so 2024-01-01..2024-01-03 spans 3 days.
func DateSpan(startDate, endDate string) (days int, ok bool) {
	start, okStart := ParseDate(startDate)
	end, okEnd := ParseDate(endDate)
	if !okStart || !okEnd || !end.After(start) {
		return 0, false
	}
	return int(end.Sub(start).Hours()/24) + 1, true
}

// ValidateTimeOrder fails exactly when both times are present and the end
// is not later than the start.
func ValidateTimeOrder(startTime, endTime string) error {
	start, okStart := ParseClock(startTime)
	end, okEnd := ParseClock(endTime)
	if okStart && okEnd && end <= start {
		return ErrEndTimeNotAfterStart
	}
	return nil
}

func ValidateDateOrder(startDate, endDate string) error {
	start, okStart := ParseDate(startDate)
	end, okEnd := ParseDate(endDate)
	if okStart && okEnd && end.Before(start) {
		return ErrEndDateBeforeStart
	}
	return nil
}

func IsMultiDay(startDate, endDate string) bool {
	startDate, endDate = strings.TrimSpace(startDate), strings.TrimSpace(endDate)
	if startDate == "" || endDate == "" {
		return false
	}
	start, okStart := ParseDate(startDate)
	end, okEnd := ParseDate(endDate)
	if okStart && okEnd {
		return !start.Equal(end)
	}
	return startDate != endDate
}

// FormatDuration renders minutes the way the task views show them.
func FormatDuration(minutes int) string {
	h, m := minutes/60, minutes%60
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%d시간 %d분", h, m)
	case h > 0:
		return fmt.Sprintf("%d시간", h)
	default:
		return fmt.Sprintf("%d분", m)
	}
}

// NormalizeClock trims a stored "HH:MM:SS" value to "HH:MM".
func NormalizeClock(s string) (string, error) {
	minutes, ok := ParseClock(s)
	if !ok {
		return "", ErrInvalidClock
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60), nil
}

func NormalizeDate(s string) (string, error) {
	t, ok := ParseDate(s)
	if !ok {
		return "", ErrInvalidDate
	}
	return t.Format(DateLayout), nil
}
