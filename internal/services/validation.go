package services

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	titleMin, titleMax             = 3, 500
	descriptionMax                 = 2000
	personNameMin, personNameMax   = 2, 255
	phoneMin, phoneMax             = 10, 20
	companyNameMin, companyNameMax = 2, 255
	companyDescriptionMax          = 1000
	commentMax                     = 2000
)

func checkLength(field, value string, min, max int) error {
	n := utf8.RuneCountInString(value)
	if n < min {
		if min == 1 {
			return invalid(field, "must not be empty")
		}
		return invalid(field, "must be at least %d characters", min)
	}
	if n > max {
		return invalid(field, "must be at most %d characters", max)
	}
	return nil
}

func checkID(field, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return invalid(field, "must be a valid id")
	}
	return nil
}

var (
	inDaysRU = regexp.MustCompile(`^через\s+(\d{1,3})\s+(день|дня|дней)$`)
	inDaysEN = regexp.MustCompile(`^in\s+(\d{1,3})\s+days?$`)
)

// ParseDeadline turns user input into a deadline. Day-level inputs resolve to
// 23:59:59 of that day in loc. Accepted forms: RFC 3339, the presets
// today/tomorrow/week (and their Russian names), "через N дней", "in N days",
// DD.MM.YYYY and DD.MM (current year).
func ParseDeadline(input string, now time.Time, loc *time.Location) (time.Time, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "" {
		return time.Time{}, invalid("deadline", "is required")
	}
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(input)); err == nil {
		return t, nil
	}

	local := now.In(loc)
	switch s {
	case "today", "сегодня":
		return endOfDay(local, 0), nil
	case "tomorrow", "завтра":
		return endOfDay(local, 1), nil
	case "week", "неделя", "через неделю":
		return endOfDay(local, 7), nil
	}
	if m := inDaysRU.FindStringSubmatch(s); m != nil {
		days, _ := strconv.Atoi(m[1])
		return endOfDay(local, days), nil
	}
	if m := inDaysEN.FindStringSubmatch(s); m != nil {
		days, _ := strconv.Atoi(m[1])
		return endOfDay(local, days), nil
	}
	if t, err := time.ParseInLocation("02.01.2006 15:04:05", s+" 23:59:59", loc); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("02.01.2006 15:04:05", s+"."+strconv.Itoa(local.Year())+" 23:59:59", loc); err == nil {
		return t, nil
	}
	return time.Time{}, invalid("deadline", "unrecognised date %q, use DD.MM.YYYY", input)
}

func endOfDay(local time.Time, addDays int) time.Time {
	d := local.AddDate(0, 0, addDays)
	return time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, local.Location())
}
