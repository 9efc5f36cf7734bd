package calendar

import (
	"errors"
	"strings"
	"time"
	_ "time/tzdata"
)

var (
	// ErrInvalidTimezone возвращается, если указан некорректный часовой пояс.
	ErrInvalidTimezone = errors.New("invalid timezone")
	// ErrInvalidMonth возвращается для месяца вне 1..12 или года вне 1..9999.
	ErrInvalidMonth = errors.New("invalid month")
)

// MonthRange возвращает границы месяца в часовом поясе tz: первую миллисекунду
// первого дня и последнюю миллисекунду последнего дня. Пустой tz означает UTC.
func MonthRange(year, month int, tz string) (time.Time, time.Time, error) {
	if month < 1 || month > 12 || year < 1 || year > 9999 {
		return time.Time{}, time.Time{}, ErrInvalidMonth
	}
	loc := time.UTC
	if strings.TrimSpace(tz) != "" {
		name, err := NormalizeTimezone(tz)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		loc, err = time.LoadLocation(name)
		if err != nil {
			return time.Time{}, time.Time{}, ErrInvalidTimezone
		}
	}
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 1, 0).Add(-time.Millisecond)
	return start, end, nil
}

// NormalizeTimezone приводит ввод вида "europe/paris" или "America/new york"
// к имени IANA, которое понимает time.LoadLocation.
func NormalizeTimezone(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return "", ErrInvalidTimezone
	}
	candidate = strings.ReplaceAll(candidate, " ", "_")
	if _, err := time.LoadLocation(candidate); err == nil {
		return candidate, nil
	}

	lower := strings.ToLower(candidate)
	parts := strings.Split(lower, "/")
	for i, part := range parts {
		segments := strings.Split(part, "_")
		for j, segment := range segments {
			pieces := strings.Split(segment, "-")
			for k, piece := range pieces {
				if piece == "" {
					continue
				}
				pieces[k] = strings.ToUpper(piece[:1]) + piece[1:]
			}
			segments[j] = strings.Join(pieces, "-")
		}
		parts[i] = strings.Join(segments, "_")
	}
	normalized := strings.Join(parts, "/")
	if _, err := time.LoadLocation(normalized); err == nil {
		return normalized, nil
	}
	return "", ErrInvalidTimezone
}
