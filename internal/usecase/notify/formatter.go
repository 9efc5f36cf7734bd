package notify

import (
	"fmt"
	"time"
)

// ReminderBody формирует текст напоминания о начале события.
func ReminderBody(title string, lead time.Duration) string {
	return `Event "` + title + `" starts in ` + formatLead(lead) + "!"
}

func formatLead(lead time.Duration) string {
	if lead >= time.Hour && lead%time.Hour == 0 {
		return plural(int(lead/time.Hour), "hour")
	}
	minutes := int(lead / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return plural(minutes, "minute")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
