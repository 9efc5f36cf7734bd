package bot

import (
	"html"
	"strings"
	"time"

	"chapter-hub/internal/domain"
)

const dateLayout = "Mon 02 Jan 15:04 MST"

// FormatEvents формирует HTML-список событий, сгруппированный по каналам в порядке появления.
func FormatEvents(events []domain.Event) string {
	if len(events) == 0 {
		return "No events in the next 7 days."
	}
	order := make([]domain.Channel, 0)
	groups := make(map[domain.Channel][]string)
	for _, ev := range events {
		if _, ok := groups[ev.Channel]; !ok {
			order = append(order, ev.Channel)
		}
		line := "• " + escapeHTML(ev.StartDate.Format(dateLayout)) + " <b>" + escapeHTML(ev.Title) + "</b>"
		if loc := strings.TrimSpace(ev.Location); loc != "" {
			line += " @ " + escapeHTML(loc)
		}
		groups[ev.Channel] = append(groups[ev.Channel], line)
	}

	sections := make([]string, 0, len(order))
	for _, ch := range order {
		sections = append(sections, "📅 <b>"+escapeHTML(string(ch))+"</b>\n"+strings.Join(groups[ch], "\n"))
	}
	return strings.Join(sections, "\n\n")
}

// FormatTasks формирует HTML-список задач с дедлайнами.
func FormatTasks(tasks []domain.Task) string {
	var b strings.Builder
	for _, task := range tasks {
		if task.Status == domain.TaskCompleted {
			continue
		}
		b.WriteString("☑️ <b>" + escapeHTML(task.Title) + "</b>")
		if task.Deadline != nil {
			b.WriteString(" until " + escapeHTML(task.Deadline.UTC().Format(time.DateOnly)))
		}
		if task.Status == domain.TaskInProgress {
			b.WriteString(" (in progress)")
		}
		b.WriteString("\n")
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "No open tasks."
	}
	return out
}

func escapeHTML(s string) string {
	return html.EscapeString(s)
}
