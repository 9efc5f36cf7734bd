package push

import "strings"

const telegramMessageLimit = 4096

// SplitMessage делит текст на части не длиннее limit рун, по возможности
// по переводам строк.
func SplitMessage(text string, limit int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || limit <= 0 {
		return nil
	}
	runes := []rune(trimmed)
	if len(runes) <= limit {
		return []string{trimmed}
	}

	var parts []string
	for start := 0; start < len(runes); {
		end := start + limit
		if end >= len(runes) {
			end = len(runes)
		} else if cut := lastNewline(runes, start, end); cut > 0 {
			end = cut
		}
		if chunk := strings.Trim(string(runes[start:end]), "\n"); chunk != "" {
			parts = append(parts, chunk)
		}
		start = end
		for start < len(runes) && runes[start] == '\n' {
			start++
		}
	}
	return parts
}

func lastNewline(runes []rune, start, end int) int {
	for i := end; i > start; i-- {
		if runes[i-1] == '\n' {
			return i
		}
	}
	return -1
}
