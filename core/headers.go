package core

import (
	"strings"

	"bacman/logger"
	"bacman/models"
)

// ParseOverrideHeaders turns free-form "Name: value" text into header lines.
// Blank lines, lines without a colon and lines with an empty name are skipped.
func ParseOverrideHeaders(text string) []models.HeaderLine {
	var out []models.HeaderLine
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			logger.Debug("ParseOverrideHeaders: skipping line without ':': %q", line)
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			logger.Debug("ParseOverrideHeaders: skipping line with empty header name: %q", line)
			continue
		}
		out = append(out, models.HeaderLine{Name: name, Value: strings.TrimSpace(value)})
	}
	return out
}

// SubstituteHeaders removes every original header whose name (case-insensitively) is
// overridden and appends the overrides in the order given. Neither input is modified.
func SubstituteHeaders(original, overrides []models.HeaderLine) []models.HeaderLine {
	replaced := make(map[string]struct{}, len(overrides))
	for _, h := range overrides {
		replaced[strings.ToLower(h.Name)] = struct{}{}
	}

	out := make([]models.HeaderLine, 0, len(original)+len(overrides))
	for _, h := range original {
		if _, ok := replaced[strings.ToLower(h.Name)]; ok {
			continue
		}
		out = append(out, h)
	}
	return append(out, overrides...)
}
