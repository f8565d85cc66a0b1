package execution

import "strings"

const (
	defaultOutputLines = 200
	maxOutputChars     = 8000
)

// truncateOutput keeps the tail of output: the end of a script's output
// is where errors and final results appear.
func truncateOutput(output string, maxLines int) (string, bool) {
	if output == "" {
		return "", false
	}
	truncated := false
	lines := strings.Split(output, "\n")
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
		truncated = true
	}
	joined := strings.Join(lines, "\n")
	if len(joined) > maxOutputChars {
		joined = joined[len(joined)-maxOutputChars:]
		truncated = true
	}
	return joined, truncated
}
