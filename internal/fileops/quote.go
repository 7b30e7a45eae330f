package fileops

import "strings"

var quoteEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	`$`, `\$`,
	"`", "\\`",
)

// Quote wraps an untrusted path in double quotes for safe embedding in a
// synthesized shell command. Backslash, double quote, dollar and backtick
// are escaped so the path can never split the command or trigger
// substitution.
func Quote(path string) string {
	return `"` + quoteEscaper.Replace(path) + `"`
}
