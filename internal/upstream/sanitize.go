package upstream

import "regexp"

// formatCodes matches in-game text formatting: `$` followed by a style letter
// or a 3-digit upper-case hex color.
var formatCodes = regexp.MustCompile(`\$(?:[wnoitsgz]|[0-9A-F]{3})`)

// SanitizeName strips formatting codes from a map name.
func SanitizeName(name string) string {
	return formatCodes.ReplaceAllString(name, "")
}
