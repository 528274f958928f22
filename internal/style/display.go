package style

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Display returns the upper-cased form used when a style is shown to users.
func Display(name string) string {
	// A Caser keeps state between calls so each call gets its own
	return cases.Upper(language.Und).String(name)
}
