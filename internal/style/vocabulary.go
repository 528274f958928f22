// Package style holds the map style vocabulary used by the tagging service.
package style

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

var (
	// ErrUnknownStyleCode is returned when a tag code is missing from the vocabulary.
	ErrUnknownStyleCode = errors.New("unknown style code")
	// ErrEmptyVocabulary is returned when the vocabulary file contains no styles.
	ErrEmptyVocabulary = errors.New("style vocabulary is empty")
)

// Style is a single vocabulary entry.
type Style struct {
	ID   int
	Name string
}

// Vocabulary maps numeric tag codes to display names. It is immutable once loaded.
type Vocabulary struct {
	byID   map[int]string
	byName map[string]Style
	sorted []Style
}

// LoadVocabulary reads a `{"<id>": "<name>"}` JSON file.
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read style vocabulary: %w", err)
	}

	var raw map[string]string
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse style vocabulary: %w (path=%s)", err, path)
	}

	styles := make(map[int]string, len(raw))
	for key, name := range raw {
		id, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("invalid style code %q: %w", key, err)
		}

		styles[id] = name
	}

	return NewVocabulary(styles)
}

// NewVocabulary builds a vocabulary from a code to name mapping.
func NewVocabulary(styles map[int]string) (*Vocabulary, error) {
	if len(styles) == 0 {
		return nil, ErrEmptyVocabulary
	}

	v := &Vocabulary{
		byID:   make(map[int]string, len(styles)),
		byName: make(map[string]Style, len(styles)),
		sorted: make([]Style, 0, len(styles)),
	}

	for id, name := range styles {
		name = strings.TrimSpace(name)
		key := strings.ToLower(name)

		if existing, ok := v.byName[key]; ok {
			return nil, fmt.Errorf("duplicate style name %q (ids=%d,%d)", name, existing.ID, id)
		}

		v.byID[id] = name
		v.byName[key] = Style{ID: id, Name: name}
		v.sorted = append(v.sorted, Style{ID: id, Name: name})
	}

	// Sort case-insensitively the way users read the list
	col := collate.New(language.English, collate.IgnoreCase)
	slices.SortFunc(v.sorted, func(a, b Style) int {
		return col.CompareString(a.Name, b.Name)
	})

	return v, nil
}

// Name returns the display name for a tag code.
func (v *Vocabulary) Name(code int) (string, bool) {
	name, ok := v.byID[code]
	return name, ok
}

// Resolve maps tag codes to display names, keeping their order.
// Any unknown code fails the whole resolution.
func (v *Vocabulary) Resolve(codes []int) ([]string, error) {
	names := make([]string, 0, len(codes))

	for _, code := range codes {
		name, ok := v.byID[code]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownStyleCode, code)
		}

		names = append(names, name)
	}

	return names, nil
}

// Lookup finds a style by name, ignoring case and surrounding whitespace.
func (v *Vocabulary) Lookup(name string) (Style, bool) {
	s, ok := v.byName[strings.ToLower(strings.TrimSpace(name))]
	return s, ok
}

// Styles returns every style sorted by name.
func (v *Vocabulary) Styles() []Style {
	return slices.Clone(v.sorted)
}

// Names returns every style name sorted case-insensitively.
func (v *Vocabulary) Names() []string {
	names := make([]string, len(v.sorted))
	for i, s := range v.sorted {
		names[i] = s.Name
	}

	return names
}

// Len returns the number of styles.
func (v *Vocabulary) Len() int {
	return len(v.byID)
}
