package style_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/robalyx/cotd/internal/style"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVocabulary(t *testing.T) *style.Vocabulary {
	t.Helper()

	v, err := style.NewVocabulary(map[int]string{
		1:  "Race",
		2:  "FullSpeed",
		3:  "Tech",
		12: "SpeedFun",
		11: "ZrT",
	})
	require.NoError(t, err)

	return v
}

func TestVocabularyResolve(t *testing.T) {
	t.Parallel()

	v := newTestVocabulary(t)

	tests := []struct {
		name    string
		codes   []int
		want    []string
		wantErr error
	}{
		{
			name:  "keeps order",
			codes: []int{3, 2},
			want:  []string{"Tech", "FullSpeed"},
		},
		{
			name:  "empty",
			codes: nil,
			want:  []string{},
		},
		{
			name:    "unknown code fails",
			codes:   []int{1, 999},
			wantErr: style.ErrUnknownStyleCode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := v.Resolve(tt.codes)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVocabularyLookupIgnoresCase(t *testing.T) {
	t.Parallel()

	v := newTestVocabulary(t)

	s, ok := v.Lookup("  fullspeed ")
	require.True(t, ok)
	assert.Equal(t, style.Style{ID: 2, Name: "FullSpeed"}, s)

	_, ok = v.Lookup("speed")
	assert.False(t, ok)
}

func TestVocabularyNamesSortedCaseInsensitive(t *testing.T) {
	t.Parallel()

	v := newTestVocabulary(t)
	assert.Equal(t, []string{"FullSpeed", "Race", "SpeedFun", "Tech", "ZrT"}, v.Names())
	assert.Equal(t, 5, v.Len())
}

func TestNewVocabularyRejectsDuplicates(t *testing.T) {
	t.Parallel()

	_, err := style.NewVocabulary(map[int]string{1: "Tech", 2: "tech"})
	require.Error(t, err)

	_, err = style.NewVocabulary(nil)
	require.ErrorIs(t, err, style.ErrEmptyVocabulary)
}

func TestLoadVocabulary(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "styles.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"1": "Race", "3": "Tech"}`), 0o600))

	v, err := style.LoadVocabulary(path)
	require.NoError(t, err)

	name, ok := v.Name(3)
	require.True(t, ok)
	assert.Equal(t, "Tech", name)
}

func TestLoadVocabularyShippedFile(t *testing.T) {
	t.Parallel()

	v, err := style.LoadVocabulary(filepath.Join("..", "..", "dat", "styles.json"))
	require.NoError(t, err)
	assert.Equal(t, 67, v.Len())

	s, ok := v.Lookup("press forward")
	require.True(t, ok)
	assert.Equal(t, 6, s.ID)
}

func TestLoadVocabularyBadKey(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "styles.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"one": "Race"}`), 0o600))

	_, err := style.LoadVocabulary(path)
	require.Error(t, err)
}
