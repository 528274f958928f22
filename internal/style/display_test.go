package style_test

import (
	"sync"
	"testing"

	"github.com/robalyx/cotd/internal/style"
	"github.com/stretchr/testify/assert"
)

func TestDisplay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "SpeedTech", want: "SPEEDTECH"},
		{in: "ZrT", want: "ZRT"},
		{in: "press forward", want: "PRESS FORWARD"},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, style.Display(tt.in))
		})
	}
}

func TestDisplayConcurrent(t *testing.T) {
	t.Parallel()

	var wg sync.WaitGroup
	results := make([]string, 32)

	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = style.Display("Ice")
		}()
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, "ICE", got)
	}
}
