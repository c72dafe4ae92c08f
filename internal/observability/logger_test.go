package observability

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogBuffer_KeepsMostRecent(t *testing.T) {
	lb := NewLogBuffer(3)
	for i := 0; i < 5; i++ {
		fmt.Fprintf(lb, "line %d\n", i)
	}
	assert.Equal(t, []string{"line 2", "line 3", "line 4"}, lb.Lines())
}

func TestInitLogger_WritesToBuffer(t *testing.T) {
	lb := NewLogBuffer(10)
	logger := InitLogger("warn", false, lb)
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	logger.Info().Msg("hidden")
	logger.Warn().Str("file", "call1.wav").Msg("Normalization failed")

	lines := lb.Lines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"file":"call1.wav"`)
	assert.Contains(t, lines[0], "Normalization failed")
}
