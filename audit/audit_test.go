package audit

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var linePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z - .+$`)

func TestRecordFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, zaptest.NewLogger(t))
	log.now = func() time.Time { return time.Date(2024, 3, 1, 12, 30, 45, 123_000_000, time.UTC) }

	log.Record("Uniswap: 1 WETH = 1200 DAI")
	log.Recordf("Approved %s WETH for %s", "1", "0xabc")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "2024-03-01T12:30:45.123Z - Uniswap: 1 WETH = 1200 DAI", lines[0])
	assert.Equal(t, "2024-03-01T12:30:45.123Z - Approved 1 WETH for 0xabc", lines[1])
}

func TestOpenAppendsAndMirrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	require.NoError(t, os.WriteFile(path, []byte("2024-01-01T00:00:00.000Z - earlier run\n"), 0o644))

	var console bytes.Buffer
	log, err := Open(path, &console, zaptest.NewLogger(t))
	require.NoError(t, err)

	log.Record("Arbitrage opportunity: Buy on sushiswap, sell on uniswap")
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "2024-01-01T00:00:00.000Z - earlier run", lines[0])
	assert.Regexp(t, linePattern, lines[1])
	assert.Contains(t, console.String(), "Arbitrage opportunity")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestRecordNeverPanicsOnWriteError(t *testing.T) {
	log := New(failingWriter{}, zaptest.NewLogger(t))
	assert.NotPanics(t, func() {
		log.Record("Sell trade executed")
	})
}
