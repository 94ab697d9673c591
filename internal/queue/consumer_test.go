package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent() PlotsPurchasedEvent {
	return PlotsPurchasedEvent{
		EventID:       "ev-1",
		FarmID:        "1",
		FarmName:      "Urban Greens Collective",
		UserID:        7,
		Holder:        "rN7n7otQDd6FczFgLdSqtcsAUxDkw6fzRH",
		TokenID:       "tok",
		TxRef:         "SIM-ABC",
		PlotIDs:       []string{"T1-L1-A", "T1-L1-C"},
		TotalPriceXRP: 31.4,
		Simulated:     true,
		PurchasedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestFormatLine(t *testing.T) {
	line := FormatLine(sampleEvent())
	assert.True(t, strings.HasPrefix(line, "[2026-03-01T12:00:00Z] Plots purchased"))
	assert.Contains(t, line, `farm="Urban Greens Collective"`)
	assert.Contains(t, line, "total=31.4 XRP")
	assert.Contains(t, line, "mode=simulated")
	assert.Contains(t, line, "plots=[T1-L1-A,T1-L1-C]")
	assert.True(t, strings.HasSuffix(line, "\n"))
}

func TestHandleAppendsToLog(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	c := NewConsumer("amqp://unused", dir, nil)

	body, err := json.Marshal(sampleEvent())
	require.NoError(t, err)
	require.NoError(t, c.Handle(body))
	require.NoError(t, c.Handle(body))

	data, err := os.ReadFile(filepath.Join(dir, "purchase.log"))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "Plots purchased"))
}

func TestHandleRejectsGarbage(t *testing.T) {
	c := NewConsumer("amqp://unused", t.TempDir(), nil)
	assert.Error(t, c.Handle([]byte("{not json")))
}
