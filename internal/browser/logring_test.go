package browser

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/spyglass/api/schemas"
)

func TestConsoleRing_EvictsOldestBeyondCap(t *testing.T) {
	var ring consoleRing
	for i := 0; i < maxConsoleLogs+50; i++ {
		ring.add(schemas.ConsoleLog{
			Timestamp: time.Now(),
			Type:      "log",
			Text:      fmt.Sprintf("message %d", i),
		})
	}

	got := ring.query(schemas.LogQuery{})
	require.Len(t, got, maxConsoleLogs)
	assert.Equal(t, "message 50", got[0].Text)
	assert.Equal(t, fmt.Sprintf("message %d", maxConsoleLogs+49), got[len(got)-1].Text)
}

func TestConsoleRing_FiltersByTypeAndText(t *testing.T) {
	var ring consoleRing
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ring.add(schemas.ConsoleLog{Timestamp: base, Type: "log", Text: "startup complete"})
	ring.add(schemas.ConsoleLog{Timestamp: base.Add(time.Second), Type: "error", Text: "fetch failed: 500"})
	ring.add(schemas.ConsoleLog{Timestamp: base.Add(2 * time.Second), Type: "warning", Text: "deprecated API"})
	ring.add(schemas.ConsoleLog{Timestamp: base.Add(3 * time.Second), Type: "error", Text: "uncaught TypeError"})

	errs := ring.query(schemas.LogQuery{Types: []string{"error"}})
	require.Len(t, errs, 2)
	assert.Equal(t, "fetch failed: 500", errs[0].Text)

	matched := ring.query(schemas.LogQuery{TextContains: "typeerror"})
	require.Len(t, matched, 1)
	assert.Equal(t, "uncaught TypeError", matched[0].Text)
}

func TestConsoleRing_TimeWindowAndLimit(t *testing.T) {
	var ring consoleRing
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		ring.add(schemas.ConsoleLog{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Type:      "log",
			Text:      fmt.Sprintf("tick %d", i),
		})
	}

	since := base.Add(3 * time.Minute)
	until := base.Add(7 * time.Minute)
	got := ring.query(schemas.LogQuery{Since: &since, Until: &until})
	require.Len(t, got, 5)
	assert.Equal(t, "tick 3", got[0].Text)
	assert.Equal(t, "tick 7", got[4].Text)

	// Limit keeps the newest entries of the filtered window.
	limited := ring.query(schemas.LogQuery{Since: &since, Until: &until, Limit: 2})
	require.Len(t, limited, 2)
	assert.Equal(t, "tick 6", limited[0].Text)
	assert.Equal(t, "tick 7", limited[1].Text)
}

func TestNetworkRing_EvictsAndFilters(t *testing.T) {
	var ring networkRing
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < maxNetworkLogs+10; i++ {
		ring.add(schemas.NetworkLog{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Method:    "GET",
			URL:       fmt.Sprintf("https://example.com/%d", i),
			Type:      "request",
		})
	}

	all := ring.query(nil, 0)
	require.Len(t, all, maxNetworkLogs)
	assert.Equal(t, "https://example.com/10", all[0].URL)

	since := base.Add(time.Duration(maxNetworkLogs+5) * time.Second)
	recent := ring.query(&since, 0)
	require.Len(t, recent, 5)

	limited := ring.query(nil, 3)
	require.Len(t, limited, 3)
	assert.Equal(t, fmt.Sprintf("https://example.com/%d", maxNetworkLogs+9), limited[2].URL)
}
