package browser

import (
	"fmt"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/spyglass/api/schemas"
)

func newCapturePage() *Page {
	return &Page{inflight: make(map[network.RequestID]schemas.NetworkLog)}
}

func requestEvent(i int) *network.EventRequestWillBeSent {
	return &network.EventRequestWillBeSent{
		RequestID: network.RequestID(fmt.Sprintf("req-%d", i)),
		Request: &network.Request{
			Method: "GET",
			URL:    fmt.Sprintf("https://fuzzycode.dev/asset-%d", i),
		},
	}
}

func TestInflightMapIsCapped(t *testing.T) {
	p := newCapturePage()

	// Requests that never get a response or failure must not grow the
	// attribution map without bound.
	for i := 0; i < maxInflightRequests*3; i++ {
		p.onRequest(requestEvent(i))
	}

	assert.LessOrEqual(t, len(p.inflight), maxInflightRequests)
	// Every request still lands in the network ring regardless.
	logs := p.netlog.query(nil, 0)
	assert.Len(t, logs, maxNetworkLogs)
}

func TestInflightEvictsStaleEntriesFirst(t *testing.T) {
	p := newCapturePage()

	stale := time.Now().UTC().Add(-2 * inflightTTL)
	for i := 0; i < maxInflightRequests; i++ {
		p.inflight[network.RequestID(fmt.Sprintf("old-%d", i))] = schemas.NetworkLog{
			Timestamp: stale,
			Method:    "GET",
			Type:      "request",
		}
	}

	p.onRequest(requestEvent(0))

	// The stale backlog is gone and the fresh request is tracked.
	require.Contains(t, p.inflight, network.RequestID("req-0"))
	assert.Len(t, p.inflight, 1)
}

func TestResponseAttributionSurvivesEviction(t *testing.T) {
	p := newCapturePage()
	p.onRequest(requestEvent(7))

	p.onResponse(&network.EventResponseReceived{
		RequestID: network.RequestID("req-7"),
		Response: &network.Response{
			URL:    "https://fuzzycode.dev/asset-7",
			Status: 200,
		},
	})

	assert.Empty(t, p.inflight)
	logs := p.netlog.query(nil, 1)
	require.Len(t, logs, 1)
	assert.Equal(t, "response", logs[0].Type)
	assert.Equal(t, "GET", logs[0].Method)
}
