package browser

import (
	"strings"
	"sync"
	"time"

	"github.com/xkilldash9x/spyglass/api/schemas"
)

// Capture caps. Old entries are evicted when a page is chatty.
const (
	maxConsoleLogs = 1000
	maxNetworkLogs = 500
)

// consoleRing is a bounded buffer of console messages for one page.
type consoleRing struct {
	mu   sync.Mutex
	logs []schemas.ConsoleLog
}

func (r *consoleRing) add(entry schemas.ConsoleLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, entry)
	if len(r.logs) > maxConsoleLogs {
		r.logs = r.logs[len(r.logs)-maxConsoleLogs:]
	}
}

// query returns entries matching q, oldest first.
func (r *consoleRing) query(q schemas.LogQuery) []schemas.ConsoleLog {
	r.mu.Lock()
	defer r.mu.Unlock()

	var typeSet map[string]struct{}
	if len(q.Types) > 0 {
		typeSet = make(map[string]struct{}, len(q.Types))
		for _, t := range q.Types {
			typeSet[strings.ToLower(t)] = struct{}{}
		}
	}

	out := make([]schemas.ConsoleLog, 0, len(r.logs))
	for _, entry := range r.logs {
		if typeSet != nil {
			if _, ok := typeSet[strings.ToLower(entry.Type)]; !ok {
				continue
			}
		}
		if q.Since != nil && entry.Timestamp.Before(*q.Since) {
			continue
		}
		if q.Until != nil && entry.Timestamp.After(*q.Until) {
			continue
		}
		if q.TextContains != "" && !strings.Contains(strings.ToLower(entry.Text), strings.ToLower(q.TextContains)) {
			continue
		}
		out = append(out, entry)
	}

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out
}

// networkRing is a bounded buffer of network events for one page.
type networkRing struct {
	mu   sync.Mutex
	logs []schemas.NetworkLog
}

func (r *networkRing) add(entry schemas.NetworkLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, entry)
	if len(r.logs) > maxNetworkLogs {
		r.logs = r.logs[len(r.logs)-maxNetworkLogs:]
	}
}

func (r *networkRing) query(since *time.Time, limit int) []schemas.NetworkLog {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]schemas.NetworkLog, 0, len(r.logs))
	for _, entry := range r.logs {
		if since != nil && entry.Timestamp.Before(*since) {
			continue
		}
		out = append(out, entry)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
