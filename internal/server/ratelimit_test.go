package server

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPRateLimiterEvictsIdleClientsOnly(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l := newIPRateLimiter(2)
	l.maxClients = 4
	l.now = func() time.Time { return now }

	// An active client spends its budget
	active := l.get("192.0.2.1")
	require.True(t, active.AllowN(now, 2))

	// A flood of fresh keys must not hand the active client a new bucket
	for i := 0; i < 20; i++ {
		now = now.Add(time.Second)
		l.get("192.0.2.1")
		l.get(fmt.Sprintf("198.51.100.%d", i))
	}

	assert.LessOrEqual(t, len(l.clients), l.maxClients)
	assert.Same(t, active, l.get("192.0.2.1"))
}

func TestIPRateLimiterSweepsIdleClients(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l := newIPRateLimiter(2)
	l.maxClients = 3
	l.now = func() time.Time { return now }

	l.get("198.51.100.1")
	l.get("198.51.100.2")
	l.get("198.51.100.3")

	now = now.Add(2 * time.Minute)
	l.get("198.51.100.4")

	assert.Len(t, l.clients, 1)
	assert.Contains(t, l.clients, "198.51.100.4")
}
