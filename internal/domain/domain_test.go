package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCountry(t *testing.T) {
	cases := map[string]string{
		"DE-FRANKFURT": "DE",
		"US-NEWYORK":   "US",
		"BR":           "BR",
		"":             "",
	}
	for location, want := range cases {
		node := NodeHealthMetrics{Location: location}
		assert.Equal(t, want, node.Country(), "location %q", location)
	}
}

func TestHeartbeatStale(t *testing.T) {
	now := time.Unix(1700000000, 0)

	fresh := NodeHealthMetrics{LastHeartbeat: now.Add(-299 * time.Second)}
	assert.False(t, fresh.HeartbeatStale(now))

	boundary := NodeHealthMetrics{LastHeartbeat: now.Add(-300 * time.Second)}
	assert.False(t, boundary.HeartbeatStale(now))

	stale := NodeHealthMetrics{LastHeartbeat: now.Add(-301 * time.Second)}
	assert.True(t, stale.HeartbeatStale(now))
}

func TestParsePriorityMode(t *testing.T) {
	assert.Equal(t, PrioritySpeed, ParsePriorityMode("speed"))
	assert.Equal(t, PriorityPrivacy, ParsePriorityMode("privacy"))
	assert.Equal(t, PriorityBalanced, ParsePriorityMode("balanced"))

	// valores desconhecidos caem no modo balanceado
	assert.Equal(t, PriorityBalanced, ParsePriorityMode(""))
	assert.Equal(t, PriorityBalanced, ParsePriorityMode("turbo"))
}

func TestPriorityModeString(t *testing.T) {
	assert.Equal(t, "speed", PrioritySpeed.String())
	assert.Equal(t, "privacy", PriorityPrivacy.String())
	assert.Equal(t, "balanced", PriorityBalanced.String())
}
