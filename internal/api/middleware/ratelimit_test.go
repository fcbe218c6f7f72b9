package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindLimitPicksMostSpecificPattern(t *testing.T) {
	rl := NewRateLimiter(nil, zerolog.Nop())

	cases := []struct {
		method  string
		path    string
		pattern string
	}{
		{"POST", "/rooms", "POST /rooms"},
		{"POST", "/rooms/5f2b/uploads", "POST /rooms/"},
		{"GET", "/rooms/5f2b/messages", "GET /rooms/"},
		{"GET", "/rooms/5f2b", "GET /rooms/"},
		{"GET", "/ws", "GET /ws"},
		{"GET", "/healthz", "GET /healthz"},
		{"GET", "/metrics", ""},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		limit, pattern := rl.findLimit(req)
		assert.Equal(t, tc.pattern, pattern, "%s %s", tc.method, tc.path)
		if tc.pattern == "" {
			assert.Nil(t, limit)
		} else {
			assert.NotNil(t, limit)
		}
	}
}

func TestUploadsGovernedByRoomSubresourceBudget(t *testing.T) {
	rl := NewRateLimiter(nil, zerolog.Nop())

	// Uploads must draw from the per-minute room-subresource budget, not
	// the room-creation budget.
	limit, pattern := rl.findLimit(httptest.NewRequest("POST", "/rooms/5f2b/uploads", nil))
	require.NotNil(t, limit)
	assert.Equal(t, "POST /rooms/", pattern)
	assert.Equal(t, 120, limit.Requests)
	assert.Equal(t, time.Minute, limit.Window)

	creation, pattern := rl.findLimit(httptest.NewRequest("POST", "/rooms", nil))
	require.NotNil(t, creation)
	assert.Equal(t, "POST /rooms", pattern)
	assert.Equal(t, 30, creation.Requests)
	assert.Equal(t, time.Hour, creation.Window)
}
