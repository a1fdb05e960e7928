package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"captioner/pkg/models"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected models.Status
	}{
		{"nil", nil, models.StatusSuccess},
		{"corrupt", Corrupt("load", errors.New("bad header")), models.StatusErrorCorrupt},
		{"capability", Capability("caption", errors.New("503")), models.StatusErrorCapability},
		{"processing", Processing("caption", errors.New("empty")), models.StatusErrorProcessing},
		{"wrapped", fmt.Errorf("outer: %w", Corrupt("load", errors.New("eof"))), models.StatusErrorCorrupt},
		{"unclassified", errors.New("boom"), models.StatusErrorProcessing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StatusOf(tt.err))
		})
	}
}

func TestFromStatusCode(t *testing.T) {
	e := FromStatusCode("openai", 429, "slow down")
	assert.Equal(t, KindCapability, e.Kind)
	assert.True(t, e.Temporary)
	assert.Contains(t, e.Error(), "code 429")
	assert.True(t, IsTemporary(e))

	e = FromStatusCode("openai", 401, "bad key")
	assert.False(t, e.Temporary)
	assert.False(t, IsTemporary(fmt.Errorf("wrap: %w", e)))
	assert.False(t, IsTemporary(errors.New("plain")))
}

func TestIsRetryableStatusCode(t *testing.T) {
	for _, code := range []int{0, 408, 429, 500, 502, 503, 504, 529} {
		assert.True(t, IsRetryableStatusCode(code), "code %d", code)
	}
	for _, code := range []int{400, 401, 403, 404, 422} {
		assert.False(t, IsRetryableStatusCode(code), "code %d", code)
	}
}

func TestRetryAfterOf(t *testing.T) {
	err := fmt.Errorf("x: %w", &Error{Kind: KindCapability, RetryAfter: 3 * time.Second})
	assert.Equal(t, 3*time.Second, RetryAfterOf(err))
	assert.Zero(t, RetryAfterOf(errors.New("plain")))
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	// é is two bytes, cutting at 4 would split it
	assert.Equal(t, "caf...", truncate("café au lait", 4))
	assert.Equal(t, "café...", truncate("café au lait", 5))

	body := strings.Repeat("é", 150)
	e := FromStatusCode("gemini", 500, body)
	assert.True(t, utf8.ValidString(e.Error()))
}
