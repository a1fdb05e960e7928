package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		input    string
		expected Status
		wantErr  bool
	}{
		{"success", StatusSuccess, false},
		{"error_corrupt", StatusErrorCorrupt, false},
		{"error_capability", StatusErrorCapability, false},
		{" error_processing ", StatusErrorProcessing, false},
		{"error_api", StatusErrorCapability, false},
		{"error_model", StatusErrorProcessing, false},
		{"done", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseStatus(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseStatusList(t *testing.T) {
	set, err := ParseStatusList("error_api, error_processing,")
	require.NoError(t, err)
	assert.True(t, set.Has(StatusErrorCapability))
	assert.True(t, set.Has(StatusErrorProcessing))
	assert.False(t, set.Has(StatusSuccess))
	assert.Equal(t, []Status{StatusErrorCapability, StatusErrorProcessing}, set.Slice())

	empty, err := ParseStatusList("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ParseStatusList("error_capability,bogus")
	assert.Error(t, err)
}

func TestStatusPredicates(t *testing.T) {
	assert.False(t, StatusSuccess.IsError())
	assert.True(t, StatusErrorCorrupt.IsError())
	assert.False(t, Status("unknown").IsError())
	assert.Len(t, AllStatuses(), 4)

	var nilSet StatusSet
	assert.False(t, nilSet.Has(StatusSuccess))
}

func TestRecordCaption(t *testing.T) {
	assert.Equal(t, "cat", Record{Result: StringPtr("cat")}.Caption())
	assert.Equal(t, "", Record{}.Caption())
}
