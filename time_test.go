package identity_test

import (
	"testing"
	"time"

	"github.com/openwater/identity"
	"github.com/stretchr/testify/assert"
)

func TestIsWithinThresholdPeriod(t *testing.T) {
	tests := []struct {
		name    string
		t       time.Time
		pattern string
		want    bool
		wantErr bool
	}{
		{
			name:    "recent time within 24h",
			t:       time.Now().Add(-1 * time.Hour),
			pattern: "24h",
			want:    true,
		},
		{
			name:    "old time outside 24h",
			t:       time.Now().Add(-48 * time.Hour),
			pattern: "24h",
			want:    false,
		},
		{
			name:    "future time is within",
			t:       time.Now().Add(time.Hour),
			pattern: "24h",
			want:    true,
		},
		{
			name:    "bad duration pattern",
			t:       time.Now(),
			pattern: "one-day",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := identity.IsWithinThresholdPeriod(tt.t, tt.pattern)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsOutsideThresholdPeriod(t *testing.T) {
	within, err := identity.IsOutsideThresholdPeriod(time.Now().Add(-1*time.Hour), "24h")
	assert.NoError(t, err)
	assert.False(t, within)

	outside, err := identity.IsOutsideThresholdPeriod(time.Now().Add(-48*time.Hour), "24h")
	assert.NoError(t, err)
	assert.True(t, outside)

	_, err = identity.IsOutsideThresholdPeriod(time.Now(), "one-day")
	assert.Error(t, err)
}
