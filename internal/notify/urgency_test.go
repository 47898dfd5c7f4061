package notify

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUrgencyFor(t *testing.T) {
	tests := []struct {
		confidence float64
		want       Urgency
	}{
		{0.95, UrgencyHigh},
		{0.8, UrgencyHigh},
		{0.79, UrgencyMedium},
		{0.5, UrgencyMedium},
		{0.49, UrgencyLow},
		{0.0, UrgencyLow},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, UrgencyFor(tt.confidence), "confidence %v", tt.confidence)
	}
}

func TestUrgencyAdvice(t *testing.T) {
	require.Contains(t, UrgencyHigh.Advice(), "3-7 days")
	require.Contains(t, UrgencyMedium.Advice(), "2-4 weeks")
	require.Contains(t, UrgencyLow.Advice(), "8-12 weeks")
}
