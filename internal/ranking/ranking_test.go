package ranking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		category string
		want     Priority
	}{
		{"brakes", Priority{High, 100}},
		{"Engine", Priority{High, 90}},
		{"  Transmission ", Priority{High, 90}},
		{"Fuel/Propulsion System", Priority{High, 90}},
		{"suspension", Priority{Medium, 70}},
		{"Electrical", Priority{Medium, 50}},
		{"body_paint", Priority{Low, 20}},
		{"Body/Paint", Priority{Low, 20}},
		{"flux capacitor", Default},
		{"", Priority{Low, 20}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Lookup(tt.category), "category %q", tt.category)
	}
}

func TestNormalizeCategory(t *testing.T) {
	assert.Equal(t, "seatbeltsairbags", NormalizeCategory("Seat-Belts/Airbags"))
	assert.Equal(t, "engine and engine cooling", NormalizeCategory("ENGINE AND ENGINE COOLING"))
	assert.Equal(t, "unknown or other", NormalizeCategory("!!"))
}

func TestKnown(t *testing.T) {
	assert.True(t, Known("Steering"))
	assert.False(t, Known("warp drive"))
}

func TestTierOrderingAndWeights(t *testing.T) {
	assert.Less(t, High.Rank(), Medium.Rank())
	assert.Less(t, Medium.Rank(), Low.Rank())
	assert.Greater(t, TierWeight(High), TierWeight(Medium))
	assert.Greater(t, TierWeight(Medium), TierWeight(Low))
}
