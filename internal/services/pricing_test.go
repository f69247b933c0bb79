package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTierCredits(t *testing.T) {
	cases := []struct {
		segments int
		want     float64
	}{
		{0, 1},
		{100, 1},
		{101, 2},
		{350, 2},
		{400, 2},
		{401, 3},
		{800, 3},
		{801, 4},
		{1200, 4},
		{1201, 6},
		{2000, 6},
		{2001, 8},
		{50000, 8},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d segments", tc.segments), func(t *testing.T) {
			assert.Equal(t, tc.want, TierCredits(tc.segments))
		})
	}
}
