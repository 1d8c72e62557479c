package services

import (
	"errors"
	"testing"
)

func TestCalculateReferralReward_Schedule(t *testing.T) {
	cases := []struct {
		tier   int
		base   int64
		expect int64
	}{
		{1, 1000, 100},
		{2, 1000, 50},
		{3, 1000, 25},
		{1, 100, 10},
		{2, 100, 5},
		{3, 100, 2},  // 2.5 rounds down
		{1, 9, 0},    // 0.9 rounds down
		{3, 39, 0},   // 0.975 rounds down
		{1, 0, 0},
	}
	for _, tc := range cases {
		got, err := CalculateReferralReward(tc.tier, tc.base)
		if err != nil {
			t.Errorf("reward(%d, %d): unexpected error %v", tc.tier, tc.base, err)
			continue
		}
		if got != tc.expect {
			t.Errorf("reward(%d, %d) = %d, expected %d", tc.tier, tc.base, got, tc.expect)
		}
	}
}

func TestCalculateReferralReward_InvalidTier(t *testing.T) {
	for _, tier := range []int{0, -1, 4, 100} {
		if _, err := CalculateReferralReward(tier, 1000); !errors.Is(err, ErrInvalidTier) {
			t.Errorf("reward(%d, 1000): expected ErrInvalidTier, got %v", tier, err)
		}
	}
}

func TestCalculateReferralReward_InvalidAmount(t *testing.T) {
	if _, err := CalculateReferralReward(1, -1); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}
