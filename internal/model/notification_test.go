package model

import (
	"testing"
	"time"
)

func TestNextLevel_AllBoundaries(t *testing.T) {
	tests := []struct {
		percent float64
		want    NotificationLevel
	}{
		{0, LevelZero},
		{10, LevelZero},
		{25, LevelZero},
		{25.01, LevelTwentyFive},
		{50, LevelTwentyFive},
		{50.5, LevelFifty},
		{75, LevelFifty},
		{86.36, LevelSeventyFive},
		{90, LevelSeventyFive},
		{90.1, LevelNinety},
		{99.9, LevelNinety},
		{100, LevelNinety},
		{100.01, LevelHundred},
		{250, LevelHundred},
	}
	for _, tt := range tests {
		if got := NextLevel(tt.percent); got != tt.want {
			t.Errorf("percent %.2f: expected %v, got %v", tt.percent, tt.want, got)
		}
	}
}

func TestNextLevel_MonotonicInUsage(t *testing.T) {
	prev := LevelZero
	for p := 0.0; p <= 120; p += 0.5 {
		got := NextLevel(p)
		if got < prev {
			t.Fatalf("level dropped from %v to %v at %.1f%%", prev, got, p)
		}
		prev = got
	}
}

func TestNotificationLevel_String(t *testing.T) {
	if LevelSeventyFive.String() != "SeventyFive" {
		t.Errorf("unexpected name %q", LevelSeventyFive.String())
	}
	if LevelNinety.Percent() != 90 {
		t.Errorf("expected 90, got %d", LevelNinety.Percent())
	}
	if NotificationLevel(9).Valid() {
		t.Error("level 9 should be invalid")
	}
}

func TestProposalType_Duration(t *testing.T) {
	start := time.Date(2024, 1, 1, 15, 4, 0, 0, time.UTC)
	tests := []struct {
		typ  ProposalType
		want time.Time
	}{
		{ProposalStandard, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)},
		{ProposalClass, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)},
		{ProposalInvestorFunded, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := tt.typ.EndDate(start); !got.Equal(tt.want) {
			t.Errorf("%v: expected end %s, got %s", tt.typ, tt.want.Format(DateLayout), got.Format(DateLayout))
		}
	}
}

func TestParseProposalType(t *testing.T) {
	for in, want := range map[string]ProposalType{
		"proposal": ProposalStandard,
		"Standard": ProposalStandard,
		"class":    ProposalClass,
		"investor": ProposalInvestorFunded,
	} {
		got, err := ParseProposalType(in)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", in, err)
		}
		if got != want {
			t.Errorf("%q: expected %v, got %v", in, want, got)
		}
	}
	if _, err := ParseProposalType("grant"); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestInvestment_YearsRemaining(t *testing.T) {
	today := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	inv := Investment{EndDate: today.AddDate(0, 0, InvestmentDays)}
	if got := inv.YearsRemaining(today); got != 5 {
		t.Errorf("expected 5 years, got %d", got)
	}
	inv.EndDate = today.AddDate(0, 0, 400)
	if got := inv.YearsRemaining(today); got != 1 {
		t.Errorf("expected 1 year, got %d", got)
	}
	inv.EndDate = today.AddDate(0, 0, -3)
	if got := inv.YearsRemaining(today); got != 1 {
		t.Errorf("expected floor of 1 year, got %d", got)
	}
}
