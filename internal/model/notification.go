package model

import "fmt"

// NotificationLevel is the highest usage threshold an account has been notified about.
// The stored integer is the ordinal, not the percentage.
type NotificationLevel int

const (
	LevelZero NotificationLevel = iota
	LevelTwentyFive
	LevelFifty
	LevelSeventyFive
	LevelNinety
	LevelHundred
)

var levelTable = [...]struct {
	Name    string
	Percent int
}{
	LevelZero:        {"Zero", 0},
	LevelTwentyFive:  {"TwentyFive", 25},
	LevelFifty:       {"Fifty", 50},
	LevelSeventyFive: {"SeventyFive", 75},
	LevelNinety:      {"Ninety", 90},
	LevelHundred:     {"Hundred", 100},
}

// Percent returns the usage threshold the level stands for.
func (l NotificationLevel) Percent() int {
	if !l.Valid() {
		return 0
	}
	return levelTable[l].Percent
}

// Valid reports whether l is one of the six known levels.
func (l NotificationLevel) Valid() bool {
	return l >= LevelZero && l <= LevelHundred
}

func (l NotificationLevel) String() string {
	if !l.Valid() {
		return fmt.Sprintf("NotificationLevel(%d)", int(l))
	}
	return levelTable[l].Name
}

// NextLevel returns the greatest threshold strictly below usagePercent.
// Usage at or below 0% maps to LevelZero and anything above 100% to LevelHundred.
func NextLevel(usagePercent float64) NotificationLevel {
	next := LevelZero
	for l := LevelZero; l <= LevelHundred; l++ {
		if float64(levelTable[l].Percent) < usagePercent {
			next = l
		}
	}
	return next
}
