package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MinWeight = 20.0
	MaxWeight = 300.0

	MinUsernameLen = 4
	MinPasswordLen = 8

	passwordSymbols = "!@#$%^&*"
)

// IsValidWeight reports whether w lies in [MinWeight, MaxWeight].
func IsValidWeight(w float64) bool {
	return w >= MinWeight && w <= MaxWeight
}

// IsValidDate reports whether s is a YYYY-MM-DD date no later than today in
// the local time zone.
func IsValidDate(s string) bool {
	return IsValidDateAt(s, time.Now())
}

// IsValidDateAt is IsValidDate evaluated against now.
func IsValidDateAt(s string, now time.Time) bool {
	d, err := time.ParseInLocation(DateLayout, s, time.Local)
	if err != nil {
		return false
	}
	return !d.After(now)
}

// IsUsernameValid reports whether u has at least MinUsernameLen characters.
func IsUsernameValid(u string) bool {
	return utf8.RuneCountInString(u) >= MinUsernameLen
}

// IsPasswordValid reports whether p has at least MinPasswordLen characters,
// one ASCII digit and one of !@#$%^&*.
func IsPasswordValid(p string) bool {
	if utf8.RuneCountInString(p) < MinPasswordLen {
		return false
	}
	return strings.ContainsAny(p, "0123456789") && strings.ContainsAny(p, passwordSymbols)
}

// ValidateMeasurement checks weight, date and goal, returning the first
// violation as a validation error.
func ValidateMeasurement(date string, weight float64, goal *float64) error {
	if !IsValidWeight(weight) {
		return Validationf("weight must be between %g and %g", MinWeight, MaxWeight)
	}
	if !IsValidDate(date) {
		return Validationf("date must be YYYY-MM-DD and not in the future")
	}
	if goal != nil && !IsValidWeight(*goal) {
		return Validationf("goal must be between %g and %g", MinWeight, MaxWeight)
	}
	return nil
}
