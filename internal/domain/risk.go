package domain

import "time"

// Severity grades a damage claim.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// Steps returns how many classes an at-fault claim of this severity costs.
func (s Severity) Steps() int {
	switch s {
	case SeverityMinor:
		return 1
	case SeverityModerate:
		return 2
	case SeveritySevere:
		return 3
	}
	return 0
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s.Steps() > 0
}

// DriverRiskProfile is the bonus-malus standing of a renter.
type DriverRiskProfile struct {
	UserID          string
	Class           int
	DriverScore     int
	TotalClaims     int
	CleanBookings   int
	GoodYears       int
	LastClaimAt     time.Time
	LastClassChange time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
