package domain

import "time"

type FuelLevel string

const (
	FuelLevelEmpty         FuelLevel = "empty"
	FuelLevelQuarter       FuelLevel = "quarter"
	FuelLevelHalf          FuelLevel = "half"
	FuelLevelThreeQuarters FuelLevel = "three_quarters"
	FuelLevelFull          FuelLevel = "full"
)

var fuelLevelRank = map[FuelLevel]int32{
	FuelLevelEmpty:         0,
	FuelLevelQuarter:       1,
	FuelLevelHalf:          2,
	FuelLevelThreeQuarters: 3,
	FuelLevelFull:          4,
}

func ParseFuelLevel(s string) (FuelLevel, error) {
	lvl := FuelLevel(s)
	if !lvl.Valid() {
		return "", &InvalidFuelLevelError{Level: s}
	}
	return lvl, nil
}

func (f FuelLevel) Valid() bool {
	_, ok := fuelLevelRank[f]
	return ok
}

// Rank orders the levels from empty (0) to full (4).
func (f FuelLevel) Rank() int32 {
	return fuelLevelRank[f]
}

// ShortfallLevels is how many quarter-tank steps the vehicle came back below where it left.
func ShortfallLevels(checkIn, checkOut FuelLevel) int32 {
	if d := checkIn.Rank() - checkOut.Rank(); d > 0 {
		return d
	}
	return 0
}

type CheckInRecord struct {
	Mileage     int32     `json:"mileage"`
	FuelLevel   FuelLevel `json:"fuel_level"`
	Notes       string    `json:"notes"`
	PhotoRefs   []string  `json:"photo_refs,omitempty"`
	AgentID     int32     `json:"agent_id"`
	CheckedInAt time.Time `json:"checked_in_at"`
}

type CheckOutRecord struct {
	Mileage          int32     `json:"mileage"`
	FuelLevel        FuelLevel `json:"fuel_level"`
	MilesDriven      int32     `json:"miles_driven"`
	UnlimitedMileage bool      `json:"unlimited_mileage"`
	AllowedMiles     int32     `json:"allowed_miles"`
	OverageMiles     int32     `json:"overage_miles"`
	MileageFeeCents  int32     `json:"mileage_fee_cents"`
	FuelFeeCents     int32     `json:"fuel_fee_cents"`
	AgentID          int32     `json:"agent_id"`
	CheckedOutAt     time.Time `json:"checked_out_at"`
}

type Vehicle struct {
	ID                    int32 `json:"id"`
	CurrentMileage        int32 `json:"current_mileage"`
	DailyRateCents        int32 `json:"daily_rate_cents"`
	DepositCents          int32 `json:"deposit_cents"`
	UnlimitedMileage      bool  `json:"unlimited_mileage"`
	DailyMileageAllowance int32 `json:"daily_mileage_allowance"`
	ExtraMileRateCents    int32 `json:"extra_mile_rate_cents"`
}
