package domain

const (
	UnitKg = "kg"
	UnitLb = "lb"

	kgToLb = 2.2046226218
)

// ConvertWeight converts a weight value between "kg" and "lb".
// Returns v unchanged if from == to or if the units are unrecognised.
func ConvertWeight(v float64, from, to string) float64 {
	if from == to {
		return v
	}
	if from == UnitKg && to == UnitLb {
		return v * kgToLb
	}
	if from == UnitLb && to == UnitKg {
		return v / kgToLb
	}
	return v
}

// ToPounds normalises an input weight to pounds. An empty unit means pounds.
func ToPounds(v float64, unit string) (float64, error) {
	switch unit {
	case "", UnitLb:
		return v, nil
	case UnitKg:
		return ConvertWeight(v, UnitKg, UnitLb), nil
	default:
		return 0, Validationf("unit must be %q or %q", UnitKg, UnitLb)
	}
}
