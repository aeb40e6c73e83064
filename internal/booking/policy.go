package booking

// Policy holds the business rules of the scheduler.
type Policy struct {
	// MaxExtensionHours bounds a single ExtendReservation call. It does not
	// accumulate across calls.
	MaxExtensionHours float64

	// ExtensionSurchargePerHour is the flat amount added to TotalPrice per
	// extended hour, independent of the station rate.
	ExtensionSurchargePerHour int64

	// GamesPerHour caps GameSelections at floor(GamesPerHour * DurationHours).
	GamesPerHour int

	// RecheckOverlapOnExtend makes ExtendReservation run the overlap test
	// against the new window. When false an extension may run into the next
	// booking on the same station.
	RecheckOverlapOnExtend bool

	// RejectUnavailableStations refuses bookings on stations whose status is
	// not AVAILABLE.
	RejectUnavailableStations bool
}

// DefaultPolicy returns the rules the storefront has always applied.
func DefaultPolicy() Policy {
	return Policy{
		MaxExtensionHours:         2,
		ExtensionSurchargePerHour: 20000,
		GamesPerHour:              4,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxExtensionHours <= 0 {
		p.MaxExtensionHours = d.MaxExtensionHours
	}
	if p.ExtensionSurchargePerHour < 0 {
		p.ExtensionSurchargePerHour = d.ExtensionSurchargePerHour
	}
	if p.GamesPerHour <= 0 {
		p.GamesPerHour = d.GamesPerHour
	}
	return p
}
