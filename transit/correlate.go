package transit

// TripMatch pairs one vehicle trip's ETAs at the origin and destination
// stops. DestETA is only ever set when it was matched to OriginETA by an
// identical trip id: a destination countdown for some other vehicle is
// worse than none at all.
type TripMatch struct {
	TripID    string
	OriginETA *int64
	DestETA   *int64
}

// Correlate scans origin predictions soonest-first for one whose trip also
// appears among the destination predictions and returns that pair. When no
// trip is shared, the earliest origin prediction stands alone with an
// unknown destination; when there are no origin predictions at all, the
// match is empty.
func Correlate(origin, dest []Prediction) TripMatch {
	for _, op := range origin {
		if op.TripID == "" {
			continue
		}
		for _, dp := range dest {
			if dp.TripID == op.TripID {
				oe, de := op.ETASeconds, dp.ETASeconds
				return TripMatch{TripID: op.TripID, OriginETA: &oe, DestETA: &de}
			}
		}
	}
	if len(origin) > 0 {
		oe := origin[0].ETASeconds
		return TripMatch{TripID: origin[0].TripID, OriginETA: &oe}
	}
	return TripMatch{}
}
