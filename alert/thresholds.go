package alert

// Thresholds holds the classification boundaries in seconds, one set per
// watched stop. Checks run from the most urgent boundary outward, so
// misordered or overlapping values still resolve to the tighter alert.
type Thresholds struct {
	Urgent   int64
	Stop     int64
	Approach int64
	Nearby   int64
}

// Classify maps an ETA in seconds onto an alert level. A nil ETA means no
// usable prediction and classifies as idle.
func (t Thresholds) Classify(etaSeconds *int64) Level {
	if etaSeconds == nil {
		return LevelIdle
	}
	eta := *etaSeconds
	switch {
	case eta <= t.Urgent:
		return LevelUrgent
	case eta <= t.Stop:
		return LevelStop
	case eta <= t.Approach:
		return LevelApproach
	case eta <= t.Nearby:
		return LevelNearby
	}
	return LevelIdle
}
