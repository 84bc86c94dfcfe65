package alert

// Level grades how close an arrival is. Higher values are more urgent and
// win when threshold boundaries overlap.
type Level int

const (
	LevelIdle Level = iota
	LevelNearby
	LevelApproach
	LevelStop
	LevelUrgent
)

func (l Level) String() string {
	switch l {
	case LevelUrgent:
		return "URGENT"
	case LevelStop:
		return "STOP"
	case LevelApproach:
		return "APPROACH"
	case LevelNearby:
		return "NEARBY"
	}
	return "IDLE"
}
