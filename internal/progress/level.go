package progress

// LevelThresholds are the total XP at which each level starts.
var LevelThresholds = []int{0, 100, 300, 600, 1000, 1500, 2200, 3000, 4000, 5000}

// LevelNames are indexed by level-1.
var LevelNames = []string{"Novice", "Apprentice", "Initiate", "Adept", "Expert", "Master", "Grandmaster", "Legend", "Virtuoso", "Champion"}

// LevelFor returns the 1-based level reached with xp.
func LevelFor(xp int) int {
	for i := len(LevelThresholds) - 1; i >= 0; i-- {
		if xp >= LevelThresholds[i] {
			return i + 1
		}
	}
	return 1
}

// LevelName returns the display name for level.
func LevelName(level int) string {
	if level < 1 || level > len(LevelNames) {
		return LevelNames[len(LevelNames)-1]
	}
	return LevelNames[level-1]
}

// levelSpan returns the XP earned inside the current level and the width of
// that level. At the top level the width is zero.
func levelSpan(xp int) (in, width int) {
	level := LevelFor(xp)
	start := LevelThresholds[level-1]
	next := LevelThresholds[len(LevelThresholds)-1]
	if level < len(LevelThresholds) {
		next = LevelThresholds[level]
	}
	return xp - start, next - start
}
