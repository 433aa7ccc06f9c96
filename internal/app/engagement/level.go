package engagement

import "github.com/tutu-network/learnquest/internal/domain"

// MaxLevel is the highest reachable level.
const MaxLevel = 10

// levelThresholds holds the cumulative points required for each level,
// indexed by level-1.
var levelThresholds = [MaxLevel]int64{
	0,     // L1
	100,   // L2
	250,   // L3
	500,   // L4
	1000,  // L5
	2000,  // L6
	3500,  // L7
	5500,  // L8
	8000,  // L9
	12000, // L10
}

// PointsForLevel returns the cumulative points required to reach a level.
func PointsForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	return levelThresholds[level-1]
}

// LevelForPoints returns the highest level whose threshold is ≤ points.
// Negative totals map to level 1.
func LevelForPoints(points int64) int {
	level := 1
	for l := 2; l <= MaxLevel; l++ {
		if points < levelThresholds[l-1] {
			break
		}
		level = l
	}
	return level
}

// LevelFor returns the level info for a point total.
func LevelFor(points int64) domain.LevelInfo {
	level := LevelForPoints(points)
	info := domain.LevelInfo{Level: level, Points: points}
	if level >= MaxLevel {
		info.MaxLevel = true
		info.ProgressPct = 100
		return info
	}

	this := PointsForLevel(level)
	next := PointsForLevel(level + 1)
	info.PointsToNext = next - points

	progress := float64(points-this) / float64(next-this) * 100.0
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	info.ProgressPct = progress
	return info
}
