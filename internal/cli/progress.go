package cli

import (
	"fmt"
	"strings"

	"github.com/tutu-network/learnquest/internal/domain"
)

// ─── Progress Bar ───────────────────────────────────────────────────────────
// Static bars for course and level progress.
// Shows: [============>.................]  42%

const barWidth = 30 // Characters for the progress bar

// bar renders pct (0-100) as a fixed-width bar.
func bar(pct float64) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	filled := int(pct / 100 * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}
	empty := barWidth - filled

	var b string
	switch {
	case filled == barWidth:
		b = strings.Repeat("=", filled)
	case filled > 0:
		b = strings.Repeat("=", filled-1) + ">" + strings.Repeat(".", empty)
	default:
		b = strings.Repeat(".", barWidth)
	}
	return "[" + b + "]"
}

// levelLine describes progress toward the next level.
func levelLine(info domain.LevelInfo) string {
	if info.MaxLevel {
		return fmt.Sprintf("Level %d %s max level", info.Level, bar(100))
	}
	return fmt.Sprintf("Level %d %s %3.0f%% (%d to level %d)",
		info.Level, bar(info.ProgressPct), info.ProgressPct, info.PointsToNext, info.Level+1)
}
