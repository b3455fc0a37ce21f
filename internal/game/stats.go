package game

import (
	"math"

	"github.com/susu3304/whereami/internal/geoscore"
)

type Statistics struct {
	TotalGames      int     `json:"totalGames"`
	AverageScore    int     `json:"averageScore"`
	BestScore       int     `json:"bestScore"`
	TotalScore      int     `json:"totalScore"`
	AverageAccuracy float64 `json:"averageAccuracy"`
}

// ComputeStatistics aggregates completed games. Accuracy is the percentage of
// the maximum possible score, rounded to two decimals.
func ComputeStatistics(history []Summary) Statistics {
	var (
		st       Statistics
		possible int
	)
	for _, s := range history {
		if !s.Completed() {
			continue
		}
		st.TotalGames++
		st.TotalScore += s.TotalScore
		st.BestScore = max(st.BestScore, s.TotalScore)
		possible += len(s.Rounds) * geoscore.MaxScore
	}
	if st.TotalGames == 0 {
		return Statistics{}
	}
	st.AverageScore = int(math.Round(float64(st.TotalScore) / float64(st.TotalGames)))
	if possible > 0 {
		st.AverageAccuracy = math.Round(float64(st.TotalScore)/float64(possible)*100*100) / 100
	}
	return st
}
