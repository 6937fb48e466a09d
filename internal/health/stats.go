package health

import (
	"fmt"

	"github.com/voyagen/tvdeck/internal/models"
)

// Summarize counts working and broken results. The working rate of an
// empty set is "0.0".
func Summarize(results []models.HealthCheckResult) models.HealthStats {
	s := models.HealthStats{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case models.StatusWorking:
			s.Working++
		case models.StatusBroken:
			s.Broken++
		}
	}
	rate := 0.0
	if s.Total > 0 {
		rate = float64(s.Working) / float64(s.Total) * 100
	}
	s.WorkingRate = fmt.Sprintf("%.1f", rate)
	return s
}
