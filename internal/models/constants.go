package models

// Health statuses reported for a server URL.
const (
	StatusWorking = "working"
	StatusBroken  = "broken"
)

// QualityTier is a coarse resolution class inferred from URLs and titles.
type QualityTier string

// Quality tiers, highest first.
const (
	Quality4K      QualityTier = "4K"
	QualityFHD     QualityTier = "FHD"
	QualityHD      QualityTier = "HD"
	QualitySD      QualityTier = "SD"
	QualityUnknown QualityTier = "unknown"
)

// Rank orders tiers so that a higher value means better quality.
func (q QualityTier) Rank() int {
	switch q {
	case Quality4K:
		return 4
	case QualityFHD:
		return 3
	case QualityHD:
		return 2
	case QualitySD:
		return 1
	default:
		return 0
	}
}
