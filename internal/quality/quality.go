// Package quality infers a coarse resolution tier from stream URLs and titles.
package quality

import (
	"regexp"

	"github.com/voyagen/tvdeck/internal/models"
)

// Markers must stand alone: "hd" matches "News HD" and "/hd/index.m3u8"
// but not "shdw" or "hdtvnews".
var tiers = []struct {
	tier models.QualityTier
	re   *regexp.Regexp
}{
	{models.Quality4K, marker(`4k|uhd|2160p?`)},
	{models.QualityFHD, marker(`fhd|fullhd|1080[pi]?`)},
	{models.QualityHD, marker(`hd|720p?`)},
	{models.QualitySD, marker(`sd|480p?|576p?|360p?`)},
}

func marker(alternatives string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^a-z0-9])(?:` + alternatives + `)(?:$|[^a-z0-9])`)
}

// Classify returns the highest tier found in any of texts, or
// models.QualityUnknown when none carries a resolution marker.
func Classify(texts ...string) models.QualityTier {
	best := models.QualityUnknown
	for _, s := range texts {
		if t := classifyOne(s); t.Rank() > best.Rank() {
			best = t
		}
	}
	return best
}

func classifyOne(s string) models.QualityTier {
	for _, t := range tiers {
		if t.re.MatchString(s) {
			return t.tier
		}
	}
	return models.QualityUnknown
}
