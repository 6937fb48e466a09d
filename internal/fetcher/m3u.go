package fetcher

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/voyagen/tvdeck/internal/models"
)

const extinfTag = "#EXTINF"

var (
	reTvgID   = attrPattern("tvg-id")
	reTvgName = attrPattern("tvg-name")
	reTvgLogo = attrPattern("tvg-logo")
	reGroup   = attrPattern("group-title")
)

// attrPattern matches name="value" as a whole attribute (not a suffix of
// a longer attribute name). Only double-quoted values are recognised.
func attrPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?:^|\s)` + regexp.QuoteMeta(name) + `="([^"]*)"`)
}

// Parse turns M3U/M3U8 playlist text into channel entries, in playlist order.
//
// Parse never fails: unknown directives, malformed attributes and
// metadata lines that are never followed by a URL are skipped. An empty
// result is valid; callers decide whether that is an error.
func Parse(text string) []models.ChannelEntry {
	var entries []models.ChannelEntry
	var pending *models.ChannelEntry

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, extinfTag):
			// An earlier EXTINF without URL is replaced.
			pending = parseEXTINF(line)
		case strings.HasPrefix(line, "#"):
			continue
		default:
			entry := models.ChannelEntry{}
			if pending != nil {
				entry = *pending
			}
			entry.URL = line
			entries = append(entries, entry)
			pending = nil
		}
	}
	return entries
}

// parseEXTINF extracts the metadata of a single #EXTINF line.
func parseEXTINF(line string) *models.ChannelEntry {
	meta, name := splitEXTINF(line)

	entry := &models.ChannelEntry{
		ChannelID:  matchFirstPtr(reTvgID, meta),
		Logo:       matchFirstPtr(reTvgLogo, meta),
		GroupTitle: matchFirstPtr(reGroup, meta),
		Duration:   parseDuration(meta),
	}
	if n := matchFirstPtr(reTvgName, meta); n != nil {
		entry.ChannelName = n
	} else if n := strings.TrimSpace(name); n != "" {
		entry.ChannelName = &n
	}
	return entry
}

// splitEXTINF splits the line at its first comma. Everything after it,
// commas included, is the display name. A comma inside a quoted attribute
// value still splits; such attributes come out unterminated and are
// treated as absent.
func splitEXTINF(line string) (meta, name string) {
	meta, name, _ = strings.Cut(line, ",")
	return meta, name
}

// parseDuration reads the token between "#EXTINF:" and the first space.
func parseDuration(meta string) *float64 {
	rest := strings.TrimPrefix(meta, extinfTag)
	rest, ok := strings.CutPrefix(rest, ":")
	if !ok {
		return nil
	}
	token, _, _ := strings.Cut(rest, " ")
	if token == "" {
		return nil
	}
	d, err := strconv.ParseFloat(token, 64)
	if err != nil || math.IsInf(d, 0) || math.IsNaN(d) {
		return nil
	}
	return &d
}

// matchFirst returns the first captured value verbatim.
func matchFirst(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func matchFirstPtr(re *regexp.Regexp, s string) *string {
	v := matchFirst(re, s)
	if v == "" {
		return nil
	}
	return &v
}
