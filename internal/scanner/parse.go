package scanner

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Metadata is what the filename parser extracts from a media path.
type Metadata struct {
	ShowName string
	Season   int
	Episode  int
	Title    string
}

// episodePattern matches the common SxxEyy episode markers, with dots,
// underscores, dashes or spaces as separators.
var episodePattern = regexp.MustCompile(`(?i)[. _-]s(\d{1,2})[. _]?e(\d{1,3})`)

// ParseFilename extracts show name, season, episode and title from a media
// file path. Files without an SxxEyy marker get the cleaned basename as the
// title and the parent directory as the show name when one exists.
func ParseFilename(path string) Metadata {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	loc := episodePattern.FindStringSubmatchIndex(base)
	if loc == nil {
		meta := Metadata{Title: cleanName(base)}
		if parent := filepath.Base(filepath.Dir(path)); parent != "." && parent != string(filepath.Separator) {
			meta.ShowName = cleanName(parent)
		}
		return meta
	}

	season, _ := strconv.Atoi(base[loc[2]:loc[3]])
	episode, _ := strconv.Atoi(base[loc[4]:loc[5]])

	return Metadata{
		ShowName: cleanName(base[:loc[0]]),
		Season:   season,
		Episode:  episode,
		Title:    cleanName(base[loc[1]:]),
	}
}

// cleanName turns release-style separators into spaces and trims leftovers.
func cleanName(s string) string {
	s = strings.NewReplacer(".", " ", "_", " ").Replace(s)
	s = strings.Trim(s, " -")
	return strings.Join(strings.Fields(s), " ")
}
