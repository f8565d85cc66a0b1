package plan

import (
	"slices"
	"strings"

	"github.com/google/uuid"
)

// NewEpisodeID returns an id of the form NEW_XXXX not present in existing.
func NewEpisodeID(existing []string) string {
	for {
		id := "NEW_" + strings.ToUpper(uuid.NewString()[:4])
		if !slices.Contains(existing, id) {
			return id
		}
	}
}

// SanitizeFilename makes name safe on Windows, macOS and Unix and ensures
// a .json extension.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.Map(func(r rune) rune {
		switch {
		case strings.ContainsRune(`<>:"/\|?*`, r):
			return '_'
		case r <= 31 || r == 127:
			return -1
		}
		return r
	}, name)
	name = strings.Trim(name, ". ")
	if !strings.HasSuffix(strings.ToLower(name), ".json") {
		name += ".json"
	}
	return name
}

// AddEpisode appends a template episode with a fresh id and returns it.
func (f *File) AddEpisode() Episode {
	ep := Template()
	ep.EpisodeID = NewEpisodeID(f.EpisodeIDs())
	f.Episodes = append(f.Episodes, ep)
	return ep
}

// MoveEpisode swaps episode idx with its neighbour in direction (-1 up,
// +1 down). Moves past either end are ignored.
func (f *File) MoveEpisode(idx, direction int) bool {
	j := idx + direction
	if idx < 0 || idx >= len(f.Episodes) || j < 0 || j >= len(f.Episodes) {
		return false
	}
	f.Episodes[idx], f.Episodes[j] = f.Episodes[j], f.Episodes[idx]
	return true
}

// DeleteEpisode removes episode idx from the database. The plan sequence
// is left alone; Validate warns about ids it no longer resolves.
func (f *File) DeleteEpisode(idx int) bool {
	if idx < 0 || idx >= len(f.Episodes) {
		return false
	}
	f.Episodes = slices.Delete(f.Episodes, idx, idx+1)
	return true
}

// AddToPlan appends ids not already in the plan, in the order given.
func (f *File) AddToPlan(ids ...string) {
	for _, id := range ids {
		if !slices.Contains(f.Plan, id) {
			f.Plan = append(f.Plan, id)
		}
	}
}
