package plan

import (
	"fmt"
	"slices"
	"strings"
)

// Validate checks f and returns blocking errors and advisory warnings.
// Unknown tool names are warnings because Save drops them.
func Validate(f *File, known []string) (errs, warnings []string) {
	if len(f.Episodes) == 0 {
		errs = append(errs, "No episodes in the database. Please add at least one episode to the database.")
	}

	ids := make([]string, len(f.Episodes))
	var empty []string
	counts := map[string]int{}
	var order []string
	for i, ep := range f.Episodes {
		ids[i] = strings.TrimSpace(ep.EpisodeID)
		if ids[i] == "" {
			empty = append(empty, fmt.Sprint(i+1))
			continue
		}
		if counts[ids[i]] == 0 {
			order = append(order, ids[i])
		}
		counts[ids[i]]++
	}
	if len(empty) > 0 {
		errs = append(errs, "Empty episode_id in item index(es): "+strings.Join(empty, ", "))
	}
	var dupes []string
	for _, id := range order {
		if counts[id] > 1 {
			dupes = append(dupes, id)
		}
	}
	if len(dupes) > 0 {
		errs = append(errs, "Duplicate episode_id(s): "+strings.Join(dupes, ", "))
	}

	for i, ep := range f.Episodes {
		label := ep.EpisodeID
		if label == "" {
			label = "UNNAMED"
		}
		if strings.TrimSpace(ep.EpisodeName) == "" {
			errs = append(errs, fmt.Sprintf("Item %d (%s): episode_name is required.", i+1, label))
		}
		if strings.TrimSpace(ep.EpisodeDetails) == "" {
			errs = append(errs, fmt.Sprintf("Item %d (%s): episode_details is required and cannot be empty.", i+1, label))
		}
	}

	for i, ep := range f.Episodes {
		var bad []string
		for _, t := range ep.Tools {
			if !slices.Contains(known, t) {
				bad = append(bad, t)
			}
		}
		if len(bad) > 0 {
			label := ep.EpisodeID
			if label == "" {
				label = "UNNAMED"
			}
			warnings = append(warnings, fmt.Sprintf("Item %d (%s): unknown tools %q will be removed on save.", i+1, label, bad))
		}
	}

	var missing []string
	for _, id := range f.Plan {
		if id == "" || !slices.Contains(ids, id) {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		warnings = append(warnings, fmt.Sprintf("Plan contains episode_id(s) not present in episode_db: %q", missing))
	}

	seen := map[string]bool{}
	var dupPlan []string
	for _, id := range f.Plan {
		if seen[id] && !slices.Contains(dupPlan, id) {
			dupPlan = append(dupPlan, id)
		}
		seen[id] = true
	}
	if len(dupPlan) > 0 {
		slices.Sort(dupPlan)
		errs = append(errs, fmt.Sprintf("Plan has duplicate episode_id(s): %q", dupPlan))
	}
	if len(f.Plan) == 0 {
		errs = append(errs, "Plan is empty. Please add at least one episode to the plan.")
	}
	return errs, warnings
}
