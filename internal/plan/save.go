package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// CleanTools applies the tools tri-state on save: nil stays nil (all
// tools), otherwise the list is deduplicated and filtered to known names,
// keeping first-occurrence order.
func CleanTools(tools, known []string) []string {
	if tools == nil {
		return nil
	}
	knownSet := make(map[string]bool, len(known))
	for _, k := range known {
		knownSet[k] = true
	}
	out := []string{}
	seen := map[string]bool{}
	for _, t := range tools {
		if knownSet[t] && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

type member struct {
	key   string
	value any
}

// orderedObject marshals its members in slice order.
type orderedObject []member

func (o orderedObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := marshal(m.key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := marshal(m.value)
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshal encodes v without HTML escaping so text round-trips verbatim.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func ordered(ep Episode, known []string) orderedObject {
	o := orderedObject{
		{"episode_id", ep.EpisodeID},
		{"selection_condition", ep.SelectionCondition},
		{"episode_name", ep.EpisodeName},
		{"episode_details", ep.EpisodeDetails},
		{"coordinator_guidance", ep.CoordinatorGuidance},
		{"worker_guidance", ep.WorkerGuidance},
		{"tools", CleanTools(ep.Tools, known)},
	}
	for _, x := range ep.Extras {
		if !isSchemaKey(x.Key) {
			o = append(o, member{x.Key, x.Value})
		}
	}
	return o
}

func planSeq(f *File) []string {
	if f.Plan == nil {
		return []string{}
	}
	return f.Plan
}

// Marshal encodes f the way Save writes it: plan first, then the episode
// database with schema keys in fixed order followed by extras, indented
// by four spaces.
func Marshal(f *File, known []string) ([]byte, error) {
	episodes := make([]orderedObject, 0, len(f.Episodes))
	for _, ep := range f.Episodes {
		episodes = append(episodes, ordered(ep, known))
	}
	compact, err := marshal(orderedObject{{"plan", planSeq(f)}, {"episode_db", episodes}})
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "    "); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Save writes f to path, filtering tool lists against known.
func Save(path string, f *File, known []string) error {
	data, err := Marshal(f, known)
	if err != nil {
		return fmt.Errorf("plan.Save(%q): %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("plan.Save(%q): %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("plan.Save(%q): %w", path, err)
	}
	return nil
}

// Fingerprint is a stable serialization with sorted keys, used to detect
// unsaved edits.
func Fingerprint(f *File, known []string) (string, error) {
	data, err := Marshal(f, known)
	if err != nil {
		return "", err
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return "", err
	}
	// Maps marshal with sorted keys.
	out, err := marshal(generic)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Dirty reports whether f differs from the fingerprint taken at load time.
func Dirty(f *File, baseline string, known []string) bool {
	fp, err := Fingerprint(f, known)
	return err != nil || fp != baseline
}
