// Package plan reads, validates and writes plan files: a JSON document with
// an ordered "plan" of episode ids and an "episode_db" of episode
// definitions.
package plan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidPlanFile reports a plan file whose structure cannot be read.
var ErrInvalidPlanFile = errors.New("invalid plan file")

// SchemaKeys are the fixed episode keys, in save order.
var SchemaKeys = []string{
	"episode_id",
	"selection_condition",
	"episode_name",
	"episode_details",
	"coordinator_guidance",
	"worker_guidance",
	"tools",
}

// Episode is one unit of work the coordinator can hand to the worker.
type Episode struct {
	EpisodeID           string
	SelectionCondition  *string
	EpisodeName         string
	EpisodeDetails      string
	CoordinatorGuidance *string
	WorkerGuidance      *string
	// Tools is nil for "all tools", empty for "no tools", otherwise an allow-list.
	Tools []string
	// Extras holds non-schema keys, preserved in file order on save.
	Extras []Extra
}

// Extra is an unknown episode key carried through unchanged.
type Extra struct {
	Key   string
	Value json.RawMessage
}

// AllTools reports whether the episode may use every tool.
func (e Episode) AllTools() bool { return e.Tools == nil }

// File is a parsed plan file.
type File struct {
	Plan     []string
	Episodes []Episode
}

// Template returns the episode used for "add episode": everything empty and
// no tools until chosen.
func Template() Episode {
	return Episode{Tools: []string{}}
}

const structureSchema = `{
	"type": "object",
	"properties": {
		"plan": {"type": ["array", "null"]},
		"episode_db": {"type": "array", "items": {"type": "object"}}
	}
}`

// Load reads the plan file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plan.Load(%q): %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("plan.Load(%q): %w", path, err)
	}
	return f, nil
}

// Parse decodes a plan document. Missing keys take template defaults, an
// explicit null episode_details reads as "", and plan entries that are
// numbers or booleans are stringified while other non-strings are dropped.
func Parse(data []byte) (*File, error) {
	res, err := gojsonschema.Validate(gojsonschema.NewStringLoader(structureSchema), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlanFile, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidPlanFile, strings.Join(msgs, "; "))
	}

	var top struct {
		Plan      []json.RawMessage `json:"plan"`
		EpisodeDB []json.RawMessage `json:"episode_db"`
	}
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlanFile, err)
	}

	f := &File{Plan: []string{}, Episodes: []Episode{}}
	for _, raw := range top.Plan {
		if id, ok := scalarString(raw); ok {
			f.Plan = append(f.Plan, id)
		}
	}
	for i, raw := range top.EpisodeDB {
		ep, err := parseEpisode(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", ErrInvalidPlanFile, i, err)
		}
		f.Episodes = append(f.Episodes, ep)
	}
	return f, nil
}

func parseEpisode(raw json.RawMessage) (Episode, error) {
	keys, err := objectKeys(raw)
	if err != nil {
		return Episode{}, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Episode{}, err
	}

	ep := Template()
	ep.EpisodeID = text(fields["episode_id"])
	ep.EpisodeName = text(fields["episode_name"])
	ep.EpisodeDetails = text(fields["episode_details"])
	ep.SelectionCondition = optionalText(fields["selection_condition"])
	ep.CoordinatorGuidance = optionalText(fields["coordinator_guidance"])
	ep.WorkerGuidance = optionalText(fields["worker_guidance"])
	if t, ok := fields["tools"]; ok {
		if isNull(t) {
			ep.Tools = nil
		} else {
			var list []any
			if err := json.Unmarshal(t, &list); err == nil {
				for _, v := range list {
					if s, ok := v.(string); ok {
						ep.Tools = append(ep.Tools, s)
					}
				}
			}
		}
	}
	for _, k := range keys {
		if !isSchemaKey(k) {
			ep.Extras = append(ep.Extras, Extra{Key: k, Value: fields[k]})
		}
	}
	return ep, nil
}

func isSchemaKey(k string) bool {
	for _, s := range SchemaKeys {
		if s == k {
			return true
		}
	}
	return false
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

// text reads a string field; numbers keep their literal form, anything
// else reads as "".
func text(raw json.RawMessage) string {
	s, _ := scalarString(raw)
	return s
}

func optionalText(raw json.RawMessage) *string {
	if isNull(raw) {
		return nil
	}
	s := text(raw)
	return &s
}

// scalarString stringifies JSON strings, numbers and booleans.
func scalarString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	case 't':
		return "True", true
	case 'f':
		return "False", true
	case 'n', '{', '[':
		return "", false
	default:
		return string(raw), true
	}
}

// objectKeys returns the keys of a JSON object in document order.
func objectKeys(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("not an object")
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		keys = append(keys, tok.(string))
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// Episode returns the episode with the given id.
func (f *File) Episode(id string) (Episode, bool) {
	for _, ep := range f.Episodes {
		if ep.EpisodeID == id {
			return ep, true
		}
	}
	return Episode{}, false
}

// EpisodeIDs returns the ids of the episode database in order.
func (f *File) EpisodeIDs() []string {
	ids := make([]string, 0, len(f.Episodes))
	for _, ep := range f.Episodes {
		ids = append(ids, ep.EpisodeID)
	}
	return ids
}

// PlannedEpisodes resolves the plan sequence against the episode database,
// skipping ids with no definition.
func (f *File) PlannedEpisodes() []Episode {
	out := make([]Episode, 0, len(f.Plan))
	for _, id := range f.Plan {
		if ep, ok := f.Episode(id); ok {
			out = append(out, ep)
		}
	}
	return out
}
