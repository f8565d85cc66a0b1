package engine

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/DrShushen/climb/internal/session"
)

// ParamKind is the value type of an engine parameter.
type ParamKind string

const (
	KindFloat   ParamKind = "float"
	KindBool    ParamKind = "bool"
	KindEnum    ParamKind = "enum"
	KindRecords ParamKind = "records"
)

// Parameter declares one engine parameter.
//
// Compute hooks receive the values resolved for the parameters declared
// before this one. That makes declaration order significant.
type Parameter struct {
	Name        string
	Kind        ParamKind
	Default     any
	Description string

	Min, Max   *float64 // float bounds
	EnumValues []string

	// Column names of records that the user may not edit.
	RecordsDisabledKeys []string
	Disabled            bool

	ComputeValue      func(prior session.Params) (any, error)
	ComputeDisabled   func(prior session.Params) bool
	ComputeEnumValues func(prior session.Params) ([]string, error)
}

// Bound is a helper for declaring float bounds.
func Bound(v float64) *float64 { return &v }

// ResolvedParameter is a parameter with every computed attribute evaluated.
type ResolvedParameter struct {
	Parameter
	Value    any
	Disabled bool
	Values   []string // enum values after ComputeEnumValues
	Computed bool     // the value comes from ComputeValue, not the user
}

// ResolveParameters evaluates decl in order against the supplied values.
// Within one parameter the order is value, then disabled, then enum values.
// A computed value replaces the default; a user value still wins unless
// the parameter ends up disabled.
func ResolveParameters(decl []Parameter, values session.Params) ([]ResolvedParameter, error) {
	prior := session.Params{}
	out := make([]ResolvedParameter, 0, len(decl))
	for _, p := range decl {
		r := ResolvedParameter{Parameter: p, Values: p.EnumValues, Value: p.Default}

		if p.ComputeValue != nil {
			computed, err := p.ComputeValue(prior.Clone())
			if err != nil {
				return nil, &ConfigurationError{Param: p.Name, Reason: "computing value", Err: err}
			}
			r.Value, r.Computed = computed, true
		}

		r.Disabled = p.Disabled
		if p.ComputeDisabled != nil {
			r.Disabled = r.Disabled || p.ComputeDisabled(prior.Clone())
		}
		if v, ok := values[p.Name]; ok && !r.Disabled {
			r.Value, r.Computed = v, false
		}

		if p.ComputeEnumValues != nil {
			enum, err := p.ComputeEnumValues(prior.Clone())
			if err != nil {
				return nil, &ConfigurationError{Param: p.Name, Reason: "computing enum values", Err: err}
			}
			r.Values = enum
		}

		prior[p.Name] = r.Value
		out = append(out, r)
	}
	return out, nil
}

// ResolvedValues collects the resolved value of every parameter.
func ResolvedValues(resolved []ResolvedParameter) session.Params {
	out := make(session.Params, len(resolved))
	for _, r := range resolved {
		out[r.Name] = r.Value
	}
	return out
}

// ValidateParams rejects keys that are not declared and values that do not
// match their declared kind. Bounds and enum membership are checked only for
// values that are present.
func ValidateParams(decl []Parameter, values session.Params) error {
	byName := make(map[string]Parameter, len(decl))
	for _, p := range decl {
		byName[p.Name] = p
	}
	for key := range values {
		if _, ok := byName[key]; !ok {
			return &ConfigurationError{Param: key, Reason: "unknown engine parameter"}
		}
	}
	for _, p := range decl {
		v, ok := values[p.Name]
		if !ok {
			continue
		}
		if err := checkValue(p, v); err != nil {
			return &ConfigurationError{Param: p.Name, Reason: err.Error()}
		}
	}
	return nil
}

// FillDefaults sets every missing declared parameter to its default.
func FillDefaults(decl []Parameter, values session.Params) {
	for _, p := range decl {
		if _, ok := values[p.Name]; !ok {
			values[p.Name] = p.Default
		}
	}
}

func checkValue(p Parameter, v any) error {
	switch p.Kind {
	case KindFloat:
		f, ok := AsFloat(v)
		if !ok {
			return fmt.Errorf("expected a number, got %T", v)
		}
		if p.Min != nil && f < *p.Min {
			return fmt.Errorf("%v is below the minimum %v", f, *p.Min)
		}
		if p.Max != nil && f > *p.Max {
			return fmt.Errorf("%v is above the maximum %v", f, *p.Max)
		}
	case KindBool:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("expected a bool, got %T", v)
		}
	case KindEnum:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected a string, got %T", v)
		}
		// Computed enum sets depend on other parameters and are checked by the variant.
		if p.ComputeEnumValues == nil && len(p.EnumValues) > 0 && !slices.Contains(p.EnumValues, s) {
			return fmt.Errorf("%q is not one of %v", s, p.EnumValues)
		}
	case KindRecords:
		if _, ok := AsRecords(v); !ok {
			return fmt.Errorf("expected a list of records, got %T", v)
		}
	default:
		return fmt.Errorf("unsupported parameter kind %q", p.Kind)
	}
	return nil
}

// AsFloat accepts the numeric shapes a parameter can take after a JSON round trip.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// AsRecords normalizes a records value to []map[string]any.
func AsRecords(v any) ([]map[string]any, bool) {
	switch rows := v.(type) {
	case nil:
		return nil, true
	case []map[string]any:
		return rows, true
	case []any:
		out := make([]map[string]any, 0, len(rows))
		for _, row := range rows {
			m, ok := row.(map[string]any)
			if !ok {
				return nil, false
			}
			out = append(out, m)
		}
		return out, true
	}
	return nil, false
}

// Privacy modes.
const (
	PrivacyDefault               = "default"
	PrivacyGuardrail             = "guardrail"
	PrivacyGuardrailWithApproval = "guardrail_with_approval"
)

// PrivacyModeParameter is shared by every research engine.
func PrivacyModeParameter() Parameter {
	return Parameter{
		Name:    "privacy_mode",
		Kind:    KindEnum,
		Default: PrivacyDefault,
		Description: "Privacy mode. 'default': no extra restrictions. " +
			"'guardrail': the assistant is instructed never to view raw data. " +
			"'guardrail_with_approval': as 'guardrail', and every message must be approved before it is sent to the LLM.",
		EnumValues: []string{PrivacyDefault, PrivacyGuardrail, PrivacyGuardrailWithApproval},
	}
}

// PrivacyMode reads privacy_mode from params, defaulting to PrivacyDefault.
func PrivacyMode(params session.Params) string {
	if s, ok := params["privacy_mode"].(string); ok && s != "" {
		return s
	}
	return PrivacyDefault
}

// GuardrailInstructions is appended to system messages in guardrail modes.
const GuardrailInstructions = `PRIVACY GUARDRAIL: You must never request, print or otherwise reveal individual rows of the user's data.
Only work with aggregate statistics, schemas and summaries. When generating code, never print raw records.`
