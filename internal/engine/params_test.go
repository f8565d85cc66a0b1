package engine

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrShushen/climb/internal/session"
)

func TestValidateParams(t *testing.T) {
	decl := []Parameter{
		{Name: "temperature", Kind: KindFloat, Default: 0.5, Min: Bound(0), Max: Bound(2)},
		{Name: "show_working_directory", Kind: KindBool, Default: true},
		{Name: "records", Kind: KindRecords},
		PrivacyModeParameter(),
	}

	tests := []struct {
		name    string
		values  session.Params
		wantErr string
	}{
		{"empty", session.Params{}, ""},
		{"valid", session.Params{"temperature": 1.5, "show_working_directory": false, "privacy_mode": PrivacyGuardrail}, ""},
		{"json number", session.Params{"temperature": json.Number("0.7")}, ""},
		{"records from json", session.Params{"records": []any{map[string]any{"a": 1.0}}}, ""},
		{"unknown key", session.Params{"top_p": 1.0}, "top_p"},
		{"below min", session.Params{"temperature": -1.0}, "temperature"},
		{"above max", session.Params{"temperature": 3.0}, "temperature"},
		{"wrong kind", session.Params{"show_working_directory": "yes"}, "show_working_directory"},
		{"not in enum", session.Params{"privacy_mode": "paranoid"}, "privacy_mode"},
		{"bad records", session.Params{"records": []any{"row"}}, "records"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParams(decl, tt.values)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.wantErr, cfgErr.Param)
		})
	}
}

func TestResolveParametersUsesPriorValues(t *testing.T) {
	var seen []session.Params
	decl := []Parameter{
		{Name: "model_id", Kind: KindEnum, Default: "gpt-4o", EnumValues: []string{"gpt-4o", "gpt-5"}},
		{
			Name:    "temperature",
			Kind:    KindFloat,
			Default: 0.5,
			ComputeDisabled: func(prior session.Params) bool {
				seen = append(seen, prior)
				return prior["model_id"] == "gpt-5"
			},
		},
		{
			Name: "plan_file",
			Kind: KindEnum,
			ComputeEnumValues: func(prior session.Params) ([]string, error) {
				if prior["temperature"] == nil {
					return nil, errors.New("temperature not resolved")
				}
				return []string{"a.json", "b.json"}, nil
			},
			ComputeValue: func(session.Params) (any, error) { return "a.json", nil },
		},
	}

	resolved, err := ResolveParameters(decl, session.Params{"model_id": "gpt-5"})
	require.NoError(t, err)
	require.Len(t, resolved, 3)

	assert.Equal(t, "gpt-5", resolved[0].Value)
	assert.True(t, resolved[1].Disabled)
	assert.Equal(t, 0.5, resolved[1].Value)
	assert.Equal(t, []string{"a.json", "b.json"}, resolved[2].Values)
	assert.Equal(t, "a.json", resolved[2].Value)
	assert.True(t, resolved[2].Computed)
	require.Len(t, seen, 1)
	assert.NotContains(t, seen[0], "temperature")
}

func TestResolveParametersUserValueUnlessDisabled(t *testing.T) {
	compute := func(session.Params) (any, error) { return "computed", nil }
	decl := []Parameter{
		{Name: "editable", Kind: KindEnum, ComputeValue: compute},
		{Name: "locked", Kind: KindEnum, ComputeValue: compute, Disabled: true},
		{Name: "untouched", Kind: KindEnum, ComputeValue: compute},
	}

	resolved, err := ResolveParameters(decl, session.Params{"editable": "mine", "locked": "mine"})
	require.NoError(t, err)

	assert.Equal(t, session.Params{"editable": "mine", "locked": "computed", "untouched": "computed"}, ResolvedValues(resolved))
	assert.False(t, resolved[0].Computed)
	assert.True(t, resolved[1].Computed)
}

func TestResolveParametersPropagatesComputeErrors(t *testing.T) {
	decl := []Parameter{{
		Name:              "plan_file",
		Kind:              KindEnum,
		ComputeEnumValues: func(session.Params) ([]string, error) { return nil, assert.AnError },
	}}
	_, err := ResolveParameters(decl, nil)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestFillDefaultsKeepsExplicitValues(t *testing.T) {
	decl := []Parameter{
		{Name: "temperature", Kind: KindFloat, Default: 0.5},
		PrivacyModeParameter(),
	}
	values := session.Params{"temperature": 1.0}
	FillDefaults(decl, values)
	assert.Equal(t, session.Params{"temperature": 1.0, "privacy_mode": PrivacyDefault}, values)
	assert.Equal(t, PrivacyDefault, PrivacyMode(values))
	assert.Equal(t, PrivacyDefault, PrivacyMode(nil))
}
