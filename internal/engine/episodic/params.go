package episodic

import (
	"errors"
	"fmt"
	"strings"

	"github.com/DrShushen/climb/internal/config"
	"github.com/DrShushen/climb/internal/engine"
	"github.com/DrShushen/climb/internal/plan"
	"github.com/DrShushen/climb/internal/session"
)

// Parameter names.
const (
	ParamModelID              = "model_id"
	ParamConfigItemName       = "config_item_name"
	ParamTemperature          = "temperature"
	ParamPlanFile             = "plan_file"
	ParamPossibleEpisodes     = "possible_episodes"
	ParamShowWorkingDirectory = "show_working_directory"
)

const defaultTemperature = 0.5

var (
	openAIModels    = []string{"gpt-4o", "gpt-4o-mini", "gpt-4.1", "gpt-4.1-mini", "gpt-5", "gpt-5-mini"}
	anthropicModels = []string{"claude-sonnet-4-5", "claude-opus-4-1", "claude-3-5-haiku-latest"}
)

// parameters declares the engine parameters for provider. Order matters:
// computed parameters read the values of those declared before them.
func parameters(provider string, deps Deps) []engine.Parameter {
	var out []engine.Parameter
	switch provider {
	case engine.ProviderAzureOpenAI:
		items, _ := config.LoadAzureConfig(deps.AzureConfigPath)
		names := config.AzureConfigItemNames(items)
		out = append(out,
			engine.Parameter{
				Name:        ParamConfigItemName,
				Kind:        engine.KindEnum,
				Default:     first(names),
				Description: "Azure OpenAI configuration item (from the Azure config file) to use.",
				ComputeEnumValues: func(session.Params) ([]string, error) {
					items, err := config.LoadAzureConfig(deps.AzureConfigPath)
					return config.AzureConfigItemNames(items), err
				},
			},
			engine.Parameter{
				Name:        ParamModelID,
				Kind:        engine.KindEnum,
				Default:     "",
				Description: "Model behind the selected Azure deployment. Set by the configuration item.",
				Disabled:    true,
				ComputeValue: func(prior session.Params) (any, error) {
					item, err := azureItem(deps.AzureConfigPath, prior)
					if err != nil {
						return "", err
					}
					return item.ModelID, nil
				},
				ComputeEnumValues: func(prior session.Params) ([]string, error) {
					item, err := azureItem(deps.AzureConfigPath, prior)
					if err != nil {
						return nil, err
					}
					return []string{item.ModelID}, nil
				},
			},
		)
	case engine.ProviderAnthropic:
		out = append(out, engine.Parameter{
			Name:        ParamModelID,
			Kind:        engine.KindEnum,
			Default:     anthropicModels[0],
			Description: "Anthropic model to use.",
			EnumValues:  anthropicModels,
		})
	default:
		out = append(out, engine.Parameter{
			Name:        ParamModelID,
			Kind:        engine.KindEnum,
			Default:     openAIModels[0],
			Description: "OpenAI model to use.",
			EnumValues:  openAIModels,
		})
	}

	listing, _ := plan.List(deps.PlansDir)
	out = append(out,
		engine.Parameter{
			Name:        ParamTemperature,
			Kind:        engine.KindFloat,
			Default:     defaultTemperature,
			Description: "Sampling temperature of the LLM.",
			Min:         engine.Bound(0),
			Max:         engine.Bound(2),
		},
		engine.Parameter{
			Name:        ParamPlanFile,
			Kind:        engine.KindEnum,
			Default:     first(listing.All()),
			Description: "Plan file describing the episodes of the research project.",
			ComputeEnumValues: func(session.Params) ([]string, error) {
				listing, err := plan.List(deps.PlansDir)
				return listing.All(), err
			},
		},
		engine.Parameter{
			Name:                ParamPossibleEpisodes,
			Kind:                engine.KindRecords,
			Default:             nil,
			Description:         "Episodes the coordinator may choose from. Disable rows to skip episodes.",
			RecordsDisabledKeys: []string{"episode_id", "episode_name"},
			ComputeValue: func(prior session.Params) (any, error) {
				name, _ := prior[ParamPlanFile].(string)
				f, err := loadPlan(deps.PlansDir, name)
				if err != nil {
					return nil, err
				}
				return episodeRecords(f), nil
			},
		},
		engine.Parameter{
			Name:        ParamShowWorkingDirectory,
			Kind:        engine.KindBool,
			Default:     true,
			Description: "Show the worker a listing of the working directory on every turn.",
		},
		engine.PrivacyModeParameter(),
	)
	return out
}

func first(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

func azureItem(path string, prior session.Params) (config.AzureConfigItem, error) {
	items, err := config.LoadAzureConfig(path)
	if err != nil {
		return config.AzureConfigItem{}, err
	}
	name, _ := prior[ParamConfigItemName].(string)
	return config.FindAzureConfigItem(items, name)
}

// loadPlan resolves a plan file name against the plans directory listing.
// Names that are not listed are tried as paths.
func loadPlan(plansDir, name string) (*plan.File, error) {
	if name == "" {
		return nil, errors.New("no plan file selected")
	}
	path := name
	if listing, err := plan.List(plansDir); err == nil {
		if p, ok := listing.Path(plansDir, name); ok {
			path = p
		}
	}
	return plan.Load(path)
}

// episodeRecords is the default possible_episodes value: every episode
// of the plan, enabled.
func episodeRecords(f *plan.File) []map[string]any {
	rows := make([]map[string]any, 0, len(f.Episodes))
	for _, ep := range f.Episodes {
		rows = append(rows, map[string]any{
			"episode_id":   ep.EpisodeID,
			"episode_name": ep.EpisodeName,
			"enabled":      true,
		})
	}
	return rows
}

// enabledEpisodes returns the ids enabled in possible_episodes. A missing
// value enables every episode of f.
func enabledEpisodes(params session.Params, f *plan.File) []string {
	rows, ok := engine.AsRecords(params[ParamPossibleEpisodes])
	if !ok || rows == nil {
		return f.EpisodeIDs()
	}
	var ids []string
	for _, row := range rows {
		id, _ := row["episode_id"].(string)
		if enabled, _ := row["enabled"].(bool); enabled && id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func temperature(params session.Params) float64 {
	if t, ok := engine.AsFloat(params[ParamTemperature]); ok {
		return t
	}
	return defaultTemperature
}

func modelID(params session.Params) string {
	s, _ := params[ParamModelID].(string)
	return s
}

// ValidateNewSession checks resolved parameters before a session is created
// and returns every problem found.
func ValidateNewSession(provider string, params session.Params, deps Deps) error {
	var errs []error
	if provider == engine.ProviderAzureOpenAI {
		items, err := config.LoadAzureConfig(deps.AzureConfigPath)
		switch {
		case err != nil:
			errs = append(errs, err)
		case len(items) == 0:
			errs = append(errs, fmt.Errorf("no Azure OpenAI configurations found; add them to %s", deps.AzureConfigPath))
		}
	}

	name, _ := params[ParamPlanFile].(string)
	f, err := loadPlan(deps.PlansDir, name)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("failed to load plan file: %w", err))
	case len(f.Episodes) == 0:
		errs = append(errs, errors.New("no episodes available in the plan file; select a different plan file"))
	default:
		if len(enabledEpisodes(params, f)) == 0 {
			errs = append(errs, errors.New("no episodes enabled in possible_episodes; enable at least one episode"))
		}
	}

	if strings.Contains(modelID(params), "gpt-5") && temperature(params) != 1.0 {
		errs = append(errs, errors.New("GPT-5 class models only support a temperature of 1.0"))
	}
	return errors.Join(errs...)
}
