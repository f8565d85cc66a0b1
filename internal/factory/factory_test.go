package factory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrShushen/climb/internal/config"
	"github.com/DrShushen/climb/internal/engine"
	"github.com/DrShushen/climb/internal/engine/episodic"
	"github.com/DrShushen/climb/internal/plan"
	"github.com/DrShushen/climb/internal/session"
)

type idleClient struct{}

func (idleClient) Stream(context.Context, string, []engine.ChatMessage, []engine.ToolSchema, engine.ChatOptions) (<-chan engine.StreamEvent, <-chan error) {
	events := make(chan engine.StreamEvent)
	errs := make(chan error)
	close(events)
	close(errs)
	return events, errs
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	plansDir := filepath.Join(dir, "plans")
	require.NoError(t, os.MkdirAll(plansDir, 0o755))
	f := &plan.File{Plan: []string{"EDA"}, Episodes: []plan.Episode{{EpisodeID: "EDA", EpisodeName: "Explore", EpisodeDetails: "Look"}}}
	require.NoError(t, plan.Save(filepath.Join(plansDir, "research.json"), f, nil))
	return config.Config{
		BranchLimit:  2,
		OpenAIAPIKey: "sk-test",
		DataDir:      filepath.Join(dir, "data"),
		PlansDir:     plansDir,
		AzureConfig:  filepath.Join(dir, "az_openai_config.yml"),
		Store:        config.StoreFile,
	}
}

func testRegistry(cfg config.Config) *engine.Registry {
	r := engine.NewRegistry()
	deps := Deps(cfg, zerolog.Nop())
	deps.NewClient = func(string, engine.Credentials) (engine.LLMClient, error) { return idleClient{}, nil }
	episodic.Register(r, deps)
	return r
}

func TestCredentials(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.AzureConfig, []byte(`
- name: east
  endpoint: https://east.example.com
  deployment_name: gpt4o-east
  api_version: "2024-06-01"
  model_id: gpt-4o
  api_key_env_var: CLIMB_TEST_AZURE_KEY
`), 0o600))
	t.Setenv("CLIMB_TEST_AZURE_KEY", "az-key")
	reg := testRegistry(cfg)

	openai, err := reg.Lookup(episodic.OpenAIV1)
	require.NoError(t, err)
	creds, err := Credentials(openai, nil, cfg)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", creds.APIKey)

	anthropic, err := reg.Lookup(episodic.AnthropicV1)
	require.NoError(t, err)
	_, err = Credentials(anthropic, nil, cfg)
	assert.ErrorContains(t, err, "ANTHROPIC_API_KEY")

	azure, err := reg.Lookup(episodic.AzureOpenAIV1)
	require.NoError(t, err)
	creds, err = Credentials(azure, session.Params{episodic.ParamConfigItemName: "east"}, cfg)
	require.NoError(t, err)
	assert.Equal(t, engine.Credentials{
		APIKey:     "az-key",
		Endpoint:   "https://east.example.com",
		Deployment: "gpt4o-east",
		APIVersion: "2024-06-01",
	}, creds)

	_, err = Credentials(azure, session.Params{episodic.ParamConfigItemName: "west"}, cfg)
	assert.ErrorIs(t, err, config.ErrAzureConfigItemNotFound)
}

func TestOpenStore(t *testing.T) {
	for _, kind := range []string{config.StoreFile, config.StoreSQLite} {
		t.Run(kind, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Store = kind
			store, closer, err := OpenStore(context.Background(), cfg)
			require.NoError(t, err)
			defer closer.Close()

			sess := &session.Session{SessionKey: "k1", EngineName: episodic.OpenAIV1}
			require.NoError(t, store.UpdateSession(context.Background(), sess))
			got, err := store.GetSession(context.Background(), "k1")
			require.NoError(t, err)
			assert.Equal(t, episodic.OpenAIV1, got.EngineName)
		})
	}

	_, _, err := OpenStore(context.Background(), config.Config{Store: "mongo"})
	assert.Error(t, err)
}

func TestCreateEngineSeedsNewSession(t *testing.T) {
	cfg := testConfig(t)
	reg := testRegistry(cfg)
	ctx := context.Background()

	params, err := ResolveNewSession(reg, cfg, episodic.OpenAIV1, session.Params{}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "research.json", params[episodic.ParamPlanFile])

	store := session.NewMemoryStore()
	sess, err := session.CreateNewSession(ctx, store, session.NewSessionOptions{
		EngineName:   episodic.OpenAIV1,
		EngineParams: params,
		SessionsDir:  cfg.SessionsDir(),
	})
	require.NoError(t, err)

	e, err := CreateEngine(ctx, store, sess, cfg, reg, nil, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, engine.AgentCoordinator, e.State().Agent)
	assert.Len(t, e.Messages(), 1)
	assert.Contains(t, e.Tools().Names(), "list_files")
	assert.NotContains(t, e.Tools().Names(), engine.ExecuteCodeTool)
}

func TestCreateEngineUnknownEngine(t *testing.T) {
	cfg := testConfig(t)
	sess := &session.Session{SessionKey: "k", EngineName: "nope"}

	_, err := CreateEngine(context.Background(), session.NewMemoryStore(), sess, cfg, testRegistry(cfg), nil, zerolog.Nop())
	assert.ErrorIs(t, err, engine.ErrUnknownEngine)
}

func TestResolveNewSessionRejectsInvalidParams(t *testing.T) {
	cfg := testConfig(t)
	reg := testRegistry(cfg)

	tests := []struct {
		name   string
		values session.Params
		param  string
	}{
		{name: "above maximum", values: session.Params{episodic.ParamTemperature: 5.0}, param: episodic.ParamTemperature},
		{name: "unknown key", values: session.Params{"bogus_key": true}, param: "bogus_key"},
		{name: "wrong kind", values: session.Params{episodic.ParamShowWorkingDirectory: "yes"}, param: episodic.ParamShowWorkingDirectory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveNewSession(reg, cfg, episodic.OpenAIV1, tt.values, zerolog.Nop())
			var cfgErr *engine.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.param, cfgErr.Param)
		})
	}

	params, err := ResolveNewSession(reg, cfg, episodic.OpenAIV1, session.Params{episodic.ParamTemperature: 0.2}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 0.2, params[episodic.ParamTemperature])
}
