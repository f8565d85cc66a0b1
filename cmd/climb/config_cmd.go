package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/DrShushen/climb/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration and manage saved preferences",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		prefs, err := app.prefs.Load()
		if err != nil {
			return err
		}
		c := app.cfg
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		rows := [][2]string{
			{"data_dir", c.DataDir},
			{"plans_dir", c.PlansDir},
			{"store", c.Store + " (" + c.StorePath() + ")"},
			{"branch_limit", fmt.Sprint(c.BranchLimit)},
			{"conda_path", orNone(c.CondaPath)},
			{"conda_env", c.CondaEnv},
			{"azure_config", c.AzureConfig},
			{"sandbox_mode", string(c.Sandbox.Mode)},
			{"openai_api_key", mask(c.OpenAIAPIKey)},
			{"anthropic_api_key", mask(c.AnthropicAPIKey)},
			{"preferences", app.prefs.GetConfigPath()},
			{"  engine_name", orNone(prefs.EngineName)},
			{"  plan_file", orNone(prefs.PlanFile)},
			{"  model", orNone(prefs.Model)},
		}
		if prefs.Temperature != nil {
			rows = append(rows, [2]string{"  temperature", fmt.Sprint(*prefs.Temperature)})
		}
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\n", r[0], r[1])
		}
		return w.Flush()
	},
}

var configSetCmd = &cobra.Command{
	Use:       "set <key> <value>",
	Short:     "Save a default for new sessions",
	Args:      cobra.ExactArgs(2),
	ValidArgs: config.PreferenceKeys,
	RunE: func(cmd *cobra.Command, args []string) error {
		prefs, err := app.prefs.Load()
		if err != nil {
			return err
		}
		if err := prefs.Set(args[0], args[1]); err != nil {
			return err
		}
		return app.prefs.Save(prefs)
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd)
}

func mask(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:3] + "..." + secret[len(secret)-4:]
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
