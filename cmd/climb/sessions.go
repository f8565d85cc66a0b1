package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/DrShushen/climb/internal/engine/episodic"
	"github.com/DrShushen/climb/internal/factory"
	"github.com/DrShushen/climb/internal/session"
)

const defaultEngine = "openai_v1"

var (
	newName     string
	newEngine   string
	newParams   []string
	newActivate bool
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"session", "s"},
	Short:   "Manage research sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := app.Store(ctx)
		if err != nil {
			return err
		}
		all, err := store.GetAllSessions(ctx)
		if err != nil {
			return err
		}
		settings, err := store.GetUserSettings(ctx)
		if err != nil {
			return err
		}
		sort.SliceStable(all, func(i, j int) bool { return all[i].StartedAt.After(all[j].StartedAt) })

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "\tKEY\tNAME\tENGINE\tAGENT\tSTARTED")
		for _, s := range all {
			marker := ""
			if s.SessionKey == settings.ActiveSession {
				marker = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", marker, s.SessionKey, s.FriendlyName,
				s.EngineName, s.EngineState.Agent, s.StartedAt.Local().Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var sessionsNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a session for an engine",
	Long: `Create a session. Engine parameters are passed as --param key=value;
values that parse as JSON keep their type. Defaults for engine_name,
plan_file, model and temperature come from "climb config set".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		values, err := parseParams(newParams)
		if err != nil {
			return err
		}
		prefs, err := app.prefs.Load()
		if err != nil {
			return err
		}
		name := newEngine
		if name == "" {
			name = prefs.EngineName
		}
		if name == "" {
			name = defaultEngine
		}
		if _, ok := values[episodic.ParamPlanFile]; !ok && prefs.PlanFile != "" {
			values[episodic.ParamPlanFile] = prefs.PlanFile
		}
		if _, ok := values[episodic.ParamModelID]; !ok && prefs.Model != "" {
			values[episodic.ParamModelID] = prefs.Model
		}
		if _, ok := values[episodic.ParamTemperature]; !ok && prefs.Temperature != nil {
			values[episodic.ParamTemperature] = *prefs.Temperature
		}

		params, err := factory.ResolveNewSession(app.reg, app.cfg, name, values, app.log)
		if err != nil {
			return err
		}
		store, err := app.Store(ctx)
		if err != nil {
			return err
		}
		sess, err := session.CreateNewSession(ctx, store, session.NewSessionOptions{
			Name:         newName,
			EngineName:   name,
			EngineParams: params,
			SessionsDir:  app.cfg.SessionsDir(),
		})
		if err != nil {
			return err
		}
		if newActivate {
			if err := session.SetActiveSession(ctx, store, sess.SessionKey); err != nil {
				return err
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), sess.SessionKey)
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <key>...",
	Short: "Delete sessions and their working directories",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := app.Store(ctx)
		if err != nil {
			return err
		}
		return session.DeleteSessions(ctx, store, args)
	},
}

var sessionsActivateCmd = &cobra.Command{
	Use:   "activate <key>",
	Short: "Make a session the default for chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := app.Store(ctx)
		if err != nil {
			return err
		}
		if _, err := store.GetSession(ctx, args[0]); err != nil {
			return err
		}
		return session.SetActiveSession(ctx, store, args[0])
	},
}

func init() {
	sessionsNewCmd.Flags().StringVar(&newName, "name", "", "friendly session name")
	sessionsNewCmd.Flags().StringVar(&newEngine, "engine", "", "engine name (see \"climb engines list\")")
	sessionsNewCmd.Flags().StringArrayVarP(&newParams, "param", "p", nil, "engine parameter as key=value (repeatable)")
	sessionsNewCmd.Flags().BoolVar(&newActivate, "activate", true, "make the new session active")

	sessionsCmd.AddCommand(sessionsListCmd, sessionsNewCmd, sessionsDeleteCmd, sessionsActivateCmd)
}
