package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/DrShushen/climb/internal/plan"
	"github.com/DrShushen/climb/internal/tools"
)

var (
	addName     string
	addDetails  string
	addTools    []string
	addToPlan   bool
	newFromFile string
)

var plansCmd = &cobra.Command{
	Use:     "plans",
	Aliases: []string{"plan"},
	Short:   "Inspect and edit research plan files",
}

var plansListCmd = &cobra.Command{
	Use:   "list",
	Short: "List plan files and templates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		listing, err := plan.List(app.cfg.PlansDir)
		if err != nil {
			return err
		}
		printListing(cmd, listing)
		return nil
	},
}

var plansShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Print a plan's sequence and episodes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, f, err := loadPlan(args[0])
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STEP\tID\tNAME\tTOOLS")
		step := map[string]int{}
		for i, id := range f.Plan {
			step[id] = i + 1
		}
		for _, ep := range f.Episodes {
			n := "-"
			if s, ok := step[ep.EpisodeID]; ok {
				n = fmt.Sprint(s)
			}
			toolList := "all"
			if !ep.AllTools() {
				toolList = strings.Join(ep.Tools, ",")
				if toolList == "" {
					toolList = "none"
				}
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", n, ep.EpisodeID, ep.EpisodeName, toolList)
		}
		return w.Flush()
	},
}

var plansValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a plan file for errors and warnings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, f, err := loadPlan(args[0])
		if err != nil {
			return err
		}
		errs, warnings := plan.Validate(f, tools.ListAllToolNames())
		out := cmd.OutOrStdout()
		for _, w := range warnings {
			fmt.Fprintln(out, "warning:", w)
		}
		for _, e := range errs {
			fmt.Fprintln(out, "error:", e)
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s has %d error(s)", args[0], len(errs))
		}
		fmt.Fprintln(out, "ok")
		return nil
	},
}

var plansNewCmd = &cobra.Command{
	Use:   "new <name>",
	Short: "Create a plan file, optionally copied from another plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := plan.SanitizeFilename(args[0])
		path := filepath.Join(app.cfg.PlansDir, name)
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("plan %s already exists", name)
		}
		f := &plan.File{Plan: []string{}}
		if newFromFile != "" {
			_, src, err := loadPlan(newFromFile)
			if err != nil {
				return err
			}
			f = src
		}
		if err := os.MkdirAll(app.cfg.PlansDir, 0755); err != nil {
			return err
		}
		if err := plan.Save(path, f, tools.ListAllToolNames()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), name)
		return nil
	},
}

var plansAddEpisodeCmd = &cobra.Command{
	Use:   "add-episode <file>",
	Short: "Append an episode with a fresh id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, f, err := userPlan(args[0])
		if err != nil {
			return err
		}
		known := tools.ListAllToolNames()
		ep := f.AddEpisode()
		last := &f.Episodes[len(f.Episodes)-1]
		last.EpisodeName = addName
		last.EpisodeDetails = addDetails
		switch {
		case len(addTools) == 1 && addTools[0] == "all":
			last.Tools = nil
		case cmd.Flags().Changed("tools"):
			last.Tools = plan.CleanTools(addTools, known)
		}
		if addToPlan {
			f.AddToPlan(ep.EpisodeID)
		}
		if err := plan.Save(path, f, known); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ep.EpisodeID)
		return nil
	},
}

var plansMoveCmd = &cobra.Command{
	Use:   "move <file> <episode-id> <up|down>",
	Short: "Move an episode within the episode database",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, f, err := userPlan(args[0])
		if err != nil {
			return err
		}
		idx, err := episodeIndex(f, args[1])
		if err != nil {
			return err
		}
		var dir int
		switch args[2] {
		case "up":
			dir = -1
		case "down":
			dir = 1
		default:
			return fmt.Errorf("direction must be up or down, got %q", args[2])
		}
		if !f.MoveEpisode(idx, dir) {
			return fmt.Errorf("episode %s cannot move %s", args[1], args[2])
		}
		return plan.Save(path, f, tools.ListAllToolNames())
	},
}

var plansDeleteEpisodeCmd = &cobra.Command{
	Use:   "delete-episode <file> <episode-id>",
	Short: "Remove an episode from the episode database",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, f, err := userPlan(args[0])
		if err != nil {
			return err
		}
		idx, err := episodeIndex(f, args[1])
		if err != nil {
			return err
		}
		f.DeleteEpisode(idx)
		known := tools.ListAllToolNames()
		_, warnings := plan.Validate(f, known)
		for _, w := range warnings {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
		}
		return plan.Save(path, f, known)
	},
}

var plansWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the plan listing whenever the plans directory changes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		w, err := plan.NewWatcher(app.cfg.PlansDir, func(l plan.Listing) {
			fmt.Fprintln(cmd.OutOrStdout(), "-- plans changed --")
			printListing(cmd, l)
		}, app.log)
		if err != nil {
			return err
		}
		err = w.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

func init() {
	plansNewCmd.Flags().StringVar(&newFromFile, "from", "", "copy episodes and sequence from this plan")

	plansAddEpisodeCmd.Flags().StringVar(&addName, "name", "", "episode name")
	plansAddEpisodeCmd.Flags().StringVar(&addDetails, "details", "", "episode details")
	plansAddEpisodeCmd.Flags().StringSliceVar(&addTools, "tools", nil, "tools the worker may use, or \"all\" (default none)")
	plansAddEpisodeCmd.Flags().BoolVar(&addToPlan, "plan", true, "append the episode to the plan sequence")

	plansCmd.AddCommand(plansListCmd, plansShowCmd, plansValidateCmd, plansNewCmd,
		plansAddEpisodeCmd, plansMoveCmd, plansDeleteEpisodeCmd, plansWatchCmd)
}

func printListing(cmd *cobra.Command, l plan.Listing) {
	out := cmd.OutOrStdout()
	for _, name := range l.PlanFiles {
		fmt.Fprintln(out, name)
	}
	for _, name := range l.TemplateFiles {
		fmt.Fprintf(out, "%s (template)\n", name)
	}
}

// loadPlan resolves name against the plans directory listing.
func loadPlan(name string) (string, *plan.File, error) {
	listing, err := plan.List(app.cfg.PlansDir)
	if err != nil {
		return "", nil, err
	}
	path, ok := listing.Path(app.cfg.PlansDir, name)
	if !ok {
		return "", nil, fmt.Errorf("plan %q not found in %s", name, app.cfg.PlansDir)
	}
	f, err := plan.Load(path)
	if err != nil {
		return "", nil, err
	}
	return path, f, nil
}

// userPlan loads a plan that may be edited. Templates are read-only.
func userPlan(name string) (string, *plan.File, error) {
	path, f, err := loadPlan(name)
	if err != nil {
		return "", nil, err
	}
	if filepath.Dir(path) != filepath.Clean(app.cfg.PlansDir) {
		return "", nil, errors.New("templates are read-only; copy one with \"climb plans new --from\"")
	}
	return path, f, nil
}

func episodeIndex(f *plan.File, id string) (int, error) {
	for i, ep := range f.Episodes {
		if ep.EpisodeID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("episode %q not found", id)
}
