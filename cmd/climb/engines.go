package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/DrShushen/climb/internal/engine"
)

var paramsValues []string

var enginesCmd = &cobra.Command{
	Use:   "engines",
	Short: "Describe the available engines",
}

var enginesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered engines",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tPROVIDER\tDESCRIPTION")
		for _, name := range app.reg.Available() {
			d, err := app.reg.Lookup(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, d.Provider, d.Description)
		}
		return w.Flush()
	},
}

var enginesParamsCmd = &cobra.Command{
	Use:   "params <engine>",
	Short: "Show an engine's parameters as they would resolve for a new session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := app.reg.Lookup(args[0])
		if err != nil {
			return err
		}
		values, err := parseParams(paramsValues)
		if err != nil {
			return err
		}
		resolved, err := engine.ResolveParameters(d.Parameters(), values)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tKIND\tVALUE\tFLAGS\tOPTIONS")
		for _, r := range resolved {
			var flags []string
			if r.Computed {
				flags = append(flags, "computed")
			}
			if r.Disabled {
				flags = append(flags, "disabled")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Name, r.Kind, formatValue(r.Value),
				strings.Join(flags, ","), strings.Join(r.Values, ", "))
		}
		return w.Flush()
	},
}

func init() {
	enginesParamsCmd.Flags().StringArrayVarP(&paramsValues, "param", "p", nil, "parameter as key=value (repeatable)")
	enginesCmd.AddCommand(enginesListCmd, enginesParamsCmd)
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "-"
	case string:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}
