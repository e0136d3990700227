package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/hive/internal/config"
	"github.com/wesleyorama2/hive/internal/output"
)

func newValidateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [run-file]",
		Short: "Check a run file without sending requests",
		Long: `Validate a run file against the hive schema and report every problem
found, with the path of the offending field.

  hive validate examples/movies.yaml
  hive validate examples/movies.yaml --print --format json
  hive validate --schema > run.schema.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			if a.v.GetBool("schema") {
				_, err := a.stdout.Write(config.Schema())
				return err
			}
			if len(args) == 0 {
				return &exitError{code: ExitConfigured, err: errors.New("a run file is required")}
			}
			return a.validate(args[0])
		},
	}

	cmd.Flags().Bool("print", false, "print the normalized run file")
	cmd.Flags().String("format", "yaml", "format for --print (yaml, json)")
	cmd.Flags().Bool("schema", false, "print the JSON Schema for run files and exit")
	return cmd
}

func (a *app) validate(path string) error {
	colors := output.DefaultColorScheme()
	if a.v.GetBool("no-color") {
		colors = output.NoColorScheme()
	}

	cfg, err := config.Load(path)
	if err != nil {
		var verrs *config.ValidationErrors
		if errors.As(err, &verrs) {
			fmt.Fprintf(a.stdout, "%s %s is invalid:\n", colors.ErrorIcon(), path)
			for _, e := range verrs.Errors {
				field := e.Field
				if field == "" {
					field = "(root)"
				}
				fmt.Fprintf(a.stdout, "  - %s: %s\n", field, e.Message)
			}
			return &exitError{code: ExitConfigured}
		}
		return &exitError{code: ExitConfigured, err: err}
	}

	if a.v.GetBool("print") {
		out, err := config.Marshal(cfg, a.v.GetString("format"))
		if err != nil {
			return err
		}
		_, err = a.stdout.Write(out)
		return err
	}

	run := cfg.ToRunConfig().WithDefaults()
	fmt.Fprintf(a.stdout, "%s %s is valid\n", colors.SuccessIcon(), path)
	if cfg.Description != "" {
		fmt.Fprintf(a.stdout, "  %s\n", cfg.Description)
	}
	fmt.Fprintf(a.stdout, "  host:      %s\n", run.Host)
	fmt.Fprintf(a.stdout, "  users:     %d at %g/s\n", run.Users, run.SpawnRate)
	fmt.Fprintf(a.stdout, "  duration:  %s\n", durationFlag(run.Duration))
	fmt.Fprintf(a.stdout, "  wait:      %s\n", run.Wait)
	fmt.Fprintf(a.stdout, "  tasks:\n")
	for _, t := range cfg.Tasks {
		fmt.Fprintf(a.stdout, "    - %-24s weight %-3d %d request(s)\n", t.Name, t.Weight, len(t.Requests))
	}
	return nil
}
