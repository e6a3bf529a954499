// Package cli implements the toxsig command, an offline front end to the
// analysis pipeline for study bundles stored on disk.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tox-signal-mcp-server/internal/config"
	"github.com/tox-signal-mcp-server/internal/database"
	"github.com/tox-signal-mcp-server/internal/domain"
	"github.com/tox-signal-mcp-server/internal/labrules"
	"github.com/tox-signal-mcp-server/internal/overrides"
	"github.com/tox-signal-mcp-server/internal/report"
	"github.com/tox-signal-mcp-server/internal/service"
	"github.com/tox-signal-mcp-server/internal/studyfile"
	"github.com/tox-signal-mcp-server/internal/syndrome"
)

// Exit codes.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// usageError marks a malformed command line.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// Execute runs the command line args (without the program name) and returns
// the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	logger := config.NewLogger(domain.LoggingConfig{Level: "warn", Format: "text"})
	logger.SetOutput(stderr)

	root := NewRootCommand(logger)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	cmd, err := root.ExecuteContextC(ctx)
	if err == nil {
		return ExitOK
	}

	var usage usageError
	if errors.As(err, &usage) || strings.HasPrefix(err.Error(), "unknown command") {
		fmt.Fprintf(stderr, "Error: %v\n\n%s", err, cmd.UsageString())
		return ExitUsage
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return ExitError
}

// NewRootCommand builds the toxsig command tree.
func NewRootCommand(logger *logrus.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "toxsig",
		Short:         "Interpret toxicology study findings",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return usageError{errors.New("a command is required")}
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})

	root.AddCommand(
		newAnalyzeCmd(logger),
		newValidateCmd(),
		newRulesCmd(),
		newSyndromesCmd(),
		newMigrateCmd(logger),
	)
	return root
}

func exactlyOneArg(cmd *cobra.Command, args []string) error {
	if err := cobra.ExactArgs(1)(cmd, args); err != nil {
		return usageError{err}
	}
	return nil
}

func newAnalyzeCmd(logger *logrus.Logger) *cobra.Command {
	var (
		configPath  string
		detail      string
		format      string
		overridesDB string
		xlsxPath    string
	)

	cmd := &cobra.Command{
		Use:   "analyze <study-file>",
		Short: "Run the signal pipeline on a JSON or YAML study file",
		Long: `Run the signal pipeline on a study file and print the result.

The summary detail prints the analysis digest as text, json, markdown or html.
The full detail prints the complete analysis as JSON.

Example: toxsig analyze study.yaml --overrides-db ~/.toxsig/overrides.db --xlsx study.xlsx`,
		Args: exactlyOneArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := strings.ToLower(detail)
			if mode != "summary" && mode != "full" {
				return fmt.Errorf("detail must be summary or full, got %q", detail)
			}
			format = strings.ToLower(format)
			switch format {
			case "text", "json", "markdown", "html":
			default:
				return fmt.Errorf("format must be text, json, markdown or html, got %q", format)
			}

			input, err := studyfile.Load(args[0])
			if err != nil {
				return err
			}

			analysisCfg := domain.DefaultAnalysisConfig()
			if configPath != "" {
				manager, err := config.NewManagerFromFile(configPath)
				if err != nil {
					return err
				}
				if err := manager.Validate(); err != nil {
					return err
				}
				analysisCfg = *manager.GetAnalysisConfig()
			}

			var deps service.StudyServiceDeps
			if overridesDB != "" {
				store, err := overrides.NewSQLiteStore(overridesDB)
				if err != nil {
					return err
				}
				defer store.Close()
				deps.Overrides = store
			}

			studies := service.NewStudyService(logger, service.NewAnalyzer(logger, analysisCfg), deps)
			analysis, err := studies.AnalyzeInput(cmd.Context(), input)
			if err != nil {
				return err
			}

			if xlsxPath != "" {
				if err := report.WriteWorkbook(xlsxPath, analysis); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if mode == "full" {
				return printJSON(out, analysis)
			}
			digest := service.Digest(analysis)
			switch format {
			case "json":
				return printJSON(out, digest)
			case "markdown":
				_, err = io.WriteString(out, report.Markdown(digest))
			case "html":
				_, err = out.Write(report.HTML(digest))
			default:
				_, err = fmt.Fprintln(out, digest.String())
			}
			return err
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "YAML configuration supplying the analysis section")
	cmd.Flags().StringVar(&detail, "detail", "summary", "output detail: summary or full")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "summary format: text, json, markdown or html")
	cmd.Flags().StringVar(&overridesDB, "overrides-db", "", "SQLite override database applied to the study")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "also write the analysis as an Excel workbook")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <study-file>",
		Short: "Check a study file without analyzing it",
		Args:  exactlyOneArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := studyfile.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid (%d findings, %d body weights, %d overrides)\n",
				input.StudyID, len(input.Findings), len(input.BodyWeights), len(input.Overrides))
			return nil
		},
	}
}

func newRulesCmd() *cobra.Command {
	var (
		category string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List the lab clinical-significance rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rules := labrules.Catalog()
			if category != "" {
				want := domain.RuleCategory(strings.ToLower(category))
				switch want {
				case domain.CategoryLiver, domain.CategoryGraded, domain.CategoryGovernance:
				default:
					return fmt.Errorf("unknown category %q", category)
				}
				filtered := rules[:0]
				for _, r := range rules {
					if r.Category == want {
						filtered = append(filtered, r)
					}
				}
				rules = filtered
			}

			if asJSON {
				return printJSON(cmd.OutOrStdout(), rules)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCATEGORY\tSEVERITY\tNAME")
			for _, r := range rules {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Category, r.Severity, r.Name)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "filter by category: liver, graded or governance")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the rules as JSON")
	return cmd
}

func newSyndromesCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "syndromes",
		Short: "List the cross-domain syndrome definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defs := syndrome.Catalog()
			if asJSON {
				return printJSON(cmd.OutOrStdout(), defs)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTERMS\tMIN SUPPORTING\tNAME")
			for _, d := range defs {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", d.ID, len(d.Terms), d.MinSupporting, d.Name)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the definitions as JSON")
	return cmd
}

func newMigrateCmd(logger *logrus.Logger) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate <up|down>",
		Short: "Apply pending run-history migrations or roll back the latest one",
		Long: `Apply or roll back the PostgreSQL migrations of the run-history and
override tables. Connection settings come from the YAML configuration and
TOXSIG_ environment variables.`,
		Args: exactlyOneArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			direction := strings.ToLower(args[0])
			if direction != "up" && direction != "down" {
				return fmt.Errorf("direction must be up or down, got %q", args[0])
			}

			manager, err := config.NewManagerFromFile(configPath)
			if err != nil {
				return err
			}
			dbCfg := manager.GetDatabaseConfig()
			runner, err := database.NewMigrationRunner(database.ConfigFromDomain(*dbCfg).URL(), dbCfg.MigrationsPath, logger)
			if err != nil {
				return err
			}
			defer runner.Close()

			if direction == "down" {
				err = runner.Down(cmd.Context())
			} else {
				err = runner.Up(cmd.Context())
			}
			if err != nil {
				return err
			}

			version, dirty, err := runner.Version()
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", version, dirty)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "YAML configuration supplying the database section")
	return cmd
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
