package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/loopcast/internal/database"
	"github.com/jmylchreest/loopcast/internal/repository"
	"github.com/jmylchreest/loopcast/internal/service"
	"github.com/jmylchreest/loopcast/pkg/duration"
	"github.com/jmylchreest/loopcast/pkg/format"
)

var definitionsCmd = &cobra.Command{
	Use:     "definitions",
	Aliases: []string{"defs"},
	Short:   "Manage saved stream definitions",
	Long: `Manage the stream definitions stored in the database.

Definitions can be moved between servers as YAML:

  loopcast definitions export > streams.yaml
  loopcast definitions import streams.yaml --overwrite`,
}

var definitionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stream definitions",
	RunE:  runDefinitionsList,
}

var definitionsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write all definitions as YAML",
	Long: `Write all definitions as YAML to stdout or --output.

The export contains stream keys in clear text.`,
	RunE: runDefinitionsExport,
}

var definitionsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import definitions from a YAML export",
	Long: `Import definitions from a YAML export. Use "-" to read stdin.

Definitions whose name already exists are skipped unless --overwrite is set.
The result is printed as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: runDefinitionsImport,
}

func init() {
	rootCmd.AddCommand(definitionsCmd)
	definitionsCmd.AddCommand(definitionsListCmd, definitionsExportCmd, definitionsImportCmd)

	definitionsExportCmd.Flags().StringP("output", "o", "", "write to this file instead of stdout")
	definitionsImportCmd.Flags().Bool("overwrite", false, "replace definitions with the same name")
	definitionsImportCmd.Flags().Bool("dry-run", false, "validate without writing")
}

// openDefinitions opens the database for offline definition management.
// The returned service cannot schedule sessions.
func openDefinitions(cmd *cobra.Command) (*service.DefinitionService, func(), error) {
	db, err := database.New(cfg.Database, slog.Default())
	if err != nil {
		return nil, nil, fmt.Errorf("initializing database: %w", err)
	}
	if err := db.Migrate(cmd.Context()); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	svc := service.NewDefinitionService(repository.NewStreamDefinitionRepository(db.DB), nil)
	return svc, func() { _ = db.Close() }, nil
}

func runDefinitionsList(cmd *cobra.Command, _ []string) error {
	svc, closeDB, err := openDefinitions(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	defs, err := svc.List(cmd.Context())
	if err != nil {
		return err
	}

	now := time.Now()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSCHEDULE\tLENGTH\tENABLED\tNEXT START")
	for _, d := range defs {
		schedule := format.Cron(d.CronSchedule)
		if d.CronSchedule == "" && d.StartTime != nil {
			schedule = d.StartTime.Local().Format(time.DateTime)
		}
		length := "-"
		switch {
		case d.Duration > 0:
			length = duration.Format(d.Duration)
		case d.EndTime != nil:
			length = "until " + d.EndTime.Local().Format(time.DateTime)
		}
		next := "-"
		if t, ok := d.NextStart(now); ok && d.IsEnabled() {
			next = t.Local().Format(time.DateTime) + " (" + format.Relative(t, now) + ")"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n", d.ID, d.Name, schedule, length, d.IsEnabled(), next)
	}
	return w.Flush()
}

func runDefinitionsExport(cmd *cobra.Command, _ []string) error {
	svc, closeDB, err := openDefinitions(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	var out io.Writer = cmd.OutOrStdout()
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		defer f.Close()
		out = f
	}

	n, err := svc.Export(cmd.Context(), out)
	if err != nil {
		return err
	}
	slog.Info("definitions exported", slog.Int("count", n))
	return nil
}

func runDefinitionsImport(cmd *cobra.Command, args []string) error {
	svc, closeDB, err := openDefinitions(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	var in io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening %s: %w", args[0], err)
		}
		defer f.Close()
		in = f
	}

	var opts service.ImportOptions
	opts.Overwrite, _ = cmd.Flags().GetBool("overwrite")
	opts.DryRun, _ = cmd.Flags().GetBool("dry-run")

	res, err := svc.Import(cmd.Context(), in, opts)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	if len(res.Errors) > 0 {
		return fmt.Errorf("%d definitions could not be imported", len(res.Errors))
	}
	return nil
}
