package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/twopanel/ftpcore/common"
	"github.com/twopanel/ftpcore/diskio"
	"github.com/twopanel/ftpcore/journal"
	"github.com/twopanel/ftpcore/listingcache"
	"github.com/twopanel/ftpcore/openedfiles"
	"github.com/twopanel/ftpcore/operation"
)

// Global persistent flags, bound in newRootCmd, following
// tonimelisma-onedrive-go's root.go package-level-var pattern rather than
// cobra's newer viper-binding style, since this module already commits to
// that style for its other cross-cutting globals (common.SetCurrentLogger).
var (
	flagJournalPath string
	flagLogDir      string
	flagLogLevel    string
	flagWorkers     int
	flagOutput      = defaultOutputFormat()
)

// cliEnv bundles the process-wide subsystems every subcommand shares,
// the cmd/ftpcore analogue of operation.SharedDeps plus the journal store
// a library caller of the operation/worker packages doesn't need.
type cliEnv struct {
	store  *journal.Store
	shared operation.SharedDeps
	list   *operation.OperationsList
	out    outputFormat
}

type cliEnvKey struct{}

func envFrom(ctx context.Context) *cliEnv {
	env, _ := ctx.Value(cliEnvKey{}).(*cliEnv)
	return env
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ftpcore",
		Short:         "Multi-connection FTP transfer engine",
		Long:          "ftpcore runs and inspects two-panel-style FTP transfer operations (copy, move, delete, chattrs) directly from the command line.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return openEnv(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			env := envFrom(cmd.Context())
			if env == nil {
				return nil
			}
			return env.store.Close()
		},
	}

	defaultJournalPath := filepath.Join(os.TempDir(), "ftpcore", "journal.db")
	cmd.PersistentFlags().StringVar(&flagJournalPath, "journal-db", defaultJournalPath, "path to the crash-recovery journal database")
	cmd.PersistentFlags().StringVar(&flagLogDir, "log-dir", filepath.Join(os.TempDir(), "ftpcore", "logs"), "directory operation logs are written under")
	cmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "Warning", "operation log verbosity: None, Error, Warning, Info, Debug")
	cmd.PersistentFlags().IntVar(&flagWorkers, "workers", 0, "worker connections per operation (0 = auto-detect from CPU count)")
	cmd.PersistentFlags().Var(&flagOutput, "output", "result format: text or json")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newResumeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newPauseCmd())
	cmd.AddCommand(newCancelCmd())

	return cmd
}

// openEnv opens the journal database and constructs the shared
// subsystems every subcommand operates on, stashing them on the
// command's context the way onedrive-go's loadConfig populates
// CLIContext in PersistentPreRunE.
func openEnv(cmd *cobra.Command) error {
	if err := os.MkdirAll(filepath.Dir(flagJournalPath), 0o755); err != nil {
		return fmt.Errorf("creating journal directory: %w", err)
	}
	if err := os.MkdirAll(flagLogDir, 0o755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}

	level, err := parseLogLevel(flagLogLevel)
	if err != nil {
		return err
	}
	logger := common.NewOperationLogger(common.NewOperationUID(), level, flagLogDir, "-cli")
	common.SetCurrentLogger(logger)

	store, err := journal.Open(flagJournalPath, logger)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}

	env := &cliEnv{
		store: store,
		shared: operation.SharedDeps{
			Disk:         diskio.New(),
			Cache:        listingcache.New(),
			Opened:       openedfiles.New(),
			ParseListing: listingcache.ParseUnixListing,
			Persist:      store,
		},
		list: operation.NewOperationsList(),
		out:  flagOutput,
	}

	cmd.SetContext(context.WithValue(cmd.Context(), cliEnvKey{}, env))
	return nil
}

func parseLogLevel(s string) (common.LogLevel, error) {
	switch s {
	case "None":
		return common.ELogLevel.None(), nil
	case "Error":
		return common.ELogLevel.Error(), nil
	case "Warning":
		return common.ELogLevel.Warning(), nil
	case "Info":
		return common.ELogLevel.Info(), nil
	case "Debug":
		return common.ELogLevel.Debug(), nil
	default:
		return 0, fmt.Errorf("invalid log level %q", s)
	}
}

func workerCount() int {
	return flagWorkers
}
