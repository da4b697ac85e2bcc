package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/twopanel/ftpcore/common"
	"github.com/twopanel/ftpcore/operation"
	"github.com/twopanel/ftpcore/worker"
)

type runFlags struct {
	profilePath string
	host        string
	port        int
	user        string
	password    string
	account     string
	passive     bool
	opType      string
	source      string
	target      string
	recursive   bool
	mode        string
}

func newRunCmd() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a new transfer, delete, or chattrs operation and wait for it to finish",
		Long: `run starts one Operation (§3.4): it connects using either a --profile
TOML file or the --host/--user/--password flags, seeds the queue from
--source, and blocks in the foreground reporting progress until the
operation finishes, fails, or is cancelled with "ftpcore cancel".`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, f)
		},
	}

	cmd.Flags().StringVar(&f.profilePath, "profile", "", "TOML connection profile (overrides --host/--user/--password/...)")
	cmd.Flags().StringVar(&f.host, "host", "", "FTP server host")
	cmd.Flags().IntVar(&f.port, "port", 21, "FTP server port")
	cmd.Flags().StringVar(&f.user, "user", "", "FTP username")
	cmd.Flags().StringVar(&f.password, "password", "", "FTP password")
	cmd.Flags().StringVar(&f.account, "account", "", "FTP ACCT string, if the server requires one")
	cmd.Flags().BoolVar(&f.passive, "passive", true, "use passive-mode data connections")
	cmd.Flags().StringVar(&f.opType, "type", "", "operation type: delete, copy-download, move-download, chattrs, copy-upload, move-upload")
	cmd.Flags().StringVar(&f.source, "source", "", "source path (remote for download/delete/chattrs, local for copy-upload/move-upload)")
	cmd.Flags().StringVar(&f.target, "target", "", "target path (local for download, remote for upload); unused for delete")
	cmd.Flags().BoolVar(&f.recursive, "recursive", false, "source is a directory, explore it recursively (ignored for uploads, which stat the local source instead)")
	cmd.Flags().StringVar(&f.mode, "mode", "644", "requested permission bits, octal, for --type chattrs")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("source")

	return cmd
}

func runRun(cmd *cobra.Command, f *runFlags) error {
	env := envFrom(cmd.Context())

	profile, err := resolveConnectionProfile(f)
	if err != nil {
		return err
	}

	opType, err := parseOperationType(f.opType)
	if err != nil {
		return err
	}

	isDir, err := sourceIsDir(opType, f.source, f.recursive)
	if err != nil {
		return err
	}

	params := operation.Params{
		ConnectionProfile: profile,
		Type:              opType,
		SourcePath:        f.source,
		TargetPath:        f.target,
		WorkerCount:       workerCount(),
	}

	uid := common.NewOperationUID()
	level, err := parseLogLevel(flagLogLevel)
	if err != nil {
		return err
	}
	common.SetCurrentLogger(common.NewOperationLogger(uid, level, flagLogDir, ""))

	op := operation.New(uid, env.list, env.shared, params)
	env.list.Add(op)

	topItem, err := buildTopLevelItem(opType, f.source, isDir, f.mode)
	if err != nil {
		return err
	}
	op.Queue().AddItem(topItem)

	if err := env.store.SaveOperation(uid, params, time.Now().Unix()); err != nil {
		return fmt.Errorf("journaling new operation: %w", err)
	}
	for _, item := range op.Queue().Snapshot() {
		item := item
		if err := env.store.SaveItem(uid, &item); err != nil {
			return fmt.Errorf("journaling seed item: %w", err)
		}
	}

	fmt.Fprintf(os.Stderr, "started operation %s\n", uid)
	return runForeground(cmd.Context(), env, uid, op)
}

// sourceIsDir decides the top-level item's shape (§4.2): an upload's
// source lives on the local filesystem, so it is stat-ed directly rather
// than trusting --recursive, the one case this CLI can know for certain
// without first talking to the server.
func sourceIsDir(t worker.OperationType, source string, recursive bool) (bool, error) {
	if t != worker.OpCopyUpload && t != worker.OpMoveUpload {
		return recursive, nil
	}
	info, err := os.Stat(source)
	if err != nil {
		return false, fmt.Errorf("stat local source %q: %w", source, err)
	}
	return info.IsDir(), nil
}

// resolveConnectionProfile loads --profile if given, else builds a
// ConnectionProfile directly from the flat connection flags -- the same
// "file overrides flags, flags stand alone otherwise" shape
// tonimelisma-onedrive-go's config.CLIOverrides layers over its resolved
// config.
func resolveConnectionProfile(f *runFlags) (common.ConnectionProfile, error) {
	if f.profilePath != "" {
		return common.LoadConnectionProfile(f.profilePath)
	}
	if f.host == "" || f.user == "" {
		return common.ConnectionProfile{}, fmt.Errorf("either --profile or --host and --user must be given")
	}
	return common.ConnectionProfile{
		Host:           f.host,
		Port:           f.port,
		User:           f.user,
		Password:       f.password,
		Account:        f.account,
		UsePassiveMode: f.passive,
	}, nil
}
