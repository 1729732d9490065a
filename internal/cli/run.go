package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newRunCmd(configPath *string, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Create a backup, upload it and delete expired remote backups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), *configPath, stdout)
		},
	}
}

func runOnce(ctx context.Context, configPath string, stdout io.Writer) error {
	application, err := newApp(ctx, configPath, stdout)
	if err != nil {
		return err
	}
	defer application.Shutdown()

	res := application.RunOnce(ctx)
	if code := res.ExitCode(); code != 0 {
		return &exitError{code: code, err: fmt.Errorf("backup %s: %w", res.Status, res.Err)}
	}
	return nil
}

func newDeleteJunkCmd(configPath *string, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-junk",
		Short: "Delete expired backups from the remote upload path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApp(cmd.Context(), *configPath, stdout)
			if err != nil {
				return err
			}
			defer application.Shutdown()

			report, err := application.DeleteJunk(cmd.Context())
			if err != nil {
				return err
			}
			if len(report.Failed) > 0 {
				fmt.Fprintf(stdout, "%d expired file(s) could not be deleted\n", len(report.Failed))
			}
			return nil
		},
	}
}

func newDaemonCmd(configPath *string, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run backups on the configured cron schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApp(cmd.Context(), *configPath, stdout)
			if err != nil {
				return err
			}
			defer application.Shutdown()

			return application.RunDaemon(cmd.Context())
		},
	}
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(stdout, Version)
		},
	}
}
