package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/semmidev/backdrop/internal/app"
	"github.com/semmidev/backdrop/internal/config"
	"github.com/semmidev/backdrop/internal/domain"
	"github.com/semmidev/backdrop/internal/infrastructure/logger"
)

func newAuthCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Obtain credentials for a remote",
	}
	cmd.AddCommand(newAuthGDriveCmd(configPath))
	return cmd
}

func newAuthGDriveCmd(configPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "gdrive",
		Short: "Authorize Google Drive access and save the token file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			gd := cfg.Remote.GDrive
			if gd.ClientSecretFile == "" || gd.TokenFile == "" {
				return fmt.Errorf("%w: remote.gdrive.client_secret_file and remote.gdrive.token_file are required", domain.ErrConfiguration)
			}

			log, err := logger.New(cfg.App.Name, cfg.App.LogLevel, cfg.App.LogFile)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer log.Close()

			svc, err := app.NewGoogleOAuthService(log, gd.ClientSecretFile, gd.TokenFile)
			if err != nil {
				return err
			}
			if err := svc.StartAuthServer(cmd.Context(), addr); err != nil {
				return err
			}

			var waitErr error
			select {
			case <-svc.Done():
			case <-cmd.Context().Done():
				waitErr = errors.New("authorization interrupted before a token was saved")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := svc.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return waitErr
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:8085", "listen address of the OAuth callback server")
	return cmd
}
