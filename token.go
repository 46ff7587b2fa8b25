package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tickwatch/internal/logger"
	"tickwatch/internal/services"
)

func newTokenCmd(flags *flagOverrides) *cobra.Command {
	var client string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a websocket token for this server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			log, err := logger.New("warn", cfg.Development)
			if err != nil {
				return err
			}
			defer log.Sync()

			auth, err := services.NewAuthService(cfg.JWTSecret, "", cfg.TokenExpiry, log)
			if err != nil {
				return err
			}
			serverID := cfg.ResolvedServerID()
			token, err := auth.GenerateToken(serverID, client)
			if err != nil {
				return err
			}
			log.Debug("token generated", zap.Int("server_id", serverID), zap.String("client", client))

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, token)
			fmt.Fprintf(out, "url:     ws://%s/ws?token=%s\n", cfg.ListenAddr(), token)
			fmt.Fprintf(out, "expires: %s\n", auth.TokenExpiry().Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}
	cmd.Flags().StringVar(&client, "client", "dashboard", "name recorded in the token")
	return cmd
}
