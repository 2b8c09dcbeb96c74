package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jmehdipour/router-sms-gateway/internal/app"
	"github.com/jmehdipour/router-sms-gateway/internal/db"
	"github.com/jmehdipour/router-sms-gateway/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the delivery history table in MySQL",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := app.Bootstrap(cfgPath)
		if err != nil {
			return err
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, app.MySQLOpts(cfg))
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer sqlDB.Close()

		scripts, order, err := migrations.Scripts()
		if err != nil {
			return fmt.Errorf("read migrations: %w", err)
		}

		for _, name := range order {
			for _, stmt := range strings.Split(scripts[name], ";") {
				if strings.TrimSpace(stmt) == "" {
					continue
				}
				if _, err := sqlDB.ExecContext(cmd.Context(), stmt); err != nil {
					return fmt.Errorf("exec migration %s: %w", name, err)
				}
			}
			log.Info("migration applied", zap.String("file", name))
		}

		fmt.Fprintln(cmd.OutOrStdout(), ">> Migration complete")
		return nil
	},
}
