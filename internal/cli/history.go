package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"DeadManSwitch/internal/repository"
	"DeadManSwitch/pkg/logger"
	"DeadManSwitch/storage/database"
)

// HistoryCmd 读取 worker 写入的周期审计记录
func HistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent cycle audit rows written by the worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}

			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if err := database.Init(cfg); err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer func() { _ = database.Close(cmd.Context()) }()

			audits, err := repository.NewAuditRepository(database.DB()).Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			renderHistory(cmd.OutOrStdout(), audits)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of rows to show")
	return cmd
}
