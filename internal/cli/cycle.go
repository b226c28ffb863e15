package cli

import (
	"github.com/spf13/cobra"
)

// RunCmd 执行一个周期，失败时非零退出，适合由 cron 等外部调度器调用
func RunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one check-in cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := newService(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			outcome, err := svc.RunCycle(cmd.Context())
			if err != nil {
				return err
			}

			renderOutcome(cmd.OutOrStdout(), outcome, svc.Threshold())
			return nil
		},
	}
}

// ShowCmd 打印当前记录
func ShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current check-in record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := newService(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			rec, err := svc.Current(cmd.Context())
			if err != nil {
				return err
			}

			renderRecord(cmd.OutOrStdout(), rec, svc.Threshold())
			return nil
		},
	}
}

// ResetCmd 把记录覆盖为模板，开始新周期
func ResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Overwrite the check-in record with a fresh template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errConfirmRequired
			}

			svc, cleanup, err := newService(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			rec, err := svc.Reset(cmd.Context())
			if err != nil {
				return err
			}

			renderRecord(cmd.OutOrStdout(), rec, svc.Threshold())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the reset")
	return cmd
}
