package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kartoza/aviation-risk/internal/config"
)

func newScoreCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score one CSV record and print the result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, version)
			if err != nil {
				return err
			}

			svc, err := newService(cfg, nil)
			if err != nil {
				return err
			}
			pred, err := svc.InferFile(cmd.Context(), cfg.InputPath)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(pred.Result); err != nil {
				return fmt.Errorf("failed to write result: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().String("input", config.Defaults().InputPath, "CSV file holding one flight record")
	return cmd
}
