package cli

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kartoza/aviation-risk/internal/pipeline"
)

func newPackCommand(version string) *cobra.Command {
	var definition, out string

	cmd := &cobra.Command{
		Use:   "pack",
		Short: "Convert a pipeline artifact between the JSON definition and the SQLite model pack",
		Long: "Loads and validates an artifact, then writes it to --out. An --out path ending in " +
			".json is written as a JSON definition, anything else as a SQLite model pack.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, version)
			if err != nil {
				return err
			}
			if out == "" {
				return errors.New("--out is required")
			}
			src := definition
			if src == "" {
				src = cfg.ArtifactPath
			}

			p, err := pipeline.Load(src)
			if err != nil {
				return err
			}
			def, err := pipeline.Define(p)
			if err != nil {
				return err
			}
			if err := pipeline.Save(out, def); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}

			log.Info().
				Str("from", src).
				Str("to", out).
				Int("features", p.Pre.Width()).
				Str("classifier", p.Clf.Kind()).
				Msg("artifact written")
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d features, %s)\n", out, p.Pre.Width(), p.Clf.Kind())
			return nil
		},
	}

	cmd.Flags().StringVar(&definition, "definition", "", "Source artifact (defaults to --artifact)")
	cmd.Flags().StringVar(&out, "out", "", "Destination artifact")
	return cmd
}
