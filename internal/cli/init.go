package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/larder/internal/schema"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize larder configuration and storage",
		Long: "Create the configuration directory with config.yaml and a starter\n" +
			"entities.yaml, open the configured backend, and run schema.sql from the\n" +
			"configuration directory when present. Existing files are left alone.",
		Args: cobra.NoArgs,
		RunE: runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	st, err := resolveSettings()
	if err != nil {
		return err
	}

	sampled, err := writeEntitiesIfMissing(st.entities)
	if err != nil {
		return err
	}

	s, st, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	script, err := os.ReadFile(filepath.Join(st.configDir, schemaScript))
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist) && sampled:
		script = []byte(schema.SampleDDL(st.config.Backend))
	case errors.Is(err, os.ErrNotExist):
		script = nil
	default:
		return fmt.Errorf("read %s: %w", schemaScript, err)
	}
	if len(script) > 0 {
		if err := s.ExecScript(cmd.Context(), string(script)); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "larder initialized (%s, config %s)\n", s.Backend(), st.configDir)
	return nil
}

// writeEntitiesIfMissing writes the sample entity definitions and reports
// whether it did.
func writeEntitiesIfMissing(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("create entities dir: %w", err)
	}
	if err := schema.WriteYAML(path, schema.Sample()); err != nil {
		return false, err
	}
	return true, nil
}
