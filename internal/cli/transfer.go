package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/larder/internal/jsonl"
	"github.com/mesh-intelligence/larder/pkg/orm"
	"github.com/mesh-intelligence/larder/pkg/types"
)

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <type> <file.jsonl>",
		Short: "Write every entity of a type to a JSON Lines file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			repo, err := s.Repository(args[0])
			if err != nil {
				return err
			}
			all, err := repo.OrderBy(types.IDField, "ASC").FindAll(cmd.Context())
			if err != nil {
				return err
			}
			records, err := jsonl.Marshal(entityData(all))
			if err != nil {
				return err
			}
			if err := jsonl.Write(args[1], records); err != nil {
				return fmt.Errorf("export %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d %s to %s\n", len(records), args[0], args[1])
			return nil
		},
	}
}

func newImportCmd() *cobra.Command {
	var update bool
	cmd := &cobra.Command{
		Use:   "import <type> <file.jsonl>",
		Short: "Persist every object in a JSON Lines file",
		Long: `Import inserts one entity per line, keeping any id the line carries, and
flushes all of them in a single unit of work. With --update, lines that
carry an id update the existing row instead, as persist does.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := jsonl.Read(args[1])
			if err != nil {
				return userError{err}
			}
			s, st, err := openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			entities := make([]*types.Entity, 0, len(records))
			for i, rec := range records {
				obj, err := decodeObject(rec)
				if err != nil {
					return fmt.Errorf("record %d: %w", i+1, err)
				}
				e, err := s.Create(args[0])
				if err != nil {
					return err
				}
				applyFields(e, obj)
				if !update {
					e.SetState(types.StateCreated)
				}
				entities = append(entities, e)
			}

			if err := flush(cmd, s, st, func(m *orm.Manager) { m.Persist(entities...) }); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d %s from %s\n", len(entities), args[0], args[1])
			return nil
		},
	}
	cmd.Flags().BoolVar(&update, "update", false, "update rows for lines that carry an id")
	return cmd
}
