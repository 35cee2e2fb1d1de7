package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/larder/pkg/larder"
	"github.com/mesh-intelligence/larder/pkg/orm"
	"github.com/mesh-intelligence/larder/pkg/types"
)

func newPersistCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "persist <type> <json-object>...",
		Short: "Create or update entities",
		Long: `Persist writes one entity per JSON object. An object with an id updates
that row; any other object creates a row. Every object is validated and
filtered before it is written, and with transactional: true in config.yaml
all objects are written in one transaction.

Example:
  larder persist group '{"name": "admins"}'
  larder persist group '{"id": 3, "name": "owners"}'`,
		Args: cobra.MinimumNArgs(2),
		RunE: runPersist,
	}
}

func runPersist(cmd *cobra.Command, args []string) error {
	s, st, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	entities := make([]*types.Entity, 0, len(args)-1)
	for _, raw := range args[1:] {
		obj, err := decodeObject([]byte(raw))
		if err != nil {
			return err
		}
		e, err := s.Create(args[0])
		if err != nil {
			return err
		}
		applyFields(e, obj)
		entities = append(entities, e)
	}

	if err := flush(cmd, s, st, func(m *orm.Manager) { m.Persist(entities...) }); err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), entityData(entities))
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <type> <id>...",
		Short: "Delete entities by id",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runRemove,
	}
}

func runRemove(cmd *cobra.Command, args []string) error {
	s, st, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	var entities []*types.Entity
	for _, raw := range args[1:] {
		conds, err := parseConditions([]string{types.IDField + "=" + raw})
		if err != nil {
			return err
		}
		repo, err := s.Repository(args[0])
		if err != nil {
			return err
		}
		e, err := repo.Get(cmd.Context(), conds[0].value)
		if err != nil {
			return err
		}
		if e.State() != types.StateLoaded {
			return userErrorf("%s %s not found", args[0], raw)
		}
		entities = append(entities, e)
	}

	if err := flush(cmd, s, st, func(m *orm.Manager) { m.Remove(entities...) }); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d %s\n", len(entities), args[0])
	return nil
}

// flush builds a manager, lets queue add entities, and flushes it, in one
// transaction when configured.
func flush(cmd *cobra.Command, s *larder.Session, st settings, queue func(*orm.Manager)) error {
	m, err := s.Manager()
	if err != nil {
		return err
	}
	if st.transactional {
		m.Transactional()
	}
	queue(m)
	if _, err := m.Flush(cmd.Context()); err != nil {
		if detail := describeValidation(err); detail != "" {
			fmt.Fprint(cmd.ErrOrStderr(), detail)
		}
		return err
	}
	return nil
}
