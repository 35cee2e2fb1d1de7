package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/larder/pkg/types"
)

type findFlags struct {
	order  string
	limit  int
	offset int
	first  bool
}

func newFindCmd() *cobra.Command {
	var ff findFlags
	cmd := &cobra.Command{
		Use:   "find <type> [column=value...]",
		Short: "List entities matching column=value conditions",
		Long: `Find loads entities of the named type. Conditions are column=value pairs
ANDed together; values are parsed as JSON when possible.

Example:
  larder find group
  larder find group name=admins
  larder find user role=admin --order name:desc --limit 10
  larder find group id=3 --first`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFind(cmd, args, ff)
		},
	}
	cmd.Flags().StringVar(&ff.order, "order", "", "order by column[:asc|desc]")
	cmd.Flags().IntVar(&ff.limit, "limit", 0, "maximum number of entities")
	cmd.Flags().IntVar(&ff.offset, "offset", 0, "number of entities to skip")
	cmd.Flags().BoolVar(&ff.first, "first", false, "print only the first match as an object")
	return cmd
}

func runFind(cmd *cobra.Command, args []string, ff findFlags) error {
	conds, err := parseConditions(args[1:])
	if err != nil {
		return err
	}
	s, _, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	repo, err := s.Repository(args[0])
	if err != nil {
		return err
	}
	applyConditions(repo, conds)
	if ff.order != "" {
		col, dir, _ := strings.Cut(ff.order, ":")
		repo.OrderBy(col, dir)
	}
	if ff.limit > 0 {
		repo.Limit(ff.limit)
	}
	if ff.offset > 0 {
		repo.Offset(ff.offset)
	}

	if ff.first {
		e, err := repo.Find(cmd.Context())
		if err != nil {
			return err
		}
		if e.State() != types.StateLoaded {
			return userErrorf("no %s matches", args[0])
		}
		return writeJSON(cmd.OutOrStdout(), e.Data())
	}

	all, err := repo.FindAll(cmd.Context())
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), entityData(all))
}

func newCountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count <type> [column=value...]",
		Short: "Count entities matching column=value conditions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conds, err := parseConditions(args[1:])
			if err != nil {
				return err
			}
			s, _, err := openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			repo, err := s.Repository(args[0])
			if err != nil {
				return err
			}
			applyConditions(repo, conds)
			n, err := repo.CountAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}
