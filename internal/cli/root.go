// Package cli implements the larder command-line interface.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/larder/pkg/orm"
	"github.com/mesh-intelligence/larder/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	verbose   bool
}

var flags rootFlags

// NewRootCmd creates the top-level "larder" command with global flags and
// all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "larder",
		Short: "Store and query entities through a unit of work",
		Long: "Larder loads entity declarations from entities.yaml and reads and writes\n" +
			"them through repositories and a transactional unit of work.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "data directory (default: .larder-db)")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log SQL statements and flush progress")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(),
		newFindCmd(),
		newCountCmd(),
		newPersistCmd(),
		newRemoveCmd(),
		newExportCmd(),
		newImportCmd(),
	)
	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "larder:", err)
		os.Exit(exitCode(err))
	}
	os.Exit(exitSuccess)
}

// userError marks a failure caused by command input.
type userError struct{ err error }

func (e userError) Error() string { return e.err.Error() }
func (e userError) Unwrap() error { return e.err }

func userErrorf(format string, args ...any) error {
	return userError{fmt.Errorf(format, args...)}
}

// exitCode maps an error to a process exit code. Input, declaration, and
// validation problems are user errors; everything else is a system error.
func exitCode(err error) int {
	var ue userError
	switch {
	case err == nil:
		return exitSuccess
	case errors.As(err, &ue),
		errors.Is(err, types.ErrUnknownEntityType),
		errors.Is(err, types.ErrInvalidEntityType),
		errors.Is(err, types.ErrEntityValidation),
		errors.Is(err, types.ErrEntityNotPersistable),
		errors.Is(err, types.ErrBackendUnknown),
		errors.Is(err, types.ErrDSNRequired),
		errors.Is(err, orm.ErrUnknownRule),
		errors.Is(err, orm.ErrUnknownFilter):
		return exitUserError
	default:
		return exitSysError
	}
}
