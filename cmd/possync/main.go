// Command possync runs the offline-first POS sync core: the device daemon,
// the document server it syncs with, and catalog, sale and report commands
// against the local database.
package main

import (
	"os"
)

func main() {
	cmd, opts := newRootCommand()
	if err := cmd.Execute(); err != nil {
		newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr()).Error(err)
		os.Exit(GetExitCode(err))
	}
}
