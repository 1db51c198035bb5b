package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/haivivi/voysis/go/pkg/voysis"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the client version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "voysis %s (%s, %s/%s)\n", voysis.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}
