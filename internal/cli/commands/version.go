package commands

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/leapstack-labs/leapmetrics/pkg/adapter"
	"github.com/spf13/cobra"
)

// NewVersionCommand reports the build and the adapters compiled into it.
func NewVersionCommand(version string) *cobra.Command {
	var short bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the leapmetrics build",
		Long: `Print the leapmetrics release, the Go toolchain it was built with and the
connect.type values this binary can reflect.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			w := cmd.OutOrStdout()
			if short {
				_, _ = fmt.Fprintln(w, version)
				return
			}
			_, _ = fmt.Fprintf(w, "leapmetrics %s", version)
			if rev := vcsRevision(); rev != "" {
				_, _ = fmt.Fprintf(w, " (%s)", rev)
			}
			_, _ = fmt.Fprintf(w, "\ngo: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
			_, _ = fmt.Fprintf(w, "adapters: %s\n", strings.Join(adapter.ListAdapters(), ", "))
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "print the release only")
	return cmd
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 12 {
			return s.Value[:12]
		}
	}
	return ""
}
