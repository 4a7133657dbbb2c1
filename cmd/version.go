package cmd

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Set through -ldflags "-X" by release builds.
var (
	version   = "dev"
	commit    = ""
	buildDate = ""
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show Greyhound version and build information",
	RunE:  runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// buildInfo is what `greyhound version` reports.
type buildInfo struct {
	Version   string
	Commit    string
	BuildDate string
	Module    string
	GoVersion string
}

// readBuildInfo fills gaps in the ldflags values from the module metadata
// embedded by `go build` / `go install`.
func readBuildInfo() buildInfo {
	bi := buildInfo{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return bi
	}
	bi.Module = info.Main.Path
	if info.GoVersion != "" {
		bi.GoVersion = info.GoVersion
	}
	if bi.Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		bi.Version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if bi.Commit == "" {
				bi.Commit = s.Value
			}
		case "vcs.time":
			if bi.BuildDate == "" {
				bi.BuildDate = s.Value
			}
		}
	}
	return bi
}

func runVersion(_ *cobra.Command, _ []string) error {
	bi := readBuildInfo()
	fmt.Printf("Version:    %s\n", bi.Version)
	fmt.Printf("Commit:     %s\n", emptyAsNA(bi.Commit))
	fmt.Printf("Build Date: %s\n", emptyAsNA(bi.BuildDate))
	fmt.Printf("Module:     %s\n", emptyAsNA(bi.Module))
	fmt.Printf("Go Version: %s\n", bi.GoVersion)
	fmt.Printf("OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
	return nil
}

func emptyAsNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}
