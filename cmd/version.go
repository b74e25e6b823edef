package cmd

import (
	"fmt"
	"io"
	"runtime"
)

// Set at build time with -ldflags "-X kotoba/cmd.Version=...".
var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

func versionText() string {
	return fmt.Sprintf("kotoba %s (commit %s, built %s, %s/%s)", Version, Commit, BuildTime, runtime.GOOS, runtime.GOARCH)
}

func printVersion(w io.Writer) {
	fmt.Fprintln(w, versionText())
}
