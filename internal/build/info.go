package build

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	_ "embed"
)

//go:embed VERSION
var rawVersion []byte

// Build information.
var (
	Version   = ""
	Commit    = ""
	BuildTime = ""
	GoVersion = runtime.Version()
	Platform  = fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)
	StartTime = time.Now()
)

//nolint:gochecknoinits // init version.
func init() {
	// The version can be set by goreleaser. If not set, the VERSION file
	// serves local development and docker builds.
	if Version == "" {
		Version = strings.TrimSpace(string(rawVersion))
	}
}

// Info contains build information.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetBuildInfo renders the build information as a human-readable block.
func GetBuildInfo() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Version:    %s\n", Version))

	if Commit != "" {
		sb.WriteString(fmt.Sprintf("Commit:     %s\n", Commit))
	}

	if BuildTime != "" {
		sb.WriteString(fmt.Sprintf("Build Time: %s\n", BuildTime))
	}

	sb.WriteString(fmt.Sprintf("Go Version: %s\n", GoVersion))
	sb.WriteString(fmt.Sprintf("Platform:   %s\n", Platform))

	return sb.String()
}
