// Package version produces versioning information based on flags passed at
// compile time, e.g.
//
//	go build -X github.com/umbra-privacy/umbra/version.Version=1.0 \
//	 -X github.com/umbra-privacy/umbra/version.Commit=f0f7b7dab7e36c20b757cebce0e8f4fc5b95de60
package version

import (
	"fmt"
	"runtime"
)

var (
	// application's version string
	Version = ""
	// commit
	Commit = ""
)

// Info defines the application version information.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	GitCommit string `json:"commit" yaml:"commit"`
	GoVersion string `json:"go_version" yaml:"go_version"`
}

func NewInfo() Info {
	return Info{
		Version:   Version,
		GitCommit: Commit,
		GoVersion: fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	}
}

func (vi Info) String() string {
	return fmt.Sprintf(`umbra: %s
git commit: %s
go version: %s
`,
		vi.Version, vi.GitCommit, vi.GoVersion)
}
