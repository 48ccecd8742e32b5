// Package version holds build metadata stamped in via ldflags.
package version

// Values are overridden at build time:
//
//	-ldflags "-X github.com/flowerclub/agentforge/pkg/version.gitCommit=$(git rev-parse HEAD)"
var (
	gitCommit  = "unknown"
	gitVersion = "v0.0.0-unknown"
	buildDate  = "unknown"
)

type Info struct {
	GitCommit  string `json:"gitCommit"`
	GitVersion string `json:"gitVersion"`
	BuildDate  string `json:"buildDate"`
}

func Get() Info {
	return Info{
		GitCommit:  gitCommit,
		GitVersion: gitVersion,
		BuildDate:  buildDate,
	}
}
