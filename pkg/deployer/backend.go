package deployer

import "context"

// ImageSpec describes a container image build from a source directory.
type ImageSpec struct {
	SourceDir string
	Tag       string
}

// ServiceSpec describes a managed service deployment. The resource profile
// is fixed: the platform only runs small chat services.
type ServiceSpec struct {
	Name           string
	Image          string
	Region         string
	ServiceAccount string
	EnvVars        map[string]string
}

// Backend is the narrow interface over the container build-and-deploy
// platform. The pipeline is written against it so orchestration can be
// tested with a fake instead of a live CLI.
type Backend interface {
	// Build submits a container image build. A non-nil error means the
	// build failed; there is no partial success.
	Build(ctx context.Context, spec ImageSpec) error

	// Deploy creates or updates the managed service and returns its public
	// URL when the deploy output carries one.
	Deploy(ctx context.Context, spec ServiceSpec) (string, error)

	// ServiceURL looks up the URL of an already-deployed service,
	// independent of any deploy output.
	ServiceURL(ctx context.Context, name string) (string, error)
}
