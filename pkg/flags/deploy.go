package flags

import (
	"fmt"

	"github.com/spf13/pflag"
)

// DeployFlags configure the agent provisioning pipeline.
type DeployFlags struct {
	ServiceAccount string
	CreatorEmail   string
	WorkDir        string
	BaseImage      string
}

func NewDeployFlags() *DeployFlags {
	return &DeployFlags{}
}

func (f *DeployFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.ServiceAccount, "deploy-service-account", f.ServiceAccount,
		"Service account the deployed agent services run as (default ai-generator-sa@<project>.iam.gserviceaccount.com)")
	fs.StringVar(&f.CreatorEmail, "creator-email", f.CreatorEmail, "Email recorded as the agent's owner")
	fs.StringVar(&f.WorkDir, "deploy-work-dir", f.WorkDir, "Directory where agent build contexts are materialized (default system temp)")
	fs.StringVar(&f.BaseImage, "agent-base-image", f.BaseImage,
		"Prebuilt service image agent deployments derive from (default gcr.io/<project>/agentforge:latest)")
}

// BaseImageName resolves the base image, deriving the conventional name from
// the project when none was given.
func (f *DeployFlags) BaseImageName(project string) string {
	if f.BaseImage != "" {
		return f.BaseImage
	}
	return fmt.Sprintf("gcr.io/%s/agentforge:latest", project)
}

// ServiceAccountName resolves the runtime service account, deriving the
// conventional name from the project when none was given.
func (f *DeployFlags) ServiceAccountName(project string) string {
	if f.ServiceAccount != "" {
		return f.ServiceAccount
	}
	return fmt.Sprintf("ai-generator-sa@%s.iam.gserviceaccount.com", project)
}
