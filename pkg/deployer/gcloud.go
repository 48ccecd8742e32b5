package deployer

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

var serviceURLPattern = regexp.MustCompile(`https://[^\s]+\.run\.app`)

// GCloudBackend shells out to the gcloud CLI for builds and deploys. Exit
// code zero is the only success signal; stderr is carried in the error.
type GCloudBackend struct {
	Project string
	Region  string

	// runner is swapped in tests to avoid invoking the real CLI.
	runner func(ctx context.Context, args ...string) (string, error)
}

func NewGCloudBackend(project, region string) *GCloudBackend {
	b := &GCloudBackend{Project: project, Region: region}
	b.runner = b.run
	return b
}

func (b *GCloudBackend) run(ctx context.Context, args ...string) (string, error) {
	log.WithField("args", strings.Join(args, " ")).Debug("running gcloud")
	cmd := exec.CommandContext(ctx, "gcloud", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", errors.WithMessagef(err, "gcloud %s failed: %s", args[0], strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func (b *GCloudBackend) Build(ctx context.Context, spec ImageSpec) error {
	_, err := b.runner(ctx,
		"builds", "submit",
		"--tag", spec.Tag,
		"--project", b.Project,
		spec.SourceDir,
	)
	return err
}

func (b *GCloudBackend) Deploy(ctx context.Context, spec ServiceSpec) (string, error) {
	args := []string{
		"run", "deploy", spec.Name,
		"--image", spec.Image,
		"--platform", "managed",
		"--region", spec.Region,
		"--allow-unauthenticated",
		"--memory", "1Gi",
		"--cpu", "1",
		"--timeout", "300s",
		"--project", b.Project,
	}
	if spec.ServiceAccount != "" {
		args = append(args, "--service-account", spec.ServiceAccount)
	}
	if len(spec.EnvVars) > 0 {
		keys := make([]string, 0, len(spec.EnvVars))
		for k := range spec.EnvVars {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, fmt.Sprintf("%s=%s", k, spec.EnvVars[k]))
		}
		args = append(args, "--set-env-vars", strings.Join(pairs, ","))
	}

	out, err := b.runner(ctx, args...)
	if err != nil {
		return "", err
	}

	return ExtractServiceURL(out), nil
}

// ServiceURL queries the deployed service directly, falling back to listing
// all services in the region and matching by name.
func (b *GCloudBackend) ServiceURL(ctx context.Context, name string) (string, error) {
	region := b.Region

	out, err := b.runner(ctx,
		"run", "services", "describe", name,
		"--region", region,
		"--format", "value(status.url)",
		"--project", b.Project,
	)
	if err == nil {
		if url := strings.TrimSpace(out); strings.HasPrefix(url, "https://") {
			return url, nil
		}
	}

	out, err = b.runner(ctx,
		"run", "services", "list",
		"--region", region,
		"--format", "json",
		"--project", b.Project,
	)
	if err != nil {
		return "", err
	}
	if url := FindServiceURLInList(out, name); url != "" {
		return url, nil
	}

	return "", fmt.Errorf("no URL found for service %s", name)
}

// ExtractServiceURL pulls the first *.run.app URL out of deploy output.
func ExtractServiceURL(out string) string {
	return serviceURLPattern.FindString(out)
}

// FindServiceURLInList parses `gcloud run services list --format json`
// output and returns the status URL of the named service.
func FindServiceURLInList(listJSON, name string) string {
	var url string
	gjson.Parse(listJSON).ForEach(func(_, svc gjson.Result) bool {
		if svc.Get("metadata.name").String() == name {
			url = svc.Get("status.url").String()
			return false
		}
		return true
	})
	return url
}
