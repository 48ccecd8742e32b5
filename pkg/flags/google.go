package flags

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/storage"
	"github.com/spf13/pflag"
	"google.golang.org/api/option"
)

// GoogleCloudFlags contain configuration information for Google cloud-related services.
type GoogleCloudFlags struct {
	ServiceAccountCredentialFile string
	Region                       string
	StorageBucket                string
}

func NewGoogleCloudFlags() *GoogleCloudFlags {
	return &GoogleCloudFlags{
		ServiceAccountCredentialFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		Region:                       "southamerica-east1",
	}
}

func (f *GoogleCloudFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.ServiceAccountCredentialFile,
		"google-service-account-credential-file",
		f.ServiceAccountCredentialFile,
		"location of a credential file described by https://cloud.google.com/docs/authentication/production")

	fs.StringVar(&f.Region, "region", f.Region, "Cloud region for datasets and deployed services")

	fs.StringVar(&f.StorageBucket, "google-storage-bucket", f.StorageBucket,
		"GCS bucket for uploaded agent documents (default <project>-agents-docs)")
}

// BucketName resolves the document bucket, deriving the conventional name
// from the project when none was given.
func (f *GoogleCloudFlags) BucketName(project string) string {
	if f.StorageBucket != "" {
		return f.StorageBucket
	}
	return fmt.Sprintf("%s-agents-docs", project)
}

func (f *GoogleCloudFlags) GetStorageClient(ctx context.Context) (*storage.Client, error) {
	var opts []option.ClientOption
	if f.ServiceAccountCredentialFile != "" {
		opts = append(opts, option.WithCredentialsFile(f.ServiceAccountCredentialFile))
	}
	return storage.NewClient(ctx, opts...)
}
