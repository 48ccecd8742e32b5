package flags

import (
	"context"

	"github.com/spf13/pflag"

	"github.com/flowerclub/agentforge/pkg/apis/cache"
	bqcachedclient "github.com/flowerclub/agentforge/pkg/bigquery"
)

// BigQueryFlags locate the central metadata dataset.
type BigQueryFlags struct {
	BigQueryProject string
	BigQueryDataset string
}

func NewBigQueryFlags() *BigQueryFlags {
	return &BigQueryFlags{}
}

func (f *BigQueryFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.BigQueryProject, "bigquery-project", "flower-ai-generator", "BigQuery project to use")
	fs.StringVar(&f.BigQueryDataset, "bigquery-dataset", "ai_generator_metadata", "Dataset holding the agent metadata tables")
}

func (f *BigQueryFlags) GetBigQueryClient(ctx context.Context, cacheClient cache.Cache, googleServiceAccountCredentialFile string) (*bqcachedclient.Client, error) {
	return bqcachedclient.New(ctx, googleServiceAccountCredentialFile, f.BigQueryProject, f.BigQueryDataset, cacheClient)
}
