package bigquery

import (
	"context"
	"errors"

	"cloud.google.com/go/bigquery"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/flowerclub/agentforge/pkg/apis/cache"
)

// Client wraps the BigQuery SDK client with the project/dataset coordinates
// for the central metadata dataset, plus an optional cache for read-heavy
// admin queries.
type Client struct {
	BQ      *bigquery.Client
	Cache   cache.Cache
	Project string
	Dataset string
}

func New(ctx context.Context, credentialFile, project, dataset string, c cache.Cache) (*Client, error) {
	var opts []option.ClientOption
	if credentialFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialFile))
	}
	bqc, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, err
	}

	return &Client{
		BQ:      bqc,
		Cache:   c,
		Project: project,
		Dataset: dataset,
	}, nil
}

// LoggedRead is a wrapper around the bigquery Read method that logs the query being executed
func LoggedRead(ctx context.Context, q *bigquery.Query) (*bigquery.RowIterator, error) {
	log.Debugf("Querying BQ with Parameters: %v\n%v", q.Parameters, q.QueryConfig.Q)
	return q.Read(ctx)
}

// IsAlreadyExists reports whether err is the BigQuery "duplicate" error
// returned when creating a dataset or table that is already present.
// Provisioning treats it as success so re-runs are safe.
func IsAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 409
	}
	return false
}
