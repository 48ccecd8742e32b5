package metastore

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	agentsv1 "github.com/flowerclub/agentforge/pkg/apis/agents/v1"
	bqclient "github.com/flowerclub/agentforge/pkg/bigquery"
)

const (
	AgentsTable         = "agents"
	DocumentsTable      = "agent_documents"
	DailyAnalyticsTable = "daily_analytics"
)

var agentsSchema = bigquery.Schema{
	{Name: "agent_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "agent_name", Type: bigquery.StringFieldType, Required: true},
	{Name: "agent_type", Type: bigquery.StringFieldType, Required: true},
	{Name: "specialization", Type: bigquery.StringFieldType, Required: true},
	{Name: "conversation_style", Type: bigquery.StringFieldType, Required: true},
	{Name: "status", Type: bigquery.StringFieldType, Required: true},
	{Name: "cloud_run_url", Type: bigquery.StringFieldType},
	{Name: "bigquery_dataset", Type: bigquery.StringFieldType},
	{Name: "created_at", Type: bigquery.TimestampFieldType, Required: true},
	{Name: "updated_at", Type: bigquery.TimestampFieldType, Required: true},
	{Name: "creator_email", Type: bigquery.StringFieldType},
	{Name: "prompt_template", Type: bigquery.StringFieldType},
	{Name: "description", Type: bigquery.StringFieldType},
	{Name: "claude_model", Type: bigquery.StringFieldType},
	{Name: "max_tokens", Type: bigquery.IntegerFieldType},
	{Name: "total_conversations", Type: bigquery.IntegerFieldType},
	{Name: "last_conversation_at", Type: bigquery.TimestampFieldType},
}

var documentsSchema = bigquery.Schema{
	{Name: "document_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "agent_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "document_name", Type: bigquery.StringFieldType, Required: true},
	{Name: "file_type", Type: bigquery.StringFieldType, Required: true},
	{Name: "file_size", Type: bigquery.IntegerFieldType},
	{Name: "storage_path", Type: bigquery.StringFieldType},
	{Name: "processed_content", Type: bigquery.StringFieldType},
	{Name: "uploaded_at", Type: bigquery.TimestampFieldType, Required: true},
	{Name: "processed_at", Type: bigquery.TimestampFieldType},
	{Name: "status", Type: bigquery.StringFieldType, Required: true},
}

var dailyAnalyticsSchema = bigquery.Schema{
	{Name: "agent_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "date", Type: bigquery.DateFieldType, Required: true},
	{Name: "total_conversations", Type: bigquery.IntegerFieldType},
	{Name: "total_messages", Type: bigquery.IntegerFieldType},
	{Name: "avg_response_time_ms", Type: bigquery.FloatFieldType},
	{Name: "error_count", Type: bigquery.IntegerFieldType},
	{Name: "uptime_percentage", Type: bigquery.FloatFieldType},
	{Name: "unique_users", Type: bigquery.IntegerFieldType},
}

// EnsureMetadata creates the central metadata dataset and its tables if they
// don't already exist. Safe to re-run.
func EnsureMetadata(ctx context.Context, client *bqclient.Client, location string) error {
	dataset := client.BQ.Dataset(client.Dataset)
	err := dataset.Create(ctx, &bigquery.DatasetMetadata{
		Location:    location,
		Description: "Central metadata for the agent platform",
	})
	if err != nil && !bqclient.IsAlreadyExists(err) {
		return errors.WithMessagef(err, "couldn't create dataset %s", client.Dataset)
	}
	log.WithField("dataset", client.Dataset).Info("metadata dataset ready")

	tables := map[string]bigquery.Schema{
		AgentsTable:         agentsSchema,
		DocumentsTable:      documentsSchema,
		DailyAnalyticsTable: dailyAnalyticsSchema,
	}
	for name, schema := range tables {
		err := dataset.Table(name).Create(ctx, &bigquery.TableMetadata{Schema: schema})
		if err != nil && !bqclient.IsAlreadyExists(err) {
			return errors.WithMessagef(err, "couldn't create table %s", name)
		}
		log.WithField("table", name).Info("metadata table ready")
	}

	return nil
}

// SeedAgent inserts an agent row only if the identifier is not already
// present. Used by init-metadata to register pre-existing deployments.
func SeedAgent(ctx context.Context, client *bqclient.Client, agent agentsv1.Agent) error {
	query := client.BQ.Query(fmt.Sprintf(`
		INSERT INTO %s
		(agent_id, agent_name, agent_type, specialization, conversation_style, status,
		 cloud_run_url, bigquery_dataset, created_at, updated_at, creator_email,
		 prompt_template, description, claude_model, max_tokens, total_conversations, last_conversation_at)
		SELECT
			@agent_id, @agent_name, @agent_type, @specialization, @conversation_style, @status,
			@cloud_run_url, @bigquery_dataset, CURRENT_TIMESTAMP(), CURRENT_TIMESTAMP(), @creator_email,
			@prompt_template, @description, @claude_model, @max_tokens, 0, CURRENT_TIMESTAMP()
		WHERE NOT EXISTS (
			SELECT 1 FROM %s WHERE agent_id = @agent_id
		)`,
		"`"+agentsTableID(client)+"`", "`"+agentsTableID(client)+"`"))

	query.Parameters = []bigquery.QueryParameter{
		{Name: "agent_id", Value: agent.AgentID},
		{Name: "agent_name", Value: agent.AgentName},
		{Name: "agent_type", Value: agent.AgentType},
		{Name: "specialization", Value: agent.Specialization},
		{Name: "conversation_style", Value: agent.ConversationStyle},
		{Name: "status", Value: agent.Status},
		{Name: "cloud_run_url", Value: agent.CloudRunURL.StringVal},
		{Name: "bigquery_dataset", Value: agent.BigQueryDataset.StringVal},
		{Name: "creator_email", Value: agent.CreatorEmail.StringVal},
		{Name: "prompt_template", Value: agent.PromptTemplate.StringVal},
		{Name: "description", Value: agent.Description.StringVal},
		{Name: "claude_model", Value: agent.ClaudeModel.StringVal},
		{Name: "max_tokens", Value: agent.MaxTokens.Int64},
	}

	job, err := query.Run(ctx)
	if err != nil {
		return err
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return err
	}
	return status.Err()
}

// agentsTableID returns the fully qualified agents table name for use in
// query text.
func agentsTableID(client *bqclient.Client) string {
	return fmt.Sprintf("%s.%s.%s", client.Project, client.Dataset, AgentsTable)
}

func documentsTableID(client *bqclient.Client) string {
	return fmt.Sprintf("%s.%s.%s", client.Project, client.Dataset, DocumentsTable)
}

func dailyAnalyticsTableID(client *bqclient.Client) string {
	return fmt.Sprintf("%s.%s.%s", client.Project, client.Dataset, DailyAnalyticsTable)
}
