// Package v1 holds the row and request types shared between the metadata
// store, the deployer, and the HTTP servers.
package v1

import (
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
)

// Agent lifecycle states. An agent starts out "creating" and only becomes
// "active" once its service URL has been discovered.
const (
	StatusCreating = "creating"
	StatusActive   = "active"
	StatusError    = "error"
)

// Agent is one row in the central agents table.
type Agent struct {
	AgentID            string                 `bigquery:"agent_id" json:"agent_id"`
	AgentName          string                 `bigquery:"agent_name" json:"agent_name"`
	AgentType          string                 `bigquery:"agent_type" json:"agent_type"`
	Specialization     string                 `bigquery:"specialization" json:"specialization"`
	ConversationStyle  string                 `bigquery:"conversation_style" json:"conversation_style"`
	Status             string                 `bigquery:"status" json:"status"`
	CloudRunURL        bigquery.NullString    `bigquery:"cloud_run_url" json:"cloud_run_url"`
	BigQueryDataset    bigquery.NullString    `bigquery:"bigquery_dataset" json:"bigquery_dataset"`
	CreatedAt          time.Time              `bigquery:"created_at" json:"created_at"`
	UpdatedAt          time.Time              `bigquery:"updated_at" json:"updated_at"`
	CreatorEmail       bigquery.NullString    `bigquery:"creator_email" json:"creator_email"`
	PromptTemplate     bigquery.NullString    `bigquery:"prompt_template" json:"prompt_template"`
	Description        bigquery.NullString    `bigquery:"description" json:"description"`
	ClaudeModel        bigquery.NullString    `bigquery:"claude_model" json:"claude_model"`
	MaxTokens          bigquery.NullInt64     `bigquery:"max_tokens" json:"max_tokens"`
	TotalConversations bigquery.NullInt64     `bigquery:"total_conversations" json:"total_conversations"`
	LastConversationAt bigquery.NullTimestamp `bigquery:"last_conversation_at" json:"last_conversation_at"`
}

// Document is one row in the agent_documents table.
type Document struct {
	DocumentID       string                 `bigquery:"document_id" json:"document_id"`
	AgentID          string                 `bigquery:"agent_id" json:"agent_id"`
	DocumentName     string                 `bigquery:"document_name" json:"document_name"`
	FileType         string                 `bigquery:"file_type" json:"file_type"`
	FileSize         bigquery.NullInt64     `bigquery:"file_size" json:"file_size"`
	StoragePath      bigquery.NullString    `bigquery:"storage_path" json:"storage_path"`
	ProcessedContent bigquery.NullString    `bigquery:"processed_content" json:"processed_content"`
	UploadedAt       time.Time              `bigquery:"uploaded_at" json:"uploaded_at"`
	ProcessedAt      bigquery.NullTimestamp `bigquery:"processed_at" json:"processed_at"`
	Status           string                 `bigquery:"status" json:"status"`
}

// Message is one chat turn in a per-agent messages table. Append-only.
type Message struct {
	MessageID      string    `bigquery:"message_id" json:"message_id"`
	ConversationID string    `bigquery:"conversation_id" json:"conversation_id"`
	Role           string    `bigquery:"role" json:"role"`
	Content        string    `bigquery:"content" json:"content"`
	Timestamp      time.Time `bigquery:"timestamp" json:"timestamp"`
	TokensUsed     int64     `bigquery:"tokens_used" json:"tokens_used"`
}

// Conversation is one row in a per-agent conversations table.
type Conversation struct {
	ConversationID string                 `bigquery:"conversation_id" json:"conversation_id"`
	UserID         bigquery.NullString    `bigquery:"user_id" json:"user_id"`
	StartedAt      time.Time              `bigquery:"started_at" json:"started_at"`
	EndedAt        bigquery.NullTimestamp `bigquery:"ended_at" json:"ended_at"`
	Status         bigquery.NullString    `bigquery:"status" json:"status"`
	MessageCount   bigquery.NullInt64     `bigquery:"message_count" json:"message_count"`
}

// DailyAnalytics is one row per (agent, date) in the daily_analytics table.
type DailyAnalytics struct {
	AgentID            string                `bigquery:"agent_id" json:"agent_id"`
	Date               civil.Date            `bigquery:"date" json:"date"`
	TotalConversations bigquery.NullInt64    `bigquery:"total_conversations" json:"total_conversations"`
	TotalMessages      bigquery.NullInt64    `bigquery:"total_messages" json:"total_messages"`
	AvgResponseTimeMS  bigquery.NullFloat64  `bigquery:"avg_response_time_ms" json:"avg_response_time_ms"`
	ErrorCount         bigquery.NullInt64    `bigquery:"error_count" json:"error_count"`
	UptimePercentage   bigquery.NullFloat64  `bigquery:"uptime_percentage" json:"uptime_percentage"`
	UniqueUsers        bigquery.NullInt64    `bigquery:"unique_users" json:"unique_users"`
}

// AgentConfig is the request payload for creating a new agent.
type AgentConfig struct {
	Name              string `json:"name"`
	Type              string `json:"type"`
	Specialization    string `json:"specialization"`
	ConversationStyle string `json:"conversation_style"`
	SystemPrompt      string `json:"system_prompt"`
	Description       string `json:"description"`
}
