package flags

import (
	"github.com/spf13/pflag"

	"github.com/flowerclub/agentforge/pkg/claude"
)

// ClaudeFlags configure the LLM used for chat replies. The API key itself is
// never a flag: it is fetched from the secret store per request.
type ClaudeFlags struct {
	Model      string
	MaxTokens  int64
	SecretName string
}

func NewClaudeFlags() *ClaudeFlags {
	return &ClaudeFlags{}
}

func (f *ClaudeFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.Model, "claude-model", claude.DefaultModel, "Claude model used for chat replies")
	fs.Int64Var(&f.MaxTokens, "claude-max-tokens", claude.DefaultMaxTokens, "Maximum output tokens per reply")
	fs.StringVar(&f.SecretName, "claude-secret-name", "claude-api-key", "Secret Manager secret holding the Claude API key")
}
