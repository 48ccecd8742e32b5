package flags

import (
	"os"

	"github.com/spf13/pflag"

	"github.com/flowerclub/agentforge/pkg/lookup"
)

// CustomerAPIFlags configure the external customer data API used for chat
// enrichment.
type CustomerAPIFlags struct {
	BaseURL string
	APIKey  string
}

func NewCustomerAPIFlags() *CustomerAPIFlags {
	return &CustomerAPIFlags{
		BaseURL: os.Getenv("FLOWER_API_URL"),
		APIKey:  os.Getenv("FLOWER_API_KEY"),
	}
}

func (f *CustomerAPIFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.BaseURL, "customer-api-url", f.BaseURL, "Base URL of the customer data API")
	fs.StringVar(&f.APIKey, "customer-api-key", f.APIKey, "Bearer credential for the customer data API")
}

// GetDispatcher returns a lookup client, or nil when no API is configured so
// chat replies simply skip enrichment.
func (f *CustomerAPIFlags) GetDispatcher() lookup.Dispatcher {
	if f.BaseURL == "" {
		return nil
	}
	return lookup.NewClient(f.BaseURL, f.APIKey)
}
