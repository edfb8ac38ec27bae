package models

// EndpointResult holds the check result for one RPC URL.
type EndpointResult struct {
	URL       string `json:"url"`
	Status    string `json:"status"` // "ok" or "error"
	ChainID   int64  `json:"chain_id,omitempty"`
	Health    string `json:"health,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ChainResult holds check results for one chain.
type ChainResult struct {
	Chain     ChainID          `json:"chain"`
	Wallet    string           `json:"wallet,omitempty"`
	Endpoints []EndpointResult `json:"endpoints"`
	Healthy   bool             `json:"healthy"`
}

// FeedResult holds the check result for an HTTP data source.
type FeedResult struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

// TestReport holds the results of the configuration test.
type TestReport struct {
	ConfigPath      string        `json:"config_path"`
	ValidStructure  bool          `json:"valid_structure"`
	StructureErrors []string      `json:"structure_errors,omitempty"`
	CatalogEntries  int           `json:"catalog_entries"`
	Chains          []ChainResult `json:"chains,omitempty"`
	Feeds           []FeedResult  `json:"feeds,omitempty"`
	DryRun          bool          `json:"dry_run"`
	ConfigUpdated   bool          `json:"config_updated"`
	SaveError       string        `json:"save_error,omitempty"`
}
