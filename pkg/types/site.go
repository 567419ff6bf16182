package types

// Site describes a compute cluster jobs can be submitted to
type Site struct {
	Cluster           string   `json:"cluster"`
	Nodes             *int     `json:"nodes"`
	CPUsPerNode       int      `json:"cpus_per_node"`
	MemoryPerNodeGB   int      `json:"memory_per_node_gb"`
	MaxRuntimeMin     int      `json:"max_runtime_min"`
	Notes             []string `json:"notes"`
	Active            bool     `json:"active"`
	Available         bool     `json:"available"`
	UnavailableReason string   `json:"unavailable_reason,omitempty"`
}

// SitesResponse is the wire shape of the sites endpoint
type SitesResponse struct {
	Sites []Site `json:"sites"`
}
