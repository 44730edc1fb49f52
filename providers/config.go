package providers

import "time"

// ReplicateConfig configures the Replicate predictions client used for
// the two image stages.
type ReplicateConfig struct {
	APIToken          string        `json:"-" yaml:"api_token"`
	BaseURL           string        `json:"base_url" yaml:"base_url"`
	Timeout           time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	RequestsPerSecond float64       `json:"requests_per_second,omitempty" yaml:"requests_per_second,omitempty"`
}

// MeshyConfig configures the Meshy image-to-3D client used for the final
// stage.
type MeshyConfig struct {
	APIToken          string        `json:"-" yaml:"api_token"`
	BaseURL           string        `json:"base_url" yaml:"base_url"`
	Timeout           time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	RequestsPerSecond float64       `json:"requests_per_second,omitempty" yaml:"requests_per_second,omitempty"`
}
