package llm

import "time"

// ListModelsResponse is returned by GET /api/tags.
type ListModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// ModelInfo describes a model available locally.
type ModelInfo struct {
	Name       string       `json:"name"`
	Model      string       `json:"model"`
	ModifiedAt time.Time    `json:"modified_at"`
	Size       int64        `json:"size"` // Bytes on disk
	Digest     string       `json:"digest"`
	Details    ModelDetails `json:"details"`
}

// ModelDetails holds the model's format and quantization metadata.
type ModelDetails struct {
	ParentModel       string   `json:"parent_model,omitempty"`
	Format            string   `json:"format"`
	Family            string   `json:"family"`
	Families          []string `json:"families,omitempty"`
	ParameterSize     string   `json:"parameter_size"`
	QuantizationLevel string   `json:"quantization_level"`
}

// ListRunningModelsResponse is returned by GET /api/ps.
type ListRunningModelsResponse struct {
	Models []RunningModel `json:"models"`
}

// RunningModel describes a model currently loaded in memory.
type RunningModel struct {
	Name          string       `json:"name"`
	Model         string       `json:"model"`
	Size          int64        `json:"size"`
	Digest        string       `json:"digest"`
	Details       ModelDetails `json:"details"`
	ExpiresAt     time.Time    `json:"expires_at"`
	SizeVRAM      int64        `json:"size_vram"`
	ContextLength int          `json:"context_length,omitempty"`
}

// VersionResponse is returned by GET /api/version.
type VersionResponse struct {
	Version string `json:"version"`
}
