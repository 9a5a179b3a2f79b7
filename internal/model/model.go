package model

import "time"

// ModelStatus is the current loading status of the model.
type ModelStatus string

const (
	// ModelStatusUnloaded indicates that loading has not started.
	ModelStatusUnloaded ModelStatus = "unloaded"

	// ModelStatusLoading indicates that the model is being loaded.
	ModelStatusLoading ModelStatus = "loading"

	// ModelStatusReady indicates that the model is loaded and accepts inference.
	ModelStatusReady ModelStatus = "ready"

	// ModelStatusLoadFailed indicates that loading failed. It is terminal.
	ModelStatusLoadFailed ModelStatus = "load_failed"
)

// Spec identifies what to load.
type Spec struct {
	ModelDir string `json:"model_dir"`
	Device   string `json:"device"`
	Provider string `json:"provider"`
}

// Snapshot is a consistent view of the model state.
type Snapshot struct {
	Spec
	LoadedAt *time.Time  `json:"loaded_at,omitempty"`
	Status   ModelStatus `json:"status"`
	Error    string      `json:"error,omitempty"`
}

// Ready reports whether the snapshot is in the ready state.
func (s Snapshot) Ready() bool {
	return s.Status == ModelStatusReady
}
