package prompts

// PromptVersion represents a version identifier for prompts.
type PromptVersion string

const (
	// PromptV1 is the first version of prompts.
	PromptV1 PromptVersion = "1.0.0"
)

// Prompt IDs registered by this package.
const (
	CoordinatorSystem = "coordinator_system"
	CoordinatorFirst  = "coordinator_first_message"
	WorkerSystem      = "worker_system"
	WorkerFirst       = "worker_first_message"
)

// Prompt represents a versioned prompt with metadata.
type Prompt struct {
	ID          string        // Unique identifier (e.g., "coordinator_system")
	Version     PromptVersion // Version of this prompt
	Content     string        // The prompt text; may contain {{key}} placeholders
	Description string        // Human-readable description
	Tags        []string      // Tags for categorization (e.g., ["coordinator", "system"])
	Deprecated  bool          // True if this version is deprecated
}
