package declarative

// AgentDefinition is a declarative persona specification: the identity,
// menu, and behavioral rules an orchestrator run instructs a remote LLM to
// adopt for the duration of a conversation. It is immutable once loaded —
// reload replaces the whole value, never mutates it in place.
//
// This struct is designed to be deserialized from YAML or JSON files.
type AgentDefinition struct {
	// ID uniquely identifies the agent within the loader (e.g. "analyst").
	ID string `yaml:"id" json:"id"`
	// Name is the display name rendered into the identity line.
	Name string `yaml:"name" json:"name"`
	// Title completes the identity line: "You are {name}, a {title}."
	Title string `yaml:"title" json:"title"`
	// Icon is optional; the loader only checks that ID is non-empty.
	Icon string `yaml:"icon,omitempty" json:"icon,omitempty"`

	// Persona is rendered verbatim into the prompt's persona block.
	Persona Persona `yaml:"persona" json:"persona"`

	// Menu is the ordered list of commands this agent exposes.
	Menu []MenuItem `yaml:"menu" json:"menu"`

	// ActivationSteps are the ordered steps the agent follows on activation,
	// rendered ahead of the rules section.
	ActivationSteps []string `yaml:"activation_steps" json:"activation_steps"`

	// CommunicationLanguage is this agent's default; a runtime config value
	// passed to the Prompt Builder may override it per call.
	CommunicationLanguage string `yaml:"communication_language" json:"communication_language"`

	// Version and Metadata are supplementary, carried from the teacher's
	// richer declarative format — additive, not required by any invariant.
	Version  string            `yaml:"version,omitempty" json:"version,omitempty"`
	Metadata map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// Persona is free-text identity and behavior, copied verbatim into the
// rendered system prompt.
type Persona struct {
	Role               string `yaml:"role" json:"role"`
	Identity           string `yaml:"identity" json:"identity"`
	CommunicationStyle string `yaml:"communication_style" json:"communication_style"`
	Principles         string `yaml:"principles" json:"principles"`
}

// MenuItem is one command this agent's persona exposes.
type MenuItem struct {
	Command     string `yaml:"command" json:"command"`
	Description string `yaml:"description" json:"description"`
	// Workflow optionally names a workflow document this command triggers.
	Workflow string `yaml:"workflow,omitempty" json:"workflow,omitempty"`
}
