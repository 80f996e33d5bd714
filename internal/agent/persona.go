package agent

// Persona defines an agent's identity and personality.
type Persona struct {
	Name   string `json:"name"`
	Age    int    `json:"age,omitempty"`
	Traits string `json:"traits"` // innate traits, e.g. "anxious, likes design"
	// Status is what the agent is currently doing, used in reaction prompts.
	Status       string `json:"status"`
	Backstory    string `json:"backstory"`
	SystemPrompt string `json:"system_prompt"`
}

// Status represents an agent's current activity.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusThinking   Status = "thinking"
	StatusReflecting Status = "reflecting"
)
