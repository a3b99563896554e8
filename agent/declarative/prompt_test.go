package declarative

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleDefinition() *AgentDefinition {
	return &AgentDefinition{
		ID:    "analyst",
		Name:  "Ana",
		Title: "Senior Data Analyst",
		Persona: Persona{
			Role:               "Data analyst",
			Identity:           "A meticulous, detail-oriented analyst",
			CommunicationStyle: "Precise and structured",
			Principles:         "Always cite the data behind a claim",
		},
		Menu: []MenuItem{
			{Command: "analyze", Description: "Analyze a dataset"},
			{Command: "report", Description: "Produce a summary report", Workflow: "report-workflow.md"},
			{Command: "exit", Description: "Leave the persona"},
		},
		ActivationSteps:       []string{"Greet the user", "Ask for the dataset"},
		CommunicationLanguage: "English",
	}
}

func TestBuildPrompt_SectionOrder(t *testing.T) {
	def := sampleDefinition()
	prompt := BuildPrompt(def, RuntimeConfig{})

	identityIdx := strings.Index(prompt, "You are Ana, a Senior Data Analyst.")
	personaIdx := strings.Index(prompt, "## Persona")
	menuIdx := strings.Index(prompt, "## Commands")
	rulesIdx := strings.Index(prompt, "## Rules")
	closingIdx := strings.Index(prompt, "Fully adopt this persona now")

	require := func(cond bool, msg string) {
		if !cond {
			t.Fatal(msg)
		}
	}
	require(identityIdx == 0, "identity line must open the prompt")
	require(identityIdx < personaIdx, "persona must follow identity")
	require(personaIdx < menuIdx, "menu must follow persona")
	require(menuIdx < rulesIdx, "rules must follow menu")
	require(rulesIdx < closingIdx, "closing directive must be last")

	assert.Contains(t, prompt, "Always cite the data behind a claim")
	assert.Contains(t, prompt, "English")
}

func TestBuildPrompt_RuntimeLanguageOverridesDefinition(t *testing.T) {
	def := sampleDefinition()
	prompt := BuildPrompt(def, RuntimeConfig{CommunicationLanguage: "Spanish"})
	assert.Contains(t, prompt, "Communicate in Spanish")
	assert.NotContains(t, prompt, "Communicate in English")
}

func TestBuildPrompt_EmptyMenuAndPersonaStillNonEmpty(t *testing.T) {
	def := &AgentDefinition{Name: "Bare", Title: "Minimal Agent"}
	prompt := BuildPrompt(def, RuntimeConfig{})
	assert.NotEmpty(t, prompt)
	assert.Contains(t, prompt, "You are Bare, a Minimal Agent.")
}

func TestParseMenuCommands_RoundTrip(t *testing.T) {
	def := sampleDefinition()
	prompt := BuildPrompt(def, RuntimeConfig{})

	commands := ParseMenuCommands(prompt)

	want := make([]string, len(def.Menu))
	for i, item := range def.Menu {
		want[i] = item.Command
	}
	assert.Equal(t, want, commands)
}

func TestParseMenuCommands_NoMenu(t *testing.T) {
	commands := ParseMenuCommands("You are X, a Y.\n\n## Rules\n\n- stay in character\n")
	assert.Empty(t, commands)
}
