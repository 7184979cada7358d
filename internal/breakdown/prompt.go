package breakdown

import (
	"bytes"
	"text/template"

	embedprompts "github.com/primowaterSFMC/sqrly/embed/prompts"
)

var promptTemplate = template.Must(template.New("breakdown").Parse(embedprompts.Breakdown))

// PromptData holds the values rendered into the breakdown prompt.
type PromptData struct {
	Title            string
	Description      string
	UserEnergy       int
	AvailableMinutes int
	MaxSubtasks      int
	Style            string
}

// RenderPrompt renders the breakdown prompt for one request.
func RenderPrompt(data PromptData) (string, error) {
	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
