package chat

import (
	"errors"
	"fmt"
	"sync"
)

type Tool string

const (
	ToolNone         Tool = "none"
	ToolSummarize    Tool = "summarize"
	ToolExtractTable Tool = "extract-table"
	ToolGenerateQuiz Tool = "generate-quiz"
	ToolShowWorkflow Tool = "show-workflow"
)

var ErrUnknownTool = errors.New("unknown tool")

// Tools lists the selectable tools in panel order.
var Tools = []Tool{ToolSummarize, ToolExtractTable, ToolGenerateQuiz, ToolShowWorkflow}

// ToolOutput is the canned view shown for a tool. Exactly one of the body
// fields is set, except for ToolNone which only carries a hint.
type ToolOutput struct {
	Tool  Tool       `json:"tool"`
	Title string     `json:"title,omitempty"`
	Text  string     `json:"text,omitempty"`
	Table [][]string `json:"table,omitempty"`
	Items []string   `json:"items,omitempty"`
	Steps []string   `json:"steps,omitempty"`
	Hint  string     `json:"hint,omitempty"`
}

func ParseTool(name string) (Tool, error) {
	t := Tool(name)
	if t == "" {
		return ToolNone, nil
	}
	if t == ToolNone {
		return t, nil
	}
	for _, known := range Tools {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTool, name)
}

// OutputFor returns the canned output of t.
func OutputFor(t Tool) (ToolOutput, error) {
	switch t {
	case ToolNone:
		return ToolOutput{Tool: t, Hint: "Select a tool above to see it in action."}, nil
	case ToolSummarize:
		return ToolOutput{
			Tool:  t,
			Title: "Summary of Mitosis",
			Text: "Mitosis is a process where a single cell divides into two identical daughter cells. " +
				"Stages: Prophase, Metaphase, Anaphase, Telophase.",
		}, nil
	case ToolExtractTable:
		return ToolOutput{
			Tool:  t,
			Title: "Extracted Table",
			Table: [][]string{
				{"Element", "Symbol", "Atomic #"},
				{"Hydrogen", "H", "1"},
				{"Oxygen", "O", "8"},
				{"Carbon", "C", "6"},
			},
		}, nil
	case ToolGenerateQuiz:
		return ToolOutput{
			Tool:  t,
			Title: "Quiz",
			Items: []string{
				"1. When did WWII start?",
				"2. Name two Allied Powers.",
				"3. What is the main function of mitochondria?",
			},
		}, nil
	case ToolShowWorkflow:
		return ToolOutput{
			Tool:  t,
			Title: "Water Cycle Workflow",
			Steps: []string{"Evaporation", "Condensation", "Precipitation", "Collection"},
		}, nil
	}
	return ToolOutput{}, fmt.Errorf("%w: %q", ErrUnknownTool, string(t))
}

// ToolPanel holds the single active tool. It starts at ToolNone; selecting
// the active tool again keeps it active, and only ToolNone clears it.
type ToolPanel struct {
	mu     sync.Mutex
	active Tool
}

func NewToolPanel() *ToolPanel {
	return &ToolPanel{active: ToolNone}
}

func (p *ToolPanel) Active() Tool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Select makes t the active tool and returns its output.
func (p *ToolPanel) Select(t Tool) (ToolOutput, error) {
	out, err := OutputFor(t)
	if err != nil {
		return ToolOutput{}, err
	}

	p.mu.Lock()
	p.active = t
	p.mu.Unlock()

	return out, nil
}

// Output returns the output of the active tool.
func (p *ToolPanel) Output() ToolOutput {
	out, _ := OutputFor(p.Active())
	return out
}
