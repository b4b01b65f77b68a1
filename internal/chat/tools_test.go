package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTool(t *testing.T) {
	for _, name := range []string{"summarize", "extract-table", "generate-quiz", "show-workflow", "none"} {
		tool, err := ParseTool(name)
		require.NoError(t, err)
		assert.Equal(t, Tool(name), tool)
	}

	tool, err := ParseTool("")
	require.NoError(t, err)
	assert.Equal(t, ToolNone, tool)

	_, err = ParseTool("translate")
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestToolPanel_StartsEmpty(t *testing.T) {
	p := NewToolPanel()
	assert.Equal(t, ToolNone, p.Active())
	assert.Equal(t, "Select a tool above to see it in action.", p.Output().Hint)
}

func TestToolPanel_Select(t *testing.T) {
	p := NewToolPanel()

	out, err := p.Select(ToolSummarize)
	require.NoError(t, err)
	assert.Equal(t, ToolSummarize, p.Active())
	assert.Contains(t, out.Text, "Mitosis")

	out, err = p.Select(ToolExtractTable)
	require.NoError(t, err)
	assert.Equal(t, ToolExtractTable, p.Active())
	require.Len(t, out.Table, 4)
	assert.Equal(t, []string{"Oxygen", "O", "8"}, out.Table[2])
}

func TestToolPanel_ReselectKeepsActive(t *testing.T) {
	p := NewToolPanel()

	first, err := p.Select(ToolGenerateQuiz)
	require.NoError(t, err)
	second, err := p.Select(ToolGenerateQuiz)
	require.NoError(t, err)

	assert.Equal(t, ToolGenerateQuiz, p.Active())
	assert.Equal(t, first, second)
	assert.Len(t, second.Items, 3)
}

func TestToolPanel_NoneClears(t *testing.T) {
	p := NewToolPanel()
	_, err := p.Select(ToolShowWorkflow)
	require.NoError(t, err)
	assert.Equal(t, []string{"Evaporation", "Condensation", "Precipitation", "Collection"}, p.Output().Steps)

	_, err = p.Select(ToolNone)
	require.NoError(t, err)
	assert.Equal(t, ToolNone, p.Active())
}

func TestToolPanel_UnknownToolLeavesState(t *testing.T) {
	p := NewToolPanel()
	_, err := p.Select(ToolSummarize)
	require.NoError(t, err)

	_, err = p.Select(Tool("translate"))
	assert.ErrorIs(t, err, ErrUnknownTool)
	assert.Equal(t, ToolSummarize, p.Active())
}
