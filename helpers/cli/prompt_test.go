package cli

import (
	"strings"
	"testing"

	"github.com/c-bata/go-prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLines(t *testing.T) {
	t.Parallel()

	var lines []string
	err := RunLines(strings.NewReader("r all\n\n  pres  \r\ndiscon"), func(line string) {
		lines = append(lines, line)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"r all", "pres", "discon"}, lines)
}

func TestCompleter(t *testing.T) {
	t.Parallel()

	complete := Completer([]prompt.Suggest{
		{Text: "r all", Description: "request reading"},
		{Text: "discon", Description: "end session"},
	})
	buf := prompt.NewBuffer()
	buf.InsertText("dis", false, true)
	got := complete(*buf.Document())
	require.Len(t, got, 1)
	assert.Equal(t, "discon", got[0].Text)
}
