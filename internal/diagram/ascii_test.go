package diagram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderASCII(t *testing.T) {
	output := RenderASCII(Build("Orders", sampleGraph()))

	assert.Contains(t, output, "=== Orders ===")
	for _, ch := range []string{"┌", "┐", "└", "┘", "│", "─", "▼"} {
		assert.Contains(t, output, ch)
	}

	assert.Contains(t, output, "Start")
	assert.Contains(t, output, "Fetch")
	assert.Contains(t, output, "[OK]")
	assert.Contains(t, output, "[FAIL]")
	assert.Contains(t, output, "(disabled)")

	assert.Contains(t, output, "--- group Fetch stage ---\n  Fetch (action) [OK]\n")
}

func TestRenderASCIILevelsInOrder(t *testing.T) {
	output := RenderASCII(Build("", sampleGraph()))

	start := strings.Index(output, "Start")
	fetch := strings.Index(output, "Fetch")
	check := strings.Index(output, "Check")
	wait := strings.Index(output, "Wait")
	assert.True(t, start < fetch && fetch < check && check < wait, output)
}

func TestMakeBoxPadsToWidestLine(t *testing.T) {
	box := makeBox(&Node{ID: "a", Label: "ab", Disabled: true})

	assert.Equal(t, len([]rune("(disabled)"))+4, box.width)
	assert.Len(t, box.lines, 4)
	assert.Equal(t, "│ ab         │", box.lines[1])
}
