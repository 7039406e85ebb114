package tui

import (
	"bytes"
	"testing"
	"time"

	"github.com/aretw0/toolbroker/pkg/domain"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
)

func views(now time.Time) []domain.ToolView {
	seen := now.Add(-90 * time.Second)
	return []domain.ToolView{
		{ToolDefinition: domain.ToolDefinition{Name: "echo", Description: "Echo | text"}, Online: true, OwnerID: "p1", LastSeen: &seen},
		{ToolDefinition: domain.ToolDefinition{Name: "sum"}, OwnerID: "p2"},
		{ToolDefinition: domain.ToolDefinition{Name: "off"}, Online: true, OwnerID: "p1", Disabled: true, LastSeen: &seen},
	}
}

func TestStatusMarkdown(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	md := StatusMarkdown(views(now), now)

	assert.Contains(t, md, "| `echo` | p1 | online | 1m30s ago | Echo \\| text |")
	assert.Contains(t, md, "| `sum` | p2 | offline | never | - |")
	assert.Contains(t, md, "| `off` | p1 | disabled |")
}

func TestStatusMarkdown_Empty(t *testing.T) {
	assert.Contains(t, StatusMarkdown(nil, time.Now()), "No tools registered")
}

func TestSummary(t *testing.T) {
	got := Summary(termenv.Ascii, views(time.Now()))
	assert.Equal(t, "● 1 online  ○ 1 offline  ◌ 1 disabled", got)
}

func TestNewRenderer_PassThroughWhenNotATerminal(t *testing.T) {
	var buf bytes.Buffer
	render := NewRenderer(&buf)
	out, err := render("# Title\n")
	assert.NoError(t, err)
	assert.Equal(t, "# Title\n", out)
	assert.False(t, IsTerminal(&buf))
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "1.2.3")
	assert.Contains(t, buf.String(), "v1.2.3")
}
