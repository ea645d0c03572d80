package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripCodeFence(t *testing.T) {
	table := "| Line item | 2023 |\n|---|---|\n| Revenue | 10 |"

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain document", "  " + table + "\n", table},
		{"markdown fence", "```markdown\n" + table + "\n```", table},
		{"bare fence", "```\n" + table + "\n```", table},
		{"inner blocks kept", "```\na\n```\ntext\n```\nb\n```", "```\na\n```\ntext\n```\nb\n```"},
		{"too short", "``````", "``````"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFence(tt.input))
		})
	}
}
