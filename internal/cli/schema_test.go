package cli

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoot(t *testing.T) *cobra.Command {
	t.Helper()
	root := &cobra.Command{Use: "docqad", Short: "root"}
	AddHelpJSONFlag(root)

	ingest := &cobra.Command{Use: "ingest <file>...", Short: "Ingest documents", RunE: func(*cobra.Command, []string) error { return nil }}
	ingest.Flags().String("source-id", "", "Stable document id")
	ingest.Flags().StringP("output", "o", "text", "Output format")
	require.NoError(t, ingest.MarkFlagRequired("source-id"))

	collection := &cobra.Command{Use: "collection", Short: "Manage the vector collection"}
	drop := &cobra.Command{Use: "drop", Short: "Drop", RunE: func(*cobra.Command, []string) error { return nil }}
	drop.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	collection.AddCommand(drop)

	hidden := &cobra.Command{Use: "debug", Hidden: true, RunE: func(*cobra.Command, []string) error { return nil }}

	root.AddCommand(ingest, collection, hidden)
	return root
}

func TestGenerateSchema(t *testing.T) {
	schema := GenerateSchema(newTestRoot(t))

	assert.Equal(t, "docqad", schema.Name)
	assert.Empty(t, schema.Flags, "help-json is not reported")

	names := make([]string, 0, len(schema.Subcommands))
	for _, sub := range schema.Subcommands {
		names = append(names, sub.Name)
	}
	assert.ElementsMatch(t, []string{"ingest", "collection"}, names)
}

func TestGenerateSchema_FlagDetails(t *testing.T) {
	root := newTestRoot(t)
	ingest, _, err := root.Find([]string{"ingest"})
	require.NoError(t, err)

	schema := GenerateSchema(ingest)
	require.Len(t, schema.Flags, 2)

	byName := map[string]FlagSchema{}
	for _, f := range schema.Flags {
		byName[f.Name] = f
	}
	assert.True(t, byName["source-id"].Required)
	assert.Equal(t, "string", byName["source-id"].Type)
	assert.False(t, byName["output"].Required)
	assert.Equal(t, "o", byName["output"].Shorthand)
	assert.Equal(t, "text", byName["output"].Default)
}

func TestFindTargetCommand(t *testing.T) {
	root := newTestRoot(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"root", nil, "docqad"},
		{"direct child", []string{"ingest"}, "ingest"},
		{"nested", []string{"collection", "drop"}, "drop"},
		{"leading flags skipped", []string{"--no-migrate", "collection", "drop"}, "drop"},
		{"unknown stops walk", []string{"collection", "nope"}, "collection"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, findTargetCommand(root, tt.args).Name())
		})
	}
}
