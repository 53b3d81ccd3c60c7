package nl2sql

import (
	"testing"

	"github.com/koustreak/askdb/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractQuery(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"bare", "SELECT COUNT(*) FROM albums;", "SELECT COUNT(*) FROM albums;"},
		{"no semicolon", "  SELECT 1  \n", "SELECT 1"},
		{"label", "SQL query: SELECT COUNT(*) FROM albums;", "SELECT COUNT(*) FROM albums;"},
		{"fenced", "Here you go:\n```sql\nSELECT name FROM artists;\n```\nThanks", "SELECT name FROM artists;"},
		{"fence without language", "```\nSELECT 1;\n```", "SELECT 1;"},
		{"commentary first", "Sure! The query is:\nSELECT * FROM albums;", "SELECT * FROM albums;"},
		{"echoed examples", "SELECT COUNT(*) FROM albums;\nQuestion: How many customers?\nSQL query: SELECT 2;", "SELECT COUNT(*) FROM albums;"},
		{"echo without semicolon", "SELECT COUNT(*) FROM albums\nQuestion: next", "SELECT COUNT(*) FROM albums"},
		{"stacked", "SELECT 1; DROP TABLE albums;", "SELECT 1;"},
		{"semicolon in literal", "SELECT * FROM t WHERE a = 'x;y';", "SELECT * FROM t WHERE a = 'x;y';"},
		{"multiline", "WITH c AS (\n  SELECT 1 AS n\n)\nSELECT n FROM c;", "WITH c AS (\n  SELECT 1 AS n\n)\nSELECT n FROM c;"},
		{"misspelt keyword kept", "SELEKT * FROM albums;", "SELEKT * FROM albums;"},
		{"column named question", "SELECT question FROM faq;", "SELECT question FROM faq;"},
		{"trailing prose after blank line", "SELECT COUNT(*) FROM album\n\nThis query counts all albums.", "SELECT COUNT(*) FROM album"},
		{"trailing prose line", "SELECT COUNT(*) FROM album\nThis query counts all albums.", "SELECT COUNT(*) FROM album"},
		{"prose before semicolon", "SELECT 1\nThis one is easy; enjoy", "SELECT 1"},
		{"inline lead-in", "Sure! Here is the query: SELECT COUNT(*) FROM album;", "SELECT COUNT(*) FROM album;"},
		{"inline lower case after colon", "The query is: select name from artists", "select name from artists"},
		{"clauses without semicolon", "SELECT Name\nFROM artists\nWHERE ArtistId = 1", "SELECT Name\nFROM artists\nWHERE ArtistId = 1"},
		{"blank line inside terminated statement", "SELECT Name\n\nFROM artists;", "SELECT Name\n\nFROM artists;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractQuery(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractQuery_Nothing(t *testing.T) {
	for _, raw := range []string{"", "   \n", "```sql\n```", ";", "Question: how many?"} {
		_, err := ExtractQuery(raw)
		require.Error(t, err, "raw %q", raw)
		assert.Equal(t, errs.ErrKindExtractionFailed, errs.KindOf(err))
	}
}

func TestIsProse(t *testing.T) {
	assert.True(t, isProse("This query counts all albums."))
	assert.True(t, isProse("Note that albums are counted once."))
	assert.False(t, isProse("FROM artists"))
	assert.False(t, isProse("From artists where x = 1"))
	assert.False(t, isProse("  Name, Title"))
	assert.False(t, isProse("Name, Title"))
	assert.False(t, isProse(")"))
}
