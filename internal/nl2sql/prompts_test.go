package nl2sql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryPrompt(t *testing.T) {
	p := queryPrompt("PostgreSQL", "CREATE TABLE albums (id int)", "How many albums?")

	assert.True(t, strings.HasPrefix(p, "Below is the schema of a PostgreSQL database."))
	assert.Contains(t, p, "CREATE TABLE albums (id int)")
	assert.True(t, strings.HasSuffix(p, "Question: How many albums?\nSQL query:"))
}

func TestRepairPrompt(t *testing.T) {
	p := repairPrompt("no such table: album", "How many albums?", "SCHEMA")

	assert.Equal(t,
		"Previous query attempt failed with error: no such table: album.\n"+
			"Please try generating a different SQL query for the question: How many albums?.\n"+
			"Here is the database schema for reference: SCHEMA\n"+
			"SQL query:", p)
}

func TestAnswerPrompt(t *testing.T) {
	p := answerPrompt("SQLite", "SCHEMA", "How many albums?", "SELECT COUNT(*) FROM albums;", "[(4,)]")

	assert.Contains(t, p, "Below is the schema of an SQLite database.")
	assert.Contains(t, p, "Result: [(34,)]\nResponse: There are 34 albums in the database.")
	assert.True(t, strings.HasSuffix(p,
		"Question: How many albums?\nSQL query: SELECT COUNT(*) FROM albums;\nResult: [(4,)]\nResponse:"))
}

func TestArticle(t *testing.T) {
	assert.Equal(t, "an", article("SQLite"))
	assert.Equal(t, "a", article("PostgreSQL"))
	assert.Equal(t, "a", article("MySQL"))
	assert.Equal(t, "a", article("DuckDB"))
	assert.Equal(t, "an", article("Oracle"))
}
