package nl2sql

import (
	"strings"
	"text/template"
)

var promptFuncs = template.FuncMap{"article": article}

// article picks the indefinite article for an engine name as it is
// usually read aloud: "an SQLite", "a PostgreSQL", "a MySQL".
func article(dialect string) string {
	if strings.HasPrefix(dialect, "SQL") {
		return "an"
	}
	if dialect != "" && strings.ContainsRune("AEIOUaeiou", rune(dialect[0])) {
		return "an"
	}
	return "a"
}

var queryTmpl = template.Must(template.New("query").Funcs(promptFuncs).Parse(
	`Below is the schema of {{article .Dialect}} {{.Dialect}} database. Read the schema carefully, noting the table and column names.
Please answer the user's question by providing only the SQL query.

{{.Schema}}

Please provide the SQL query and nothing else.

Example:
Question: How many albums are in the database?
SQL query: SELECT COUNT(*) FROM album;
Question: How many customers are from Brazil?
SQL query: SELECT COUNT(*) FROM customer WHERE country='Brazil';

Your turn:
Question: {{.Question}}
SQL query:`))

var repairTmpl = template.Must(template.New("repair").Parse(
	`Previous query attempt failed with error: {{.Reason}}.
Please try generating a different SQL query for the question: {{.Question}}.
Here is the database schema for reference: {{.Schema}}
SQL query:`))

var answerTmpl = template.Must(template.New("answer").Funcs(promptFuncs).Parse(
	`Below is the schema of {{article .Dialect}} {{.Dialect}} database. Read the schema carefully, noting the table and column names.
Write a response in natural language based on the conversation and result.

{{.Schema}}

Examples:
Question: How many albums are in the database?
SQL query: SELECT COUNT(*) FROM album;
Result: [(34,)]
Response: There are 34 albums in the database.

Question: How many users are in the database?
SQL query: SELECT COUNT(*) FROM customer;
Result: [(59,)]
Response: There are 59 users in the database.

Question: How many users from India are in the database?
SQL query: SELECT COUNT(*) FROM customer WHERE country='India';
Result: [(4,)]
Response: There are 4 users from India in the database.

Your turn to write a response in natural language:
Question: {{.Question}}
SQL query: {{.Query}}
Result: {{.Result}}
Response:`))

type promptData struct {
	Dialect  string
	Schema   string
	Question string
	Reason   string
	Query    string
	Result   string
}

func render(t *template.Template, data promptData) string {
	var sb strings.Builder
	// The templates are static and promptData has every field they use.
	if err := t.Execute(&sb, data); err != nil {
		panic(err)
	}
	return sb.String()
}

func queryPrompt(dialect, schema, question string) string {
	return render(queryTmpl, promptData{Dialect: dialect, Schema: schema, Question: question})
}

func repairPrompt(reason, question, schema string) string {
	return render(repairTmpl, promptData{Reason: reason, Question: question, Schema: schema})
}

func answerPrompt(dialect, schema, question, query, result string) string {
	return render(answerTmpl, promptData{
		Dialect:  dialect,
		Schema:   schema,
		Question: question,
		Query:    query,
		Result:   result,
	})
}
