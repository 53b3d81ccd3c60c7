package nl2sql

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/koustreak/askdb/internal/errs"
)

var (
	fenceRe = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n?(.*?)```")
	labelRe = regexp.MustCompile(`(?i)^\s*(sql\s*query|sql|query)\s*:\s*`)
	// echoRe matches the start of a line that repeats the prompt's example
	// scaffolding; everything from there on is not part of the query.
	echoRe = regexp.MustCompile(`(?im)^\s*(question|result|response|example|your turn)\s*:`)
	// inlineRe finds a statement that starts mid-line after a lead-in such
	// as "Here is the query: SELECT ...". Keywords must be upper case unless
	// they follow a colon.
	inlineRe = regexp.MustCompile(`\b(SELECT|WITH|VALUES|EXPLAIN|SHOW|DESCRIBE|PRAGMA|INSERT|UPDATE|DELETE|CREATE|DROP|ALTER)\b|:\s*((?i:select|with))\b`)
)

// sqlStarts are the words a candidate statement may begin with. Text before
// the first line that starts with one of them is commentary.
var sqlStarts = []string{
	"SELECT", "WITH", "VALUES", "TABLE", "EXPLAIN", "SHOW", "DESCRIBE", "DESC",
	"PRAGMA", "INSERT", "UPDATE", "DELETE", "CREATE", "DROP", "ALTER",
}

// ExtractQuery pulls the candidate SQL statement out of raw model output:
// the body of the first markdown code fence if there is one, without a
// leading "SQL query:" label, cut before any echoed example scaffolding,
// and trimmed to the first statement including its semicolon. It fails
// with ErrKindExtractionFailed when nothing is left.
func ExtractQuery(raw string) (string, error) {
	text := raw
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	text = labelRe.ReplaceAllString(strings.TrimSpace(text), "")
	if loc := echoRe.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
	}
	text = skipCommentary(text)
	text = strings.TrimSpace(firstStatement(text))

	if text == "" || text == ";" {
		return "", errs.New(errs.ErrKindExtractionFailed, "model output contained no SQL query")
	}
	return text, nil
}

// sqlWords may lead a continuation line of a statement.
var sqlWords = map[string]bool{
	"FROM": true, "WHERE": true, "JOIN": true, "INNER": true, "LEFT": true,
	"RIGHT": true, "FULL": true, "OUTER": true, "CROSS": true, "ON": true,
	"AND": true, "OR": true, "NOT": true, "GROUP": true, "ORDER": true,
	"HAVING": true, "LIMIT": true, "OFFSET": true, "UNION": true,
	"INTERSECT": true, "EXCEPT": true, "CASE": true, "WHEN": true,
	"THEN": true, "ELSE": true, "END": true, "AS": true, "BY": true,
	"IN": true, "LIKE": true, "BETWEEN": true, "IS": true, "NULL": true,
	"DISTINCT": true, "ALL": true, "ASC": true, "USING": true,
}

func init() {
	for _, kw := range sqlStarts {
		sqlWords[kw] = true
	}
}

// skipCommentary drops the text before the first line that starts like
// SQL, or before a statement that starts mid-line after a lead-in. When
// there is neither, text is returned unchanged and the engine reports what
// is wrong with it.
func skipCommentary(text string) string {
	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		word := strings.ToUpper(leadingWord(line))
		for _, kw := range sqlStarts {
			if word == kw {
				return text[offset:]
			}
		}
		if m := inlineRe.FindStringSubmatchIndex(line); m != nil {
			start := m[2]
			if start < 0 {
				start = m[4]
			}
			return text[offset+start:]
		}
		offset += len(line)
	}
	return text
}

func leadingWord(s string) string {
	s = strings.TrimLeftFunc(s, func(r rune) bool { return unicode.IsSpace(r) || r == '(' })
	end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
	if end < 0 {
		return s
	}
	return s[:end]
}

// firstStatement returns text up to and including the first semicolon
// outside a quoted literal or identifier. A line that reads as prose ends
// the statement before that, and so does a blank line when the text has
// no semicolon at all.
func firstStatement(text string) string {
	end := terminator(text)
	offset := 0
	for i, line := range strings.SplitAfter(text, "\n") {
		if end >= 0 && offset > end {
			break
		}
		if i > 0 && (isProse(line) || (end < 0 && strings.TrimSpace(line) == "")) {
			return text[:offset]
		}
		offset += len(line)
	}
	if end >= 0 {
		return text[:end+1]
	}
	return text
}

// terminator is the index of the first semicolon outside a quoted literal
// or identifier, or -1.
func terminator(text string) int {
	var quote rune
	for i, r := range text {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"' || r == '`':
			quote = r
		case r == ';':
			return i
		}
	}
	return -1
}

// isProse reports whether an unindented line reads like a sentence: a
// capitalised word that is not SQL followed by a lower-case word, as in
// "This query counts all albums."
func isProse(line string) bool {
	if line == "" || line[0] == ' ' || line[0] == '\t' {
		return false
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return false
	}
	first := []rune(fields[0])
	if !unicode.IsUpper(first[0]) || sqlWords[strings.ToUpper(leadingWord(fields[0]))] {
		return false
	}
	if !strings.ContainsFunc(fields[0], unicode.IsLower) {
		return false
	}
	second := strings.TrimRight(fields[1], ".,:;!?")
	return second != "" && strings.IndexFunc(second, func(r rune) bool { return !unicode.IsLower(r) }) < 0
}
