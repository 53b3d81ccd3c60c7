package database

import (
	"slices"
	"strings"
	"unicode"
)

// writeKeywords lead statements that modify data, schema or session
// state. Engines still enforce read-only at the session level; the guard
// turns the obvious cases into a clear error before a round trip. Words
// that are neither here nor SQL at all (a misspelt SELECT) are left to the
// engine so its syntax error reaches the caller.
var writeKeywords = map[string]bool{
	"INSERT":     true,
	"UPDATE":     true,
	"DELETE":     true,
	"REPLACE":    true,
	"MERGE":      true,
	"UPSERT":     true,
	"CREATE":     true,
	"DROP":       true,
	"ALTER":      true,
	"TRUNCATE":   true,
	"RENAME":     true,
	"GRANT":      true,
	"REVOKE":     true,
	"ATTACH":     true,
	"DETACH":     true,
	"PRAGMA":     true,
	"VACUUM":     true,
	"REINDEX":    true,
	"ANALYZE":    true,
	"COPY":       true,
	"CALL":       true,
	"EXEC":       true,
	"EXECUTE":    true,
	"SET":        true,
	"RESET":      true,
	"BEGIN":      true,
	"START":      true,
	"COMMIT":     true,
	"ROLLBACK":   true,
	"SAVEPOINT":  true,
	"LOCK":       true,
	"INSTALL":    true,
	"LOAD":       true,
	"EXPORT":     true,
	"IMPORT":     true,
	"CHECKPOINT": true,
}

// CheckReadOnly rejects stacked statements and statements that lead with a
// write keyword. A trailing semicolon is allowed.
func CheckReadOnly(sql string) error {
	body := stripComments(sql)
	stmts := splitStatements(body)
	if len(stmts) == 0 {
		return errQuery("empty statement", nil)
	}
	if len(stmts) > 1 {
		return errReadOnly("only a single statement may be executed")
	}
	kw := strings.ToUpper(firstWord(stmts[0]))
	if writeKeywords[kw] {
		return errReadOnly("statement " + kw + " is not allowed on a read-only session")
	}
	return nil
}

// CheckScript rejects a script in which any statement leads with one of
// keywords (upper case).
func CheckScript(script string, keywords ...string) error {
	for _, stmt := range splitStatements(stripComments(script)) {
		kw := strings.ToUpper(firstWord(stmt))
		if slices.Contains(keywords, kw) {
			return errReadOnly("statement " + kw + " is not allowed in a script")
		}
	}
	return nil
}

func firstWord(s string) string {
	s = strings.TrimLeftFunc(s, func(r rune) bool { return unicode.IsSpace(r) || r == '(' })
	end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
	if end < 0 {
		return s
	}
	return s[:end]
}

// stripComments removes -- line comments and /* block */ comments that
// are outside string literals.
func stripComments(sql string) string {
	var sb strings.Builder
	var quote rune
	runes := []rune(sql)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if quote != 0 {
			sb.WriteRune(r)
			if r == quote {
				quote = 0
			}
			continue
		}
		switch {
		case r == '\'' || r == '"' || r == '`':
			quote = r
			sb.WriteRune(r)
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			sb.WriteRune('\n')
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			i += 2
			for i+1 < len(runes) && !(runes[i] == '*' && runes[i+1] == '/') {
				i++
			}
			i++
			sb.WriteRune(' ')
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// splitStatements splits on semicolons outside string literals and drops
// blank statements.
func splitStatements(sql string) []string {
	var stmts []string
	var cur strings.Builder
	var quote rune
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}
	for _, r := range sql {
		if quote != 0 {
			cur.WriteRune(r)
			if r == quote {
				quote = 0
			}
			continue
		}
		switch r {
		case '\'', '"', '`':
			quote = r
			cur.WriteRune(r)
		case ';':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return stmts
}
