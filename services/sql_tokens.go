package services

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokQuoted // "name", [name] or `name`
	tokString
	tokNumber
	tokParam
	tokPunct
)

type token struct {
	kind  tokenKind
	text  string // quoted identifiers are stored unquoted
	upper string // words only
	pos   int
}

func (t token) is(punct string) bool {
	return t.kind == tokPunct && t.text == punct
}

func (t token) isWord(upper string) bool {
	return t.kind == tokWord && t.upper == upper
}

// tokenize splits SQLite SQL into tokens, dropping whitespace and comments
func tokenize(sql string) ([]token, error) {
	var tokens []token
	n := len(sql)

	for i := 0; i < n; {
		c := sql[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f':
			i++

		case c == '-' && i+1 < n && sql[i+1] == '-':
			end := strings.IndexByte(sql[i:], '\n')
			if end < 0 {
				i = n
			} else {
				i += end + 1
			}

		case c == '/' && i+1 < n && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				return nil, fmt.Errorf("unterminated comment at offset %d", i)
			}
			i += 2 + end + 2

		case c == '\'':
			text, next, err := readQuoted(sql, i, '\'')
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokString, text: text, pos: i})
			i = next

		case c == '"' || c == '`':
			text, next, err := readQuoted(sql, i, c)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokQuoted, text: text, pos: i})
			i = next

		case c == '[':
			end := strings.IndexByte(sql[i+1:], ']')
			if end < 0 {
				return nil, fmt.Errorf("unterminated identifier at offset %d", i)
			}
			tokens = append(tokens, token{kind: tokQuoted, text: sql[i+1 : i+1+end], pos: i})
			i += end + 2

		case isDigit(c) || (c == '.' && i+1 < n && isDigit(sql[i+1])):
			next := readNumber(sql, i)
			tokens = append(tokens, token{kind: tokNumber, text: sql[i:next], pos: i})
			i = next

		case c == '?':
			j := i + 1
			for j < n && isDigit(sql[j]) {
				j++
			}
			tokens = append(tokens, token{kind: tokParam, text: sql[i:j], pos: i})
			i = j

		case (c == ':' || c == '@' || c == '$') && i+1 < n && isIdentStart(sql[i+1]):
			j := i + 1
			for j < n && isIdentPart(sql[j]) {
				j++
			}
			tokens = append(tokens, token{kind: tokParam, text: sql[i:j], pos: i})
			i = j

		case isIdentStart(c):
			j := i + 1
			for j < n && isIdentPart(sql[j]) {
				j++
			}
			// blob literal X'...'
			if j == i+1 && (c == 'x' || c == 'X') && j < n && sql[j] == '\'' {
				text, next, err := readQuoted(sql, j, '\'')
				if err != nil {
					return nil, err
				}
				tokens = append(tokens, token{kind: tokString, text: text, pos: i})
				i = next
				continue
			}
			word := sql[i:j]
			tokens = append(tokens, token{kind: tokWord, text: word, upper: strings.ToUpper(word), pos: i})
			i = j

		default:
			tokens = append(tokens, token{kind: tokPunct, text: string(c), pos: i})
			i++
		}
	}
	return tokens, nil
}

// readQuoted reads a literal opened by quote at start, where a doubled quote
// is an escaped quote. It returns the unescaped text and the offset past the
// closing quote.
func readQuoted(sql string, start int, quote byte) (string, int, error) {
	var b strings.Builder
	for j := start + 1; j < len(sql); j++ {
		if sql[j] != quote {
			b.WriteByte(sql[j])
			continue
		}
		if j+1 < len(sql) && sql[j+1] == quote {
			b.WriteByte(quote)
			j++
			continue
		}
		return b.String(), j + 1, nil
	}
	if quote == '\'' {
		return "", 0, fmt.Errorf("unterminated string literal at offset %d", start)
	}
	return "", 0, fmt.Errorf("unterminated identifier at offset %d", start)
}

func readNumber(sql string, i int) int {
	n := len(sql)
	if sql[i] == '0' && i+1 < n && (sql[i+1] == 'x' || sql[i+1] == 'X') {
		j := i + 2
		for j < n && isHexDigit(sql[j]) {
			j++
		}
		return j
	}
	j := i
	for j < n && isDigit(sql[j]) {
		j++
	}
	if j < n && sql[j] == '.' {
		j++
		for j < n && isDigit(sql[j]) {
			j++
		}
	}
	if j < n && (sql[j] == 'e' || sql[j] == 'E') {
		k := j + 1
		if k < n && (sql[k] == '+' || sql[k] == '-') {
			k++
		}
		if k < n && isDigit(sql[k]) {
			for k < n && isDigit(sql[k]) {
				k++
			}
			j = k
		}
	}
	return j
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '$'
}

// sqlKeywords holds the SQLite keywords plus the type names that appear in CAST
var sqlKeywords = func() map[string]bool {
	words := strings.Fields(`
		ABORT ACTION ADD AFTER ALL ALTER ALWAYS ANALYZE AND AS ASC ATTACH
		AUTOINCREMENT BEFORE BEGIN BETWEEN BY CASCADE CASE CAST CHECK COLLATE
		COLUMN COMMIT CONFLICT CONSTRAINT CREATE CROSS CURRENT CURRENT_DATE
		CURRENT_TIME CURRENT_TIMESTAMP DATABASE DEFAULT DEFERRABLE DEFERRED
		DELETE DESC DETACH DISTINCT DO DROP EACH ELSE END ESCAPE EXCEPT EXCLUDE
		EXCLUSIVE EXISTS EXPLAIN FAIL FILTER FIRST FOLLOWING FOR FOREIGN FROM
		FULL GENERATED GLOB GROUP GROUPS HAVING IF IGNORE IMMEDIATE IN INDEX
		INDEXED INITIALLY INNER INSERT INSTEAD INTERSECT INTO IS ISNULL JOIN KEY
		LAST LEFT LIKE LIMIT MATCH MATERIALIZED NATURAL NO NOT NOTHING NOTNULL
		NULL NULLS OF OFFSET ON OR ORDER OTHERS OUTER OVER PARTITION PLAN PRAGMA
		PRECEDING PRIMARY QUERY RAISE RANGE RECURSIVE REFERENCES REGEXP REINDEX
		RELEASE RENAME REPLACE RESTRICT RETURNING RIGHT ROLLBACK ROW ROWS
		SAVEPOINT SELECT SET TABLE TEMP TEMPORARY THEN TIES TO TRANSACTION
		TRIGGER UNBOUNDED UNION UNIQUE UPDATE USING VACUUM VALUES VIEW VIRTUAL
		WHEN WHERE WINDOW WITH WITHOUT TRUE FALSE
		INTEGER INT REAL TEXT BLOB NUMERIC VARCHAR CHAR FLOAT DOUBLE BOOLEAN DATE DATETIME
	`)
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}()
