package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sudharshan-ks/dev-postmark-challenge/models"
)

// Statement is the result of inspecting one SQL statement
type Statement struct {
	Text     string
	Verb     string   // leading keyword, upper case
	Mutation bool     // INSERT, UPDATE, DELETE or REPLACE
	Action   string   // the write verb of a mutation, also behind a WITH prefix
	Tables   []string // catalog tables the statement references, sorted
}

// SQLGuard checks untrusted SQL against the Northwind allow-list before it
// reaches the store. It does not rewrite statements.
type SQLGuard struct {
	catalog *models.Catalog
}

// NewSQLGuard creates a guard over catalog
func NewSQLGuard(catalog *models.Catalog) *SQLGuard {
	return &SQLGuard{catalog: catalog}
}

var readVerbs = map[string]bool{"SELECT": true, "WITH": true, "VALUES": true}

var writeVerbs = map[string]bool{"INSERT": true, "UPDATE": true, "DELETE": true, "REPLACE": true}

var forbiddenVerbs = map[string]bool{
	"CREATE": true, "DROP": true, "ALTER": true, "PRAGMA": true, "ATTACH": true,
	"DETACH": true, "VACUUM": true, "REINDEX": true, "ANALYZE": true, "BEGIN": true,
	"COMMIT": true, "END": true, "ROLLBACK": true, "SAVEPOINT": true, "RELEASE": true,
	"EXPLAIN": true,
}

// clause keywords that reset the comma context at their nesting depth
var clauseKeywords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "GROUP": true, "HAVING": true,
	"ORDER": true, "LIMIT": true, "WINDOW": true, "SET": true, "VALUES": true,
	"RETURNING": true, "UNION": true, "INTERSECT": true, "EXCEPT": true,
	"WITH": true,
}

// keywords after which a value expression has ended, so a following bare
// identifier is an implicit alias
var expressionEnders = map[string]bool{
	"END": true, "NULL": true, "TRUE": true, "FALSE": true,
	"CURRENT_DATE": true, "CURRENT_TIME": true, "CURRENT_TIMESTAMP": true,
}

var pseudoColumns = map[string]bool{"rowid": true, "oid": true, "_rowid_": true}

var schemaQualifiers = map[string]bool{"main": true, "temp": true}

// Inspect validates sql and describes it. Failures are *QueryError values of
// kind SyntaxError, StatementNotAllowed or SchemaMismatch.
func (g *SQLGuard) Inspect(sql string) (*Statement, error) {
	tokens, err := tokenize(sql)
	if err != nil {
		return nil, newQueryError(KindSyntaxError, err.Error(), nil)
	}

	// exactly one statement: anything after the first ';' must be more ';'
	for i, tok := range tokens {
		if tok.is(";") {
			for _, rest := range tokens[i+1:] {
				if !rest.is(";") {
					return nil, newQueryError(KindSyntaxError, "only one statement may be executed at a time", nil)
				}
			}
			tokens = tokens[:i]
			break
		}
	}
	if len(tokens) == 0 {
		return nil, newQueryError(KindSyntaxError, "statement is empty", nil)
	}
	if err := checkParens(tokens); err != nil {
		return nil, err
	}

	first := tokens[0]
	if first.kind != tokWord {
		return nil, newQueryError(KindSyntaxError, fmt.Sprintf("statement cannot start with %q", first.text), nil)
	}
	verb := first.upper
	switch {
	case forbiddenVerbs[verb]:
		return nil, newQueryError(KindStatementNotAllowed, verb+" statements are not permitted", nil)
	case !readVerbs[verb] && !writeVerbs[verb]:
		return nil, newQueryError(KindSyntaxError, fmt.Sprintf("unrecognised statement %q", first.text), nil)
	}

	for _, tok := range tokens {
		if tok.kind == tokParam {
			return nil, newQueryError(KindSyntaxError, fmt.Sprintf("bind parameter %q has no value", tok.text), nil)
		}
		// sqlite's own tables must not be reachable under any alias
		if (tok.kind == tokWord || tok.kind == tokQuoted) && internalTable(strings.ToLower(tok.text)) {
			return nil, newQueryError(KindSchemaMismatch, fmt.Sprintf("internal table %q is not permitted", tok.text), nil)
		}
	}

	stmt := &Statement{Text: sql, Verb: verb, Mutation: writeVerbs[verb]}
	if stmt.Mutation {
		stmt.Action = verb
	}
	if verb == "WITH" {
		stmt.Action = mutationVerb(tokens)
		stmt.Mutation = stmt.Action != ""
	}

	a := &analysis{
		guard:      g,
		tokens:     tokens,
		declared:   make(map[string]bool),
		ctes:       make(map[string]bool),
		aliasTable: make(map[string]string),
		handled:    make(map[int]bool),
		tables:     make(map[string]bool),
	}
	if err := a.scanDeclarations(); err != nil {
		return nil, err
	}
	if err := a.checkIdentifiers(); err != nil {
		return nil, err
	}

	for name := range a.tables {
		stmt.Tables = append(stmt.Tables, name)
	}
	sort.Strings(stmt.Tables)
	return stmt, nil
}

func checkParens(tokens []token) error {
	depth := 0
	for _, tok := range tokens {
		switch {
		case tok.is("("):
			depth++
		case tok.is(")"):
			depth--
			if depth < 0 {
				return newQueryError(KindSyntaxError, "unbalanced parentheses", nil)
			}
		}
	}
	if depth != 0 {
		return newQueryError(KindSyntaxError, "unbalanced parentheses", nil)
	}
	return nil
}

// mutationVerb returns the first write verb outside a function call, or ""
func mutationVerb(tokens []token) string {
	for i, tok := range tokens {
		if tok.kind == tokWord && writeVerbs[tok.upper] && !(i+1 < len(tokens) && tokens[i+1].is("(")) {
			return tok.upper
		}
	}
	return ""
}

type analysis struct {
	guard      *SQLGuard
	tokens     []token
	declared   map[string]bool   // lower-case aliases, CTE names and CTE columns
	ctes       map[string]bool   // lower-case CTE names, the only declared names usable as tables
	aliasTable map[string]string // lower-case alias -> catalog table
	handled    map[int]bool      // token indexes already validated as table refs or declarations
	tables     map[string]bool
}

func (a *analysis) at(i int) token {
	if i < 0 || i >= len(a.tokens) {
		return token{kind: tokEOF}
	}
	return a.tokens[i]
}

func (a *analysis) isIdent(i int) bool {
	tok := a.at(i)
	return tok.kind == tokQuoted || (tok.kind == tokWord && !sqlKeywords[tok.upper])
}

// matching returns the index of the ')' closing the '(' at open
func (a *analysis) matching(open int) int {
	depth := 0
	for i := open; i < len(a.tokens); i++ {
		switch {
		case a.tokens[i].is("("):
			depth++
		case a.tokens[i].is(")"):
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func (a *analysis) declare(i int) {
	a.declared[strings.ToLower(a.tokens[i].text)] = true
	a.handled[i] = true
}

// scanDeclarations walks the statement once, validating table references and
// recording every name the statement itself introduces.
func (a *analysis) scanDeclarations() error {
	clause := map[int]string{}
	depth := 0
	expectTable := false

	for i := 0; i < len(a.tokens); i++ {
		tok := a.tokens[i]

		if expectTable {
			// parenthesised join: FROM (Orders o JOIN Customers c ...)
			if tok.is("(") {
				depth++
				clause[depth] = "FROM"
				continue
			}
			expectTable = false
			if a.isIdent(i) {
				next, err := a.tableRef(i)
				if err != nil {
					return err
				}
				i = next
				continue
			}
		}

		switch {
		case tok.is("("):
			depth++
			clause[depth] = ""
			continue
		case tok.is(")"):
			depth--
			continue
		case tok.is(","):
			expectTable = clause[depth] == "FROM"
			continue
		}

		if tok.kind == tokWord {
			switch {
			case clauseKeywords[tok.upper]:
				clause[depth] = tok.upper
			}
			switch tok.upper {
			case "FROM", "JOIN", "INTO":
				expectTable = true
				continue
			case "UPDATE":
				// UPDATE OR REPLACE t
				if a.at(i+1).isWord("OR") {
					i += 2
				}
				expectTable = !a.at(i + 1).isWord("SET")
				continue
			case "AS":
				a.declareAfterAs(i)
				continue
			case "OVER":
				if a.isIdent(i + 1) {
					a.declare(i + 1)
				}
				continue
			}
		}

		if !a.isIdent(i) || a.handled[i] {
			continue
		}

		// name AS (...)  or  name(col, ...) AS (...): CTE or named window
		if a.at(i + 1).isWord("AS") && a.asOpensParen(i+1) {
			a.declareCTE(i, clause[depth])
			continue
		}
		if a.at(i + 1).is("(") {
			if closing := a.matching(i + 1); closing > 0 && a.at(closing+1).isWord("AS") && a.asOpensParen(closing+1) {
				a.declareCTE(i, clause[depth])
				for j := i + 2; j < closing; j++ {
					if a.isIdent(j) {
						a.declare(j)
					}
				}
				i = closing
				continue
			}
		}

		if a.endsExpression(i-1) && !a.at(i+1).is(".") && !a.at(i+1).is("(") {
			a.declare(i)
		}
	}
	return nil
}

// declareCTE declares the name at i, and records it as a CTE when it is
// defined in a WITH clause rather than a WINDOW clause
func (a *analysis) declareCTE(i int, clause string) {
	a.declare(i)
	if clause == "WITH" {
		a.ctes[strings.ToLower(a.tokens[i].text)] = true
	}
}

// internalTable reports whether name is one of sqlite's own tables or
// table-valued pragma functions
func internalTable(lower string) bool {
	return strings.HasPrefix(lower, "sqlite_") || strings.HasPrefix(lower, "pragma_")
}

// asOpensParen reports whether the AS at i is followed by a parenthesised body,
// allowing for [NOT] MATERIALIZED
func (a *analysis) asOpensParen(i int) bool {
	j := i + 1
	if a.at(j).isWord("NOT") {
		j++
	}
	if a.at(j).isWord("MATERIALIZED") {
		j++
	}
	return a.at(j).is("(")
}

func (a *analysis) declareAfterAs(i int) {
	if a.isIdent(i+1) && !a.at(i+2).is("(") && !a.at(i+2).is(".") {
		a.declare(i + 1)
	}
}

// endsExpression reports whether token i can be the last token of a value
// expression or table reference
func (a *analysis) endsExpression(i int) bool {
	tok := a.at(i)
	switch tok.kind {
	case tokQuoted, tokString, tokNumber:
		return true
	case tokWord:
		return !sqlKeywords[tok.upper] || expressionEnders[tok.upper]
	case tokPunct:
		return tok.is(")")
	}
	return false
}

// tableRef validates the table reference starting at i and consumes an
// optional alias. It returns the index of the last consumed token.
func (a *analysis) tableRef(i int) (int, error) {
	if a.at(i + 1).is(".") {
		qualifier := strings.ToLower(a.at(i).text)
		if !schemaQualifiers[qualifier] {
			return i, newQueryError(KindSchemaMismatch, fmt.Sprintf("unknown database %q", a.at(i).text), nil)
		}
		a.handled[i] = true
		i += 2
		if !a.isIdent(i) {
			return i, newQueryError(KindSyntaxError, "expected a table name after "+qualifier+".", nil)
		}
	}

	name := a.at(i).text
	lower := strings.ToLower(name)
	switch {
	case internalTable(lower):
		return i, newQueryError(KindSchemaMismatch, fmt.Sprintf("internal table %q is not permitted", name), nil)
	case a.at(i+1).is("(") && !a.at(i-1).isWord("INTO"):
		return i, newQueryError(KindSchemaMismatch, fmt.Sprintf("table-valued function %q is not permitted", name), nil)
	case a.ctes[lower]:
		// CTE
	case a.guard.catalog.HasTable(name):
		t, _ := a.guard.catalog.Table(name)
		a.tables[t.Name] = true
		a.aliasTable[lower] = t.Name
	default:
		return i, newQueryError(KindSchemaMismatch, fmt.Sprintf("unknown table %q", name), nil)
	}
	a.handled[i] = true

	table := a.aliasTable[lower]
	aliasAt := -1
	switch {
	case a.at(i+1).isWord("AS") && a.isIdent(i+2):
		aliasAt = i + 2
	case a.isIdent(i+1) && !a.at(i+2).is("."):
		aliasAt = i + 1
	}
	if aliasAt < 0 {
		return i, nil
	}
	a.declare(aliasAt)
	if table != "" {
		a.aliasTable[strings.ToLower(a.at(aliasAt).text)] = table
	}
	return aliasAt, nil
}

// checkIdentifiers validates every remaining identifier against the catalog
// and the names the statement declared.
func (a *analysis) checkIdentifiers() error {
	catalog := a.guard.catalog

	for i := range a.tokens {
		if !a.isIdent(i) || a.handled[i] {
			continue
		}
		name := a.tokens[i].text
		lower := strings.ToLower(name)

		switch {
		case a.at(i+1).is("(") && a.tokens[i].kind == tokWord:
			// function call
			continue

		case a.at(i + 1).is("."):
			if !a.knownQualifier(lower) {
				return newQueryError(KindSchemaMismatch, fmt.Sprintf("unknown table or alias %q", name), nil)
			}

		case a.at(i - 1).is("."):
			qualifier := strings.ToLower(a.at(i - 2).text)
			if !a.qualifiedColumnExists(qualifier, name) {
				return newQueryError(KindSchemaMismatch, fmt.Sprintf("unknown column %q", a.at(i-2).text+"."+name), nil)
			}

		default:
			if !catalog.HasColumn(name) && !a.declared[lower] && !pseudoColumns[lower] {
				return newQueryError(KindSchemaMismatch, fmt.Sprintf("unknown column %q", name), nil)
			}
		}
	}
	return nil
}

func (a *analysis) knownQualifier(lower string) bool {
	return a.guard.catalog.HasTable(lower) ||
		a.aliasTable[lower] != "" ||
		a.declared[lower] ||
		schemaQualifiers[lower] ||
		lower == "excluded"
}

func (a *analysis) qualifiedColumnExists(qualifier, column string) bool {
	catalog := a.guard.catalog
	if pseudoColumns[strings.ToLower(column)] {
		return true
	}
	if table := a.aliasTable[qualifier]; table != "" {
		return catalog.TableHasColumn(table, column)
	}
	if catalog.HasTable(qualifier) {
		return catalog.TableHasColumn(qualifier, column)
	}
	if schemaQualifiers[qualifier] {
		return catalog.HasTable(column) || catalog.HasColumn(column)
	}
	// CTE, subquery alias or excluded.*
	return catalog.HasColumn(column) || a.declared[strings.ToLower(column)]
}
