package wafquery

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ErrUnsafeSQL is returned for anything other than a single read-only query on an allowed table.
var ErrUnsafeSQL = errors.New("unsafe sql")

var forbiddenWords = map[string]bool{
	"insert": true, "update": true, "delete": true, "drop": true, "alter": true, "create": true,
	"truncate": true, "rename": true, "attach": true, "detach": true, "optimize": true, "grant": true,
	"revoke": true, "kill": true, "system": true, "outfile": true, "exchange": true,
}

// table functions that reach outside the database
var forbiddenFuncs = map[string]bool{
	"url": true, "file": true, "s3": true, "s3cluster": true, "remote": true, "remotesecure": true,
	"mysql": true, "postgresql": true, "jdbc": true, "odbc": true, "hdfs": true, "input": true,
	"executable": true, "cluster": true, "clusterallreplicas": true, "azureblobstorage": true,
}

var fromFuncs = map[string]bool{"extract": true, "trim": true, "substring": true, "position": true}

type token struct {
	text string
	pos  int
}

// tokenize splits sql into words, numbers and punctuation. Quoted strings become a single
// "'" token so their contents are never mistaken for keywords.
func tokenize(sql string) ([]token, error) {
	var toks []token
	rs := []rune(sql)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '\'':
			start := i
			i++
			for ; i < len(rs); i++ {
				if rs[i] == '\\' {
					i++
					continue
				}
				if rs[i] == '\'' {
					if i+1 < len(rs) && rs[i+1] == '\'' {
						i++
						continue
					}
					break
				}
			}
			if i >= len(rs) {
				return nil, fmt.Errorf("%w: unterminated string", ErrUnsafeSQL)
			}
			i++
			toks = append(toks, token{text: "'", pos: start})
		case r == '"' || r == '`':
			start, quote := i, r
			i++
			for i < len(rs) && rs[i] != quote {
				i++
			}
			if i >= len(rs) {
				return nil, fmt.Errorf("%w: unterminated identifier", ErrUnsafeSQL)
			}
			toks = append(toks, token{text: strings.ToLower(string(rs[start+1 : i])), pos: start})
			i++
		case r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r):
			start := i
			for i < len(rs) && (rs[i] == '_' || rs[i] == '.' || unicode.IsLetter(rs[i]) || unicode.IsDigit(rs[i])) {
				i++
			}
			toks = append(toks, token{text: strings.ToLower(string(rs[start:i])), pos: start})
		default:
			if r == '-' && i+1 < len(rs) && rs[i+1] == '-' || r == '/' && i+1 < len(rs) && rs[i+1] == '*' || r == '#' {
				return nil, fmt.Errorf("%w: comments are not allowed", ErrUnsafeSQL)
			}
			toks = append(toks, token{text: string(r), pos: i})
			i++
		}
	}
	return toks, nil
}

// ValidateSQL checks that sql is one SELECT (or WITH ... SELECT) statement reading only
// allowed tables, and appends LIMIT maxRows when the statement has no top-level LIMIT.
// A top-level LIMIT above maxRows is lowered to maxRows. It returns the statement to run.
func ValidateSQL(sql string, allowed []string, maxRows int) (string, error) {
	sql = strings.TrimSpace(sql)
	sql = strings.TrimSpace(strings.TrimRight(sql, ";"))
	if sql == "" {
		return "", fmt.Errorf("%w: empty statement", ErrUnsafeSQL)
	}
	toks, err := tokenize(sql)
	if err != nil {
		return "", err
	}
	if first := toks[0].text; first != "select" && first != "with" {
		return "", fmt.Errorf("%w: statement must start with SELECT or WITH, got %q", ErrUnsafeSQL, first)
	}

	ctes := map[string]bool{}
	for i, t := range toks {
		switch {
		case t.text == ";":
			return "", fmt.Errorf("%w: multiple statements", ErrUnsafeSQL)
		case forbiddenWords[t.text]:
			return "", fmt.Errorf("%w: %s is not allowed", ErrUnsafeSQL, strings.ToUpper(t.text))
		case forbiddenFuncs[t.text] && i+1 < len(toks) && toks[i+1].text == "(":
			return "", fmt.Errorf("%w: table function %s is not allowed", ErrUnsafeSQL, t.text)
		case t.text == "into":
			return "", fmt.Errorf("%w: INTO is not allowed", ErrUnsafeSQL)
		}
		// name AS ( ... ) introduces a common table expression
		if i+2 < len(toks) && toks[i+1].text == "as" && toks[i+2].text == "(" {
			ctes[t.text] = true
		}
	}

	ok := map[string]bool{}
	for _, a := range allowed {
		ok[strings.ToLower(a)] = true
	}
	// parens opened by EXTRACT(x FROM y) and friends contain FROM without a table
	var inFunc []bool
	for i, t := range toks {
		switch t.text {
		case "(":
			inFunc = append(inFunc, i > 0 && fromFuncs[toks[i-1].text])
			continue
		case ")":
			if len(inFunc) > 0 {
				inFunc = inFunc[:len(inFunc)-1]
			}
			continue
		case "from":
		case "join":
			// ARRAY JOIN unfolds a column of the left table
			if i > 0 && toks[i-1].text == "array" {
				continue
			}
		default:
			continue
		}
		if len(inFunc) > 0 && inFunc[len(inFunc)-1] {
			continue
		}
		for _, name := range tableList(toks, i+1) {
			if ctes[name] {
				continue
			}
			if !tableAllowed(name, ok) {
				return "", fmt.Errorf("%w: table %q is not allowed", ErrUnsafeSQL, name)
			}
		}
	}

	return applyLimit(sql, toks, maxRows)
}

// words that end a table reference in a FROM or JOIN list
var clauseWords = map[string]bool{
	"where": true, "prewhere": true, "group": true, "order": true, "having": true, "limit": true,
	"offset": true, "fetch": true, "settings": true, "format": true, "window": true, "qualify": true,
	"union": true, "except": true, "intersect": true, "on": true, "using": true, "join": true,
	"inner": true, "left": true, "right": true, "full": true, "cross": true, "outer": true,
	"any": true, "all": true, "asof": true, "semi": true, "anti": true, "global": true,
	"array": true, "paste": true, "with": true,
}

// tableList returns the table names in the comma-separated list starting at toks[j].
// Subqueries are skipped; their own FROM clauses are checked separately. A name followed
// by "(" is a table function and is returned as its function name.
func tableList(toks []token, j int) []string {
	var names []string
	for j < len(toks) {
		if toks[j].text == "(" {
			j = skipParens(toks, j)
		} else if t := toks[j].text; t != ")" && !clauseWords[t] {
			names = append(names, t)
			j++
			if j < len(toks) && toks[j].text == "(" {
				j = skipParens(toks, j)
			}
		}
		// alias, FINAL, SAMPLE n
		for j < len(toks) && toks[j].text != "," && toks[j].text != ")" && !clauseWords[toks[j].text] {
			if toks[j].text == "(" {
				j = skipParens(toks, j)
				continue
			}
			j++
		}
		if j < len(toks) && toks[j].text == "," {
			j++
			continue
		}
		break
	}
	return names
}

// skipParens returns the index after the paren that closes toks[j].
func skipParens(toks []token, j int) int {
	depth := 0
	for ; j < len(toks); j++ {
		switch toks[j].text {
		case "(":
			depth++
		case ")":
			depth--
			if depth == 0 {
				return j + 1
			}
		}
	}
	return j
}

func tableAllowed(name string, ok map[string]bool) bool {
	if ok[name] {
		return true
	}
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return ok[name[i+1:]]
	}
	return false
}

// applyLimit enforces maxRows on the outermost query. LIMIT n BY ... limits rows per
// group and does not count. A set operation at the top level is wrapped so the cap
// covers the combined result.
func applyLimit(sql string, toks []token, maxRows int) (string, error) {
	if maxRows <= 0 {
		return sql, nil
	}
	depth := 0
	countAt := -1
	for i := 0; i < len(toks); i++ {
		switch toks[i].text {
		case "(":
			depth++
		case ")":
			depth--
		case "union", "except", "intersect":
			if depth == 0 {
				return "SELECT * FROM (" + sql + ") LIMIT " + strconv.Itoa(maxRows), nil
			}
		case "limit":
			if depth != 0 {
				continue
			}
			// LIMIT n | LIMIT offset, n | either followed by OFFSET m and/or BY cols
			at, next := i+1, i+2
			if next < len(toks) && toks[next].text == "," {
				at, next = i+3, i+4
			}
			if next < len(toks) && toks[next].text == "offset" {
				next += 2
			}
			if next < len(toks) && toks[next].text == "by" {
				continue
			}
			if at >= len(toks) {
				return "", fmt.Errorf("%w: LIMIT without a row count", ErrUnsafeSQL)
			}
			countAt = at
		}
	}
	if countAt < 0 {
		return sql + " LIMIT " + strconv.Itoa(maxRows), nil
	}
	numTok := toks[countAt]
	n, err := strconv.Atoi(numTok.text)
	if err != nil {
		return "", fmt.Errorf("%w: LIMIT must be a number, got %q", ErrUnsafeSQL, numTok.text)
	}
	if n <= maxRows {
		return sql, nil
	}
	rs := []rune(sql)
	end := numTok.pos + len([]rune(numTok.text))
	return string(rs[:numTok.pos]) + strconv.Itoa(maxRows) + string(rs[end:]), nil
}
