package sqldb

import (
	"strconv"
	"strings"
)

// Dialect captures the syntax differences between supported SQL engines.
type Dialect struct {
	Name string
	// placeholder renders the n-th (1-based) bind parameter.
	placeholder func(n int) string
	// quote wraps an identifier that already passed validation.
	quote func(identifier string) string
	// likeOp is the case-insensitive pattern operator.
	likeOp string
	// likeSuffix is appended after the LIKE pattern (an ESCAPE clause where the default differs).
	likeSuffix string
}

// Postgres speaks PostgreSQL through jackc/pgx.
var Postgres = Dialect{
	Name:        "postgres",
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	quote:       doubleQuote,
	likeOp:      "ILIKE",
}

// ClickHouse speaks ClickHouse through clickhouse-go.
var ClickHouse = Dialect{
	Name:        "clickhouse",
	placeholder: func(int) string { return "?" },
	quote:       func(id string) string { return "`" + id + "`" },
	likeOp:      "ilike",
}

// SQLite speaks SQLite through mattn/go-sqlite3. LIKE is case-insensitive for ASCII.
var SQLite = Dialect{
	Name:        "sqlite",
	placeholder: func(int) string { return "?" },
	quote:       doubleQuote,
	likeOp:      "LIKE",
	likeSuffix:  ` ESCAPE '\'`,
}

func doubleQuote(id string) string {
	return `"` + id + `"`
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a substring pattern with LIKE metacharacters escaped.
func containsPattern(term string) string {
	return "%" + likeEscaper.Replace(strings.TrimSpace(term)) + "%"
}
