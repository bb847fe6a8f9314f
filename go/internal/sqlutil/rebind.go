package sqlutil

import "strings"

// Driver names accepted by sql.Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Rebind rewrites $N placeholders for drivers that expect ?N. Queries are
// written in Postgres form and must not contain a literal '$'.
func Rebind(driver, query string) string {
	if driver != DriverSQLite {
		return query
	}
	return strings.ReplaceAll(query, "$", "?")
}
