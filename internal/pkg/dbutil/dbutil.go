package dbutil

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var limitRegex = regexp.MustCompile(`(?i)LIMIT\s+\?\s*,\s*\?`)

// Finalize turns a gendry query into postgres form: LIMIT ?,? becomes
// LIMIT ? OFFSET ? and placeholders are renumbered.
func Finalize(query string, args []interface{}) (string, []interface{}) {
	loc := limitRegex.FindStringIndex(query)
	if loc != nil {
		prefix := query[:loc[0]]
		qCount := strings.Count(prefix, "?")
		if qCount+1 < len(args) {
			args[qCount], args[qCount+1] = args[qCount+1], args[qCount]
			query = limitRegex.ReplaceAllString(query, "LIMIT ? OFFSET ?")
		}
	}
	return sqlx.Rebind(sqlx.DOLLAR, query), args
}

// IsAlreadyExists reports a create statement that hit an existing table,
// index, extension or schema object.
func IsAlreadyExists(err error) bool {
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42P07", "42710", "42P06":
			return true
		}
		// concurrent CREATE EXTENSION races surface as a unique violation
		return pgErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "already exists")
}

// IsConnectionError reports failures of the database connection itself,
// as opposed to a statement rejected by the server. Only these are worth
// retrying.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		code := string(pgErr.Code)
		// 08 connection exception, 53 insufficient resources, 57P operator intervention
		return strings.HasPrefix(code, "08") || strings.HasPrefix(code, "53") || strings.HasPrefix(code, "57P")
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
