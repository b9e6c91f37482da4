package dbutil

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestFinalize(t *testing.T) {
	query, args := Finalize("SELECT id FROM documents WHERE source=? LIMIT ?,?", []interface{}{"a.md", 10, 5})
	require.Equal(t, "SELECT id FROM documents WHERE source=$1 LIMIT $2 OFFSET $3", query)
	require.Equal(t, []interface{}{"a.md", 5, 10}, args)

	query, args = Finalize("DELETE FROM documents WHERE (source IN (?,?))", []interface{}{"a", "b"})
	require.Equal(t, "DELETE FROM documents WHERE (source IN ($1,$2))", query)
	require.Len(t, args, 2)
}

func TestIsAlreadyExists(t *testing.T) {
	require.True(t, IsAlreadyExists(&pq.Error{Code: "42P07"}))
	require.True(t, IsAlreadyExists(fmt.Errorf("exec: %w", &pq.Error{Code: "42710"})))
	require.False(t, IsAlreadyExists(&pq.Error{Code: "42601"}))
	require.True(t, IsAlreadyExists(errors.New(`relation "docs" already exists`)))
	require.False(t, IsAlreadyExists(nil))
	require.True(t, IsAlreadyExists(&pq.Error{Code: "23505"}))
}

func TestIsConnectionError(t *testing.T) {
	require.True(t, IsConnectionError(&pq.Error{Code: "08006"}))
	require.True(t, IsConnectionError(&pq.Error{Code: "53300"}))
	require.True(t, IsConnectionError(fmt.Errorf("insert: %w", &pq.Error{Code: "57P01"})))
	require.True(t, IsConnectionError(driver.ErrBadConn))
	require.True(t, IsConnectionError(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}))

	// rows rejected by the server are not connection failures
	require.False(t, IsConnectionError(&pq.Error{Code: "22021"}))
	require.False(t, IsConnectionError(&pq.Error{Code: "23502"}))
	require.False(t, IsConnectionError(&pq.Error{Code: "57014"}))
	require.False(t, IsConnectionError(errors.New("syntax error")))
	require.False(t, IsConnectionError(nil))
}
