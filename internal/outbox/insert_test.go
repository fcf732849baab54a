package outbox

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedResult is what one INSERT ... RETURNING answers.
type scriptedResult struct {
	id       string // empty means ON CONFLICT skipped the row
	queryErr error
	nextErr  error
}

type scriptedConnector struct {
	mu      sync.Mutex
	results []scriptedResult
	queries int
}

func (c *scriptedConnector) Connect(context.Context) (driver.Conn, error) {
	return &scriptedConn{c: c}, nil
}

func (c *scriptedConnector) Driver() driver.Driver { return scriptedDriver{} }

type scriptedDriver struct{}

func (scriptedDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("use the connector")
}

type scriptedConn struct{ c *scriptedConnector }

func (s *scriptedConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}

func (s *scriptedConn) Close() error { return nil }

func (s *scriptedConn) Begin() (driver.Tx, error) {
	return nil, errors.New("transactions not supported")
}

func (s *scriptedConn) QueryContext(context.Context, string, []driver.NamedValue) (driver.Rows, error) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if s.c.queries >= len(s.c.results) {
		return nil, errors.New("unexpected query")
	}
	r := s.c.results[s.c.queries]
	s.c.queries++
	if r.queryErr != nil {
		return nil, r.queryErr
	}
	return &scriptedRows{result: r}, nil
}

type scriptedRows struct {
	result scriptedResult
	done   bool
}

func (r *scriptedRows) Columns() []string { return []string{"id"} }

func (r *scriptedRows) Close() error { return nil }

func (r *scriptedRows) Next(dest []driver.Value) error {
	if r.result.nextErr != nil {
		return r.result.nextErr
	}
	if r.done || r.result.id == "" {
		return io.EOF
	}
	r.done = true
	dest[0] = r.result.id
	return nil
}

func scriptedDB(t *testing.T, results ...scriptedResult) (*sqlx.DB, *scriptedConnector) {
	t.Helper()
	conn := &scriptedConnector{results: results}
	db := sqlx.NewDb(sql.OpenDB(conn), "postgres")
	t.Cleanup(func() { db.Close() })
	return db, conn
}

func newAlerts(t *testing.T, n int) []*Message {
	t.Helper()
	msgs := make([]*Message, 0, n)
	for i := 0; i < n; i++ {
		m, err := New(KindNewJobPostedAlert, "pi_1", JobAlertPayload{JobPostID: "jp-1"})
		require.NoError(t, err)
		msgs = append(msgs, m)
	}
	return msgs
}

func TestInsert(t *testing.T) {
	tests := []struct {
		name      string
		results   []scriptedResult
		wantIDs   []string
		wantErr   string
		wantCalls int
	}{
		{
			name:      "conflicting rows are skipped",
			results:   []scriptedResult{{id: "a"}, {}, {id: "c"}},
			wantIDs:   []string{"a", "c"},
			wantCalls: 3,
		},
		{
			name:      "query error stops the batch",
			results:   []scriptedResult{{id: "a"}, {queryErr: errors.New("connection reset")}, {id: "c"}},
			wantErr:   "connection reset",
			wantCalls: 2,
		},
		{
			name:      "row iteration error is not a conflict",
			results:   []scriptedResult{{nextErr: errors.New("canceling statement due to user request")}, {id: "b"}, {id: "c"}},
			wantErr:   "canceling statement",
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, conn := scriptedDB(t, tt.results...)

			ids, err := Insert(context.Background(), db, newAlerts(t, 3)...)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, ids)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantIDs, ids)
			}
			assert.Equal(t, tt.wantCalls, conn.queries)
		})
	}
}
