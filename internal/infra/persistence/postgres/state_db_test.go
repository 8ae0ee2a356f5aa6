package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// stateDB is a database/sql connector that understands only the statements
// the store issues against the state table. Rows live in buckets keyed by
// bucket name; upserts inside a transaction are applied on commit.
type stateDB struct {
	mu      sync.Mutex
	buckets map[string][]byte
	execs   []string

	failPing   bool
	failBegin  bool
	failCommit bool
	failUpsert bool
	rowsErr    error
}

func newStateDB() *stateDB {
	return &stateDB{buckets: make(map[string][]byte)}
}

// open returns a fresh pool over the shared state, so a store can be closed
// and another opened against the same rows.
func (s *stateDB) open() *sql.DB { return sql.OpenDB(s) }

func (s *stateDB) Connect(context.Context) (driver.Conn, error) { return &stateConn{db: s}, nil }

func (s *stateDB) Driver() driver.Driver { return stateDriver{} }

func (s *stateDB) Execs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.execs...)
}

func (s *stateDB) Payload(bucket string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucket]
	return b, ok
}

type stateDriver struct{}

func (stateDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("open through the connector")
}

type statement int

const (
	stmtUnknown statement = iota
	stmtCreate
	stmtSelect
	stmtUpsert
)

func classify(query string) statement {
	q := strings.ToUpper(strings.Join(strings.Fields(query), " "))
	switch {
	case strings.HasPrefix(q, "CREATE TABLE IF NOT EXISTS STATE"):
		return stmtCreate
	case strings.HasPrefix(q, "SELECT BUCKET, PAYLOAD FROM STATE"):
		return stmtSelect
	case strings.HasPrefix(q, "INSERT INTO STATE(BUCKET,PAYLOAD)") && strings.Contains(q, "ON CONFLICT(BUCKET)"):
		return stmtUpsert
	}
	return stmtUnknown
}

type stateConn struct {
	db      *stateDB
	pending map[string][]byte
}

func (c *stateConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

func (c *stateConn) Close() error { return nil }

func (c *stateConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *stateConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.db.failBegin {
		return nil, errors.New("begin refused")
	}
	c.pending = make(map[string][]byte)
	return &stateTx{conn: c}, nil
}

func (c *stateConn) Ping(context.Context) error {
	if c.db.failPing {
		return errors.New("connection refused")
	}
	return nil
}

func (c *stateConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	c.db.execs = append(c.db.execs, query)
	switch classify(query) {
	case stmtCreate:
		return driver.RowsAffected(0), nil
	case stmtUpsert:
		if c.db.failUpsert {
			return nil, errors.New("upsert refused")
		}
		if len(args) != 2 {
			return nil, fmt.Errorf("upsert wants 2 args, got %d", len(args))
		}
		bucket, ok := args[0].Value.(string)
		if !ok {
			return nil, fmt.Errorf("bucket must be a string, got %T", args[0].Value)
		}
		payload, ok := args[1].Value.([]byte)
		if !ok {
			return nil, fmt.Errorf("payload must be bytes, got %T", args[1].Value)
		}
		payload = append([]byte(nil), payload...)
		if c.pending != nil {
			c.pending[bucket] = payload
		} else {
			c.db.buckets[bucket] = payload
		}
		return driver.RowsAffected(1), nil
	}
	return nil, fmt.Errorf("unexpected exec: %s", query)
}

func (c *stateConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	if classify(query) != stmtSelect {
		return nil, fmt.Errorf("unexpected query: %s", query)
	}
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	names := make([]string, 0, len(c.db.buckets))
	for name := range c.db.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	rows := &stateRows{err: c.db.rowsErr}
	for _, name := range names {
		rows.rows = append(rows.rows, [2]driver.Value{name, append([]byte(nil), c.db.buckets[name]...)})
	}
	return rows, nil
}

type stateTx struct {
	conn *stateConn
}

func (t *stateTx) Commit() error {
	c := t.conn
	defer func() { c.pending = nil }()
	if c.db.failCommit {
		return errors.New("commit refused")
	}
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	for bucket, payload := range c.pending {
		c.db.buckets[bucket] = payload
	}
	return nil
}

func (t *stateTx) Rollback() error {
	t.conn.pending = nil
	return nil
}

type stateRows struct {
	rows [][2]driver.Value
	next int
	err  error
}

func (r *stateRows) Columns() []string { return []string{"bucket", "payload"} }

func (r *stateRows) Close() error { return nil }

func (r *stateRows) Next(dest []driver.Value) error {
	if r.next >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	dest[0], dest[1] = r.rows[r.next][0], r.rows[r.next][1]
	r.next++
	return nil
}
