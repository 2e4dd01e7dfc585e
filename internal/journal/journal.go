// Package journal records received messages in a SQLite database so a
// lab session can be inspected after the fact.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bft-labs/socklab/internal/domain"
	"github.com/bft-labs/socklab/internal/ports"
	"github.com/bft-labs/socklab/pkg/log"
)

// Journal is a MessageSink backed by SQLite.
type Journal struct {
	db     *sql.DB
	logger ports.Logger
}

// Entry is one stored message.
type Entry struct {
	ID         int64
	Session    string
	Transport  domain.Transport
	Local      string
	Remote     string
	Seq        int
	Payload    []byte
	ReceivedAt time.Time
}

// SessionStats summarises one session.
type SessionStats struct {
	Session  string
	Messages int
	Bytes    int64
	First    time.Time
	Last     time.Time
}

// Open opens (creating if needed) the journal at path and migrates its
// schema to the latest version.
func Open(path string, logger ports.Logger) (*Journal, error) {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// One writer; sqlite serialises writes anyway.
	db.SetMaxOpenConns(1)

	j := &Journal{db: db, logger: logger}
	if err := j.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("journal open", log.String("path", path))
	return j, nil
}

// Deliver stores msg.
func (j *Journal) Deliver(ctx context.Context, msg domain.Message) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO messages (session, transport, local_addr, remote_addr, seq, payload, size, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.Session,
		string(msg.Transport),
		addrString(msg.Local),
		addrString(msg.Remote),
		msg.Seq,
		payloadOrEmpty(msg.Payload),
		len(msg.Payload),
		msg.ReceivedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("journal insert: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, session, transport, local_addr, remote_addr, seq, payload, received_at
		FROM messages
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			transport string
			at        int64
		)
		if err := rows.Scan(&e.ID, &e.Session, &transport, &e.Local, &e.Remote, &e.Seq, &e.Payload, &at); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}
		e.Transport = domain.Transport(transport)
		e.ReceivedAt = time.Unix(0, at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Sessions returns per-session totals, most recent session first.
func (j *Journal) Sessions(ctx context.Context) ([]SessionStats, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT session, COUNT(*), COALESCE(SUM(size), 0), MIN(received_at), MAX(received_at)
		FROM messages
		GROUP BY session
		ORDER BY MAX(id) DESC`)
	if err != nil {
		return nil, fmt.Errorf("journal query: %w", err)
	}
	defer rows.Close()

	var out []SessionStats
	for rows.Next() {
		var (
			s           SessionStats
			first, last int64
		)
		if err := rows.Scan(&s.Session, &s.Messages, &s.Bytes, &first, &last); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}
		s.First, s.Last = time.Unix(0, first), time.Unix(0, last)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

func payloadOrEmpty(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
