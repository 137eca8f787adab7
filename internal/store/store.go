// Package store implements the encrypted local persistence layer from
// spec.md §4.8: flows and alerts in a relational index, flows additionally
// sealed with AES-256-GCM. Grounded on the teacher's
// internal/reputation/wallet.go database/sql usage pattern
// (sql.Open("sqlite", path), a thin struct wrapping *sql.DB), but made to
// actually compile: the teacher names a "sqlite" driver without ever
// registering one, so this package imports modernc.org/sqlite for its
// side-effecting driver registration under that exact name.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/netsentinel/agent/internal/errs"
	"github.com/netsentinel/agent/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS flows (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts_first INTEGER NOT NULL,
	ts_last INTEGER NOT NULL,
	proto TEXT NOT NULL,
	src_ip TEXT NOT NULL,
	dst_ip TEXT NOT NULL,
	src_port INTEGER NOT NULL,
	dst_port INTEGER NOT NULL,
	bytes INTEGER NOT NULL,
	ciphertext BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_flows_ts_first ON flows(ts_first DESC);

CREATE TABLE IF NOT EXISTS alerts (
	id TEXT PRIMARY KEY,
	ts INTEGER NOT NULL,
	severity TEXT NOT NULL,
	rule_id TEXT NOT NULL,
	summary TEXT NOT NULL,
	flow_refs TEXT NOT NULL,
	process_ref TEXT NOT NULL,
	rationale TEXT NOT NULL,
	suggested_action TEXT NOT NULL
);
`

// Store is the encrypted local persistence layer. A Store owns its
// *sql.DB exclusively; per spec.md §5 there is no intra-process sharing
// of the connection.
type Store struct {
	db  *sql.DB
	key []byte
}

// Open creates the database's parent directory if needed, opens (or
// creates) the SQLite file at dbPath, and ensures both tables exist. key
// must be exactly 32 bytes.
func Open(dbPath string, key []byte) (*Store, error) {
	if len(key) != keyLen {
		return nil, errs.New(errs.KindEncryption, "store: open", fmt.Errorf("key must be %d bytes, got %d", keyLen, len(key)))
	}

	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, errs.New(errs.KindIO, "store: creating database directory", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errs.New(errs.KindInit, "store: opening database", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errs.New(errs.KindInit, "store: applying schema", err)
	}

	return &Store{db: db, key: key}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutFlow serializes flow to canonical JSON, seals it, and appends it to
// the flows table alongside its unencrypted 5-tuple and byte count.
func (s *Store) PutFlow(flow types.FlowEvent) error {
	plaintext, err := json.Marshal(flow)
	if err != nil {
		return errs.New(errs.KindParse, "store: marshaling flow", err)
	}

	ciphertext, err := encrypt(s.key, plaintext)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(
		`INSERT INTO flows (ts_first, ts_last, proto, src_ip, dst_ip, src_port, dst_port, bytes, ciphertext)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		flow.TSFirst.UnixNano(), flow.TSLast.UnixNano(), string(flow.Proto),
		flow.SrcIP, flow.DstIP, flow.SrcPort, flow.DstPort, flow.Bytes, ciphertext,
	)
	if err != nil {
		return errs.New(errs.KindIO, "store: inserting flow", err)
	}
	return nil
}

// PutAlert upserts alert by id so retried dispatches stay idempotent.
func (s *Store) PutAlert(alert types.Alert) error {
	flowRefs, err := json.Marshal(alert.FlowRefs)
	if err != nil {
		return errs.New(errs.KindParse, "store: marshaling alert flow refs", err)
	}

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO alerts (id, ts, severity, rule_id, summary, flow_refs, process_ref, rationale, suggested_action)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID, alert.TS.UnixNano(), string(alert.Severity), alert.RuleID, alert.Summary,
		string(flowRefs), alert.ProcessRef, alert.Rationale, alert.SuggestedAction,
	)
	if err != nil {
		return errs.New(errs.KindIO, "store: upserting alert", err)
	}
	return nil
}

// QueryFlows returns the limit most recent index rows, most recent first.
// The ciphertext column is not decoded.
func (s *Store) QueryFlows(limit int) ([]types.StoredFlow, error) {
	rows, err := s.db.Query(
		`SELECT id, ts_first, ts_last, proto, src_ip, dst_ip, src_port, dst_port, bytes
		 FROM flows ORDER BY ts_first DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, errs.New(errs.KindIO, "store: querying flows", err)
	}
	defer rows.Close()

	var out []types.StoredFlow
	for rows.Next() {
		var (
			row   types.StoredFlow
			proto string
		)
		if err := rows.Scan(&row.ID, &row.TSFirst, &row.TSLast, &proto, &row.SrcIP, &row.DstIP, &row.SrcPort, &row.DstPort, &row.Bytes); err != nil {
			return nil, errs.New(errs.KindParse, "store: scanning flow row", err)
		}
		row.Proto = types.Proto(proto)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.New(errs.KindIO, "store: iterating flow rows", err)
	}
	return out, nil
}

// DecryptFlow opens a sealed flows.ciphertext blob back into a FlowEvent,
// used by diagnostics and tests rather than the hot query path (spec.md
// §4.8's query_flows intentionally leaves ciphertext undecoded).
func (s *Store) DecryptFlow(ciphertext []byte) (types.FlowEvent, error) {
	plaintext, err := decrypt(s.key, ciphertext)
	if err != nil {
		return types.FlowEvent{}, err
	}
	var flow types.FlowEvent
	if err := json.Unmarshal(plaintext, &flow); err != nil {
		return types.FlowEvent{}, errs.New(errs.KindParse, "store: unmarshaling decrypted flow", err)
	}
	return flow, nil
}

// GenerateKey creates a fresh random 32-byte AES-256 key, used by callers
// provisioning key.bin on first run.
func GenerateKey() ([]byte, error) {
	return randomBytes(keyLen)
}

// LoadOrCreateKeyFile reads the 32-byte key at path, generating and
// persisting a new one on first run, per spec.md §6: "sibling file
// key.bin holds the 32-byte encryption key... created on first run with
// the database's parent directory pre-created."
func LoadOrCreateKeyFile(path string) ([]byte, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, errs.New(errs.KindIO, "store: creating key directory", err)
		}
	}

	key, err := os.ReadFile(path)
	if err == nil {
		if len(key) != keyLen {
			return nil, errs.New(errs.KindEncryption, "store: load key file", fmt.Errorf("key file %s has %d bytes, want %d", path, len(key), keyLen))
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, errs.New(errs.KindIO, "store: reading key file", err)
	}

	key, genErr := GenerateKey()
	if genErr != nil {
		return nil, genErr
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, errs.New(errs.KindIO, "store: writing key file", err)
	}
	return key, nil
}
