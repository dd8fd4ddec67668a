package mergestate

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/odvcencio/splice/pkg/manifest"
	"github.com/odvcencio/splice/pkg/object"
	"github.com/odvcencio/splice/pkg/plan"
)

// FileState is the resolution state of one record.
type FileState string

const (
	Unresolved     FileState = "u"
	Resolving      FileState = "s"
	Resolved       FileState = "r"
	PathUnresolved FileState = "pu"
	PathResolved   FileState = "pr"
)

// Result codes recorded once a merge ran.
const (
	// ResultNone means no content merge was needed.
	ResultNone     = -1
	ResultClean    = 0
	ResultConflict = 1
)

// Record is the state of one conflicted path.
type Record struct {
	Path  string
	State FileState

	// LocalKey is the blob holding the local content before the merge
	// touched it, "" when the local side is absent.
	LocalKey     object.Hash
	LocalPath    string
	LocalFlag    manifest.Flag
	AncestorPath string
	AncestorNode object.Hash
	AncestorFlag manifest.Flag
	OtherPath    string
	OtherNode    object.Hash
	OtherFlag    manifest.Flag
	AncestorRev  object.Hash

	// Result is nil until the path was resolved in this operation.
	Result       *int
	ResultAction plan.Kind

	// Path conflicts only.
	Renamed string
	Origin  string
}

// IsPathConflict reports whether r records a file/directory clash rather
// than a content merge.
func (r *Record) IsPathConflict() bool {
	return r.State == PathUnresolved || r.State == PathResolved
}

// Labels name the sides in conflict markers and messages.
type Labels struct {
	Local, Other, Base string
}

const (
	metaLocal     = "local"
	metaOther     = "other"
	metaLabelL    = "label-local"
	metaLabelO    = "label-other"
	metaLabelB    = "label-base"
	metaOperation = "operation"
)

// Start begins a new merge between local and other, discarding any
// previous state.
func (s *Store) Start(local, other object.Hash, labels Labels, operation string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("mergestate: begin: %w", err)
	}
	defer tx.Rollback()
	for _, q := range []string{"DELETE FROM meta", "DELETE FROM files", "DELETE FROM extras"} {
		if _, err := tx.Exec(q); err != nil {
			return fmt.Errorf("mergestate: reset: %w", err)
		}
	}
	meta := map[string]string{
		metaLocal:     string(local),
		metaOther:     string(other),
		metaLabelL:    labels.Local,
		metaLabelO:    labels.Other,
		metaLabelB:    labels.Base,
		metaOperation: operation,
	}
	for k, v := range meta {
		if _, err := tx.Exec("INSERT INTO meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("mergestate: write %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mergestate: commit: %w", err)
	}
	return nil
}

// Active reports whether a merge was started and not reset.
func (s *Store) Active() (bool, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM meta").Scan(&n); err != nil {
		return false, fmt.Errorf("mergestate: active: %w", err)
	}
	return n > 0, nil
}

func (s *Store) meta(key string) (string, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("mergestate: read %s: %w", key, err)
	}
	return v, nil
}

// Local returns the local node of the active merge.
func (s *Store) Local() (object.Hash, error) {
	v, err := s.meta(metaLocal)
	return object.Hash(v), err
}

// Other returns the other node of the active merge.
func (s *Store) Other() (object.Hash, error) {
	v, err := s.meta(metaOther)
	return object.Hash(v), err
}

// Operation returns the id passed to Start.
func (s *Store) Operation() (string, error) {
	return s.meta(metaOperation)
}

// Labels returns the labels passed to Start.
func (s *Store) Labels() (Labels, error) {
	var l Labels
	var err error
	if l.Local, err = s.meta(metaLabelL); err != nil {
		return l, err
	}
	if l.Other, err = s.meta(metaLabelO); err != nil {
		return l, err
	}
	l.Base, err = s.meta(metaLabelB)
	return l, err
}

// Add records a content merge for rec.Path as unresolved.
func (s *Store) Add(rec Record) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO files
		(path, state, local_key, local_path, local_flag, ancestor_path, ancestor_node, ancestor_flag,
		 other_path, other_node, other_flag, ancestor_rev, result, result_action, renamed, origin, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, '', '', '', CURRENT_TIMESTAMP)`,
		rec.Path, Unresolved, string(rec.LocalKey), rec.LocalPath, string(rec.LocalFlag),
		rec.AncestorPath, string(rec.AncestorNode), string(rec.AncestorFlag), rec.OtherPath, string(rec.OtherNode),
		string(rec.OtherFlag), string(rec.AncestorRev))
	if err != nil {
		return fmt.Errorf("mergestate: add %s: %w", rec.Path, err)
	}
	return nil
}

// AddPathConflict records that path clashed with a directory and its file
// was moved to renamed. origin is "l" or "r".
func (s *Store) AddPathConflict(path, renamed, origin string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO files (path, state, renamed, origin, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)`, path, PathUnresolved, renamed, origin)
	if err != nil {
		return fmt.Errorf("mergestate: add path conflict %s: %w", path, err)
	}
	return nil
}

const recordColumns = `path, state, local_key, local_path, local_flag, ancestor_path, ancestor_node, ancestor_flag,
	other_path, other_node, other_flag, ancestor_rev, result, result_action, renamed, origin`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		r                                              Record
		state, localKey, localFlag, ancNode, otherNode string
		ancFlag, otherFlag, ancRev, action             string
		result                                         sql.NullInt64
	)
	err := row.Scan(&r.Path, &state, &localKey, &r.LocalPath, &localFlag, &r.AncestorPath, &ancNode, &ancFlag,
		&r.OtherPath, &otherNode, &otherFlag, &ancRev, &result, &action, &r.Renamed, &r.Origin)
	if err != nil {
		return nil, err
	}
	r.State = FileState(state)
	r.LocalKey = object.Hash(localKey)
	r.LocalFlag = manifest.Flag(localFlag)
	r.AncestorNode = object.Hash(ancNode)
	r.AncestorFlag = manifest.Flag(ancFlag)
	r.OtherNode = object.Hash(otherNode)
	r.OtherFlag = manifest.Flag(otherFlag)
	r.AncestorRev = object.Hash(ancRev)
	if result.Valid {
		v := int(result.Int64)
		r.Result = &v
	}
	if action != "" {
		k, err := plan.ParseKind(action)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", r.Path, err)
		}
		r.ResultAction = k
	}
	return &r, nil
}

// Get returns the record for path.
func (s *Store) Get(path string) (*Record, error) {
	row := s.db.QueryRow("SELECT "+recordColumns+" FROM files WHERE path = ?", path)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("mergestate: get %s: %w", path, err)
	}
	return r, nil
}

// Records returns every record in path order.
func (s *Store) Records() ([]*Record, error) {
	rows, err := s.db.Query("SELECT " + recordColumns + " FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("mergestate: records: %w", err)
	}
	defer rows.Close()
	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("mergestate: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetState moves path to state.
func (s *Store) SetState(path string, state FileState) error {
	res, err := s.db.Exec("UPDATE files SET state = ?, updated_at = CURRENT_TIMESTAMP WHERE path = ?", state, path)
	if err != nil {
		return fmt.Errorf("mergestate: set state %s: %w", path, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return nil
}

// SetResult stores the outcome of resolving path. action is zero when the
// resolution needs no follow-up on the tracking store.
func (s *Store) SetResult(path string, code int, action plan.Kind) error {
	var act string
	if action.Valid() {
		act = action.Code()
	}
	res, err := s.db.Exec("UPDATE files SET result = ?, result_action = ?, updated_at = CURRENT_TIMESTAMP WHERE path = ?",
		code, act, path)
	if err != nil {
		return fmt.Errorf("mergestate: set result %s: %w", path, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return nil
}

// Unresolved lists paths still needing a decision, content merges and path
// conflicts alike.
func (s *Store) Unresolved() ([]string, error) {
	rows, err := s.db.Query("SELECT path FROM files WHERE state IN (?, ?) ORDER BY path", Unresolved, PathUnresolved)
	if err != nil {
		return nil, fmt.Errorf("mergestate: unresolved: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UnresolvedCount counts Unresolved.
func (s *Store) UnresolvedCount() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM files WHERE state IN (?, ?)", Unresolved, PathUnresolved).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("mergestate: count unresolved: %w", err)
	}
	return n, nil
}

// Remove drops the record for path.
func (s *Store) Remove(path string) error {
	if _, err := s.db.Exec("DELETE FROM files WHERE path = ?", path); err != nil {
		return fmt.Errorf("mergestate: remove %s: %w", path, err)
	}
	return nil
}

// AddCommitInfo stores a per-path annotation for the merge commit.
func (s *Store) AddCommitInfo(path, key, value string) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO extras (path, key, value) VALUES (?, ?, ?)", path, key, value)
	if err != nil {
		return fmt.Errorf("mergestate: commit info %s: %w", path, err)
	}
	return nil
}

// CommitInfo returns every annotation by path.
func (s *Store) CommitInfo() (map[string]map[string]string, error) {
	rows, err := s.db.Query("SELECT path, key, value FROM extras ORDER BY path, key")
	if err != nil {
		return nil, fmt.Errorf("mergestate: commit info: %w", err)
	}
	defer rows.Close()
	out := make(map[string]map[string]string)
	for rows.Next() {
		var p, k, v string
		if err := rows.Scan(&p, &k, &v); err != nil {
			return nil, err
		}
		if out[p] == nil {
			out[p] = make(map[string]string)
		}
		out[p][k] = v
	}
	return out, rows.Err()
}

// Counts tallies recorded results: no merge needed counts as updated; a
// clean result is removed when it resolved to a removal and merged
// otherwise.
func (s *Store) Counts() (updated, merged, removed int, err error) {
	recs, err := s.Records()
	if err != nil {
		return 0, 0, 0, err
	}
	for _, r := range recs {
		if r.Result == nil {
			continue
		}
		switch *r.Result {
		case ResultNone:
			updated++
		case ResultClean:
			if r.ResultAction == plan.Remove {
				removed++
			} else {
				merged++
			}
		}
	}
	return updated, merged, removed, nil
}

// ExtraActions groups paths by the tracking-store action their resolution
// requires.
func (s *Store) ExtraActions() (map[plan.Kind][]string, error) {
	recs, err := s.Records()
	if err != nil {
		return nil, err
	}
	out := make(map[plan.Kind][]string)
	for _, r := range recs {
		if r.Result != nil && r.ResultAction.Valid() {
			out[r.ResultAction] = append(out[r.ResultAction], r.Path)
		}
	}
	for _, paths := range out {
		sort.Strings(paths)
	}
	return out, nil
}

// Reset discards all state.
func (s *Store) Reset() error {
	for _, q := range []string{"DELETE FROM meta", "DELETE FROM files", "DELETE FROM extras"} {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("mergestate: reset: %w", err)
		}
	}
	return nil
}
