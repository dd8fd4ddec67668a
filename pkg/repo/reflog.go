package repo

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/odvcencio/splice/pkg/object"
)

// ReflogEntry is one recorded move of a ref. The null revision is
// recorded as an empty hash.
type ReflogEntry struct {
	Ref       string
	OldHash   object.Hash
	NewHash   object.Hash
	Timestamp int64
	Reason    string
}

func reflogPath(dir, ref string) string {
	return filepath.Join(dir, "logs", filepath.FromSlash(ref))
}

func reflogHash(h object.Hash) string {
	if h == "" {
		return NullSpec
	}
	return string(h)
}

// Lines are "<old> <new> <unix>\t<reason>"; reasons may contain spaces.
func formatReflogLine(oldHash, newHash object.Hash, ts int64, reason string) string {
	reason = strings.ReplaceAll(strings.TrimSpace(reason), "\n", " ")
	if reason == "" {
		reason = "update"
	}
	return fmt.Sprintf("%s %s %d\t%s\n", reflogHash(oldHash), reflogHash(newHash), ts, reason)
}

func parseReflogLine(ref, line string) (ReflogEntry, bool) {
	head, reason, ok := strings.Cut(line, "\t")
	if !ok {
		return ReflogEntry{}, false
	}
	fields := strings.Fields(head)
	if len(fields) != 3 {
		return ReflogEntry{}, false
	}
	ts, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return ReflogEntry{}, false
	}
	e := ReflogEntry{Ref: ref, Timestamp: ts, Reason: reason}
	if fields[0] != NullSpec {
		e.OldHash = object.Hash(fields[0])
	}
	if fields[1] != NullSpec {
		e.NewHash = object.Hash(fields[1])
	}
	return e, true
}

func (r *Repo) appendReflog(ref string, oldHash, newHash object.Hash, reason string) error {
	if ref = strings.TrimSpace(ref); ref == "" {
		return nil
	}
	path := reflogPath(r.Dir, ref)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("reflog: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("reflog: %w", err)
	}
	_, werr := f.WriteString(formatReflogLine(oldHash, newHash, time.Now().Unix(), reason))
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return fmt.Errorf("reflog: %w", werr)
	}
	return nil
}

// ReadReflog returns up to limit entries of ref, newest first. A limit of
// zero returns every entry. An empty ref or "HEAD" reads the log of HEAD
// itself, so detached moves made by updates show up there.
func (r *Repo) ReadReflog(ref string, limit int) ([]ReflogEntry, error) {
	name := reflogRefName(ref)
	f, err := os.Open(reflogPath(r.Dir, name))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read reflog %s: %w", name, err)
	}
	defer f.Close()

	var entries []ReflogEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		e, ok := parseReflogLine(name, sc.Text())
		if !ok {
			continue
		}
		entries = append(entries, e)
		if limit > 0 && len(entries) > 2*limit {
			entries = append(entries[:0], entries[len(entries)-limit:]...)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read reflog %s: %w", name, err)
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]ReflogEntry, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e
	}
	return out, nil
}

func reflogRefName(ref string) string {
	switch ref = strings.TrimSpace(ref); {
	case ref == "" || ref == "HEAD":
		return "HEAD"
	case strings.HasPrefix(ref, "refs/"):
		return ref
	default:
		return "refs/heads/" + ref
	}
}
