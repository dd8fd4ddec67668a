package update

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/splice/pkg/filemerge"
	"github.com/odvcencio/splice/pkg/match"
	"github.com/odvcencio/splice/pkg/merge"
	"github.com/odvcencio/splice/pkg/mergestate"
	"github.com/odvcencio/splice/pkg/overlay"
	"github.com/odvcencio/splice/pkg/repo"
)

func TestUpdateToOlderRevision(t *testing.T) {
	r := newRepo(t)
	c1 := commit(t, r, "one", map[string]string{"a": "one\n"})
	commit(t, r, "two", map[string]string{"a": "two\n", "b": "bee\n"})

	res := mustUpdate(t, r, Options{Target: c1})
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Removed)
	assert.Zero(t, res.Unresolved)
	assert.Equal(t, "one\n", readFile(t, r, "a"))
	assert.False(t, exists(r, "b"))

	p1, p2 := parents(t, r)
	assert.Equal(t, c1, p1)
	assert.Empty(t, p2)
	head, err := r.Head()
	require.NoError(t, err)
	assert.Equal(t, string(c1), head, "HEAD detaches at an older revision")
	assert.False(t, exists(r, ".splice/updatestate"))

	moves, err := r.ReadReflog("HEAD", 1)
	require.NoError(t, err)
	require.Len(t, moves, 1)
	assert.Equal(t, c1, moves[0].NewHash)
	assert.Equal(t, "update: moving to "+c1.Short(), moves[0].Reason)

	wc, err := r.WorkingCopy()
	require.NoError(t, err)
	assert.False(t, wc.Dirty())
}

func TestUpdateFollowsBranch(t *testing.T) {
	r := newRepo(t)
	c1 := commit(t, r, "one", map[string]string{"a": "one\n"})
	c2 := commit(t, r, "two", map[string]string{"a": "two\n"})
	mustUpdate(t, r, Options{Target: c1})

	mustUpdate(t, r, Options{Target: c2, Branch: repo.DefaultBranch})
	head, err := r.Head()
	require.NoError(t, err)
	assert.Equal(t, "refs/heads/"+repo.DefaultBranch, head)
	assert.Equal(t, "two\n", readFile(t, r, "a"))
}

func TestUpdateToCurrentRevisionIsNoop(t *testing.T) {
	r := newRepo(t)
	c1 := commit(t, r, "one", map[string]string{"a": "one\n"})
	writeFile(t, r, "a", "local\n")

	res := mustUpdate(t, r, Options{Target: c1})
	assert.True(t, res.Noop)
	assert.Equal(t, "local\n", readFile(t, r, "a"))
	head, err := r.Head()
	require.NoError(t, err)
	assert.Equal(t, "refs/heads/"+repo.DefaultBranch, head)
}

func TestUpdateCarriesLocalChangesLinearly(t *testing.T) {
	r := newRepo(t)
	c1 := commit(t, r, "one", map[string]string{"a": "one\n", "b": "bee\n"})
	commit(t, r, "two", map[string]string{"b": "bee two\n"})
	writeFile(t, r, "a", "local\n")

	mustUpdate(t, r, Options{Target: c1})
	assert.Equal(t, "local\n", readFile(t, r, "a"))
	assert.Equal(t, "bee\n", readFile(t, r, "b"))
	wc, err := r.WorkingCopy()
	require.NoError(t, err)
	assert.Equal(t, repo.StatusModified, wc.Status("a"))
}

func TestUpdateDirtyAcrossBranches(t *testing.T) {
	r := newRepo(t)
	_, main, _ := history(t, r, "1\n2\n3\n4\n5\n")
	writeFile(t, r, "a", "1\n2\n3\n4\nlocal\n")

	_, err := Update(context.Background(), r, Options{Target: main})
	require.ErrorIs(t, err, merge.ErrUncommittedChanges)
	assert.Contains(t, err.Error(), "update --clean")

	_, err = Update(context.Background(), r, Options{Target: main, UpdateCheck: CheckNoConflict})
	require.ErrorIs(t, err, merge.ErrConflictingChanges)
	assert.Equal(t, "1\n2\n3\n4\nlocal\n", readFile(t, r, "a"), "refused updates leave files alone")

	res := mustUpdate(t, r, Options{Target: main, UpdateCheck: CheckNone})
	assert.Equal(t, 1, res.Unresolved)
	assert.Contains(t, readFile(t, r, "a"), "<<<<<<< working copy")
	assert.Contains(t, readFile(t, r, "a"), ">>>>>>> destination")
	p1, p2 := parents(t, r)
	assert.Equal(t, main, p1)
	assert.Empty(t, p2)

	_, err = Update(context.Background(), r, Options{Target: main})
	require.ErrorIs(t, err, merge.ErrUnresolvedConflicts)
}

func TestUpdateCleanDiscardsLocalChanges(t *testing.T) {
	r := newRepo(t)
	_, main, _ := history(t, r, "1\n2\n3\n4\n5\n")
	writeFile(t, r, "a", "local\n")
	writeFile(t, r, "c", "sea local\n")

	mustUpdate(t, r, Options{Target: main, Force: true})
	assert.Equal(t, "1\n2\n3\n4\nmain\n", readFile(t, r, "a"))
	assert.False(t, exists(r, "c"))
	wc, err := r.WorkingCopy()
	require.NoError(t, err)
	assert.False(t, wc.Dirty())
}

func TestMergeCleanly(t *testing.T) {
	r := newRepo(t)
	_, main, side := history(t, r, "side\n2\n3\n4\n5\n")

	res := mustUpdate(t, r, Options{Target: main, BranchMerge: true})
	assert.Equal(t, 1, res.Merged)
	assert.Zero(t, res.Unresolved)
	assert.Equal(t, "side\n2\n3\n4\nmain\n", readFile(t, r, "a"))
	assert.Equal(t, "sea\n", readFile(t, r, "c"))

	p1, p2 := parents(t, r)
	assert.Equal(t, side, p1)
	assert.Equal(t, main, p2)
	head, err := r.Head()
	require.NoError(t, err)
	assert.Equal(t, string(side), head, "a merge does not move HEAD")

	_, err = Update(context.Background(), r, Options{Target: main})
	require.ErrorIs(t, err, merge.ErrOutstandingMerge)

	h, err := r.Commit("merge", "test-author")
	require.NoError(t, err)
	rev, err := r.Revision(h)
	require.NoError(t, err)
	assert.Len(t, rev.Parents(), 2)
}

func TestMergePreconditions(t *testing.T) {
	r := newRepo(t)
	base, main, _ := history(t, r, "side\n2\n3\n4\n5\n")

	_, err := Update(context.Background(), r, Options{Target: base, BranchMerge: true})
	require.ErrorIs(t, err, merge.ErrMergeWithAncestor)

	writeFile(t, r, "c", "dirty\n")
	_, err = Update(context.Background(), r, Options{Target: main, BranchMerge: true})
	require.ErrorIs(t, err, merge.ErrUncommittedChanges)

	mustUpdate(t, r, Options{Target: base, Force: true})
	_, err = Update(context.Background(), r, Options{Target: main, BranchMerge: true})
	require.ErrorIs(t, err, merge.ErrNothingToMerge)
}

func TestMergeConflictThenResolve(t *testing.T) {
	r := newRepo(t)
	_, main, _ := history(t, r, "1\n2\n3\n4\nside\n")

	res := mustUpdate(t, r, Options{Target: main, BranchMerge: true})
	assert.Equal(t, 1, res.Unresolved)
	assert.Contains(t, readFile(t, r, "a"), ">>>>>>> merge rev")
	assert.NotEmpty(t, res.Warnings)

	recs, err := Records(r)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "a", recs[0].Path)
	assert.Equal(t, mergestate.Unresolved, recs[0].State)

	_, err = r.Commit("too early", "test-author")
	require.ErrorIs(t, err, merge.ErrUnresolvedConflicts)

	_, err = Resolve(context.Background(), r, ResolveOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--all")

	other, err := filemerge.Tool("other")
	require.NoError(t, err)
	rres, err := Resolve(context.Background(), r, ResolveOptions{All: true, Merger: other})
	require.NoError(t, err)
	assert.Zero(t, rres.Unresolved)
	assert.Equal(t, "1\n2\n3\n4\nmain\n", readFile(t, r, "a"))

	_, err = r.Commit("merge", "test-author")
	require.NoError(t, err)
	recs, err = Records(r)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestResolveMarkAndUnmark(t *testing.T) {
	r := newRepo(t)
	_, main, _ := history(t, r, "1\n2\n3\n4\nside\n")
	mustUpdate(t, r, Options{Target: main, BranchMerge: true})
	writeFile(t, r, "a", "1\n2\n3\n4\nboth\n")

	res, err := Resolve(context.Background(), r, ResolveOptions{Paths: []string{"a", "missing"}, Mark: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, res.Marked)
	assert.Zero(t, res.Unresolved)
	assert.Contains(t, res.Warnings, "missing: no merge record")
	assert.Equal(t, "1\n2\n3\n4\nboth\n", readFile(t, r, "a"), "marking never touches content")

	res, err = Resolve(context.Background(), r, ResolveOptions{All: true, Unmark: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, res.Marked)
	assert.Equal(t, 1, res.Unresolved)

	_, err = Resolve(context.Background(), r, ResolveOptions{All: true, Mark: true, Unmark: true})
	require.Error(t, err)
}

func TestResolveOutsideMerge(t *testing.T) {
	r := newRepo(t)
	commit(t, r, "one", map[string]string{"a": "one\n"})
	_, err := Resolve(context.Background(), r, ResolveOptions{All: true})
	require.ErrorIs(t, err, merge.ErrNoMergeInProgress)
}

func TestAbortRestoresFirstParent(t *testing.T) {
	r := newRepo(t)
	_, main, side := history(t, r, "1\n2\n3\n4\nside\n")
	mustUpdate(t, r, Options{Target: main, BranchMerge: true})

	_, err := Abort(context.Background(), r, nil)
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n3\n4\nside\n", readFile(t, r, "a"))
	p1, p2 := parents(t, r)
	assert.Equal(t, side, p1)
	assert.Empty(t, p2)
	recs, err := Records(r)
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = Abort(context.Background(), r, nil)
	require.ErrorIs(t, err, merge.ErrNoMergeInProgress)
}

func TestInterruptedUpdateBlocksUntilRecovered(t *testing.T) {
	r := newRepo(t)
	c1 := commit(t, r, "one", map[string]string{"a": "one\n"})
	c2 := commit(t, r, "two", map[string]string{"a": "two\n", "b": "bee\n"})
	mustUpdate(t, r, Options{Target: c1})

	// a crash after the first file was written
	require.NoError(t, writeMarker(r.UpdateStatePath(), marker{Target: string(c2), Operation: "x"}))
	writeFile(t, r, "a", "two\n")

	_, err := Update(context.Background(), r, Options{Target: c2})
	require.ErrorIs(t, err, merge.ErrInterruptedUpdate)
	assert.Contains(t, err.Error(), "splice recover")

	_, err = Recover(context.Background(), r, nil)
	require.NoError(t, err)
	assert.Equal(t, "two\n", readFile(t, r, "a"))
	assert.Equal(t, "bee\n", readFile(t, r, "b"))
	p1, _ := parents(t, r)
	assert.Equal(t, c2, p1)
	assert.False(t, exists(r, ".splice/updatestate"))

	_, err = Recover(context.Background(), r, nil)
	require.ErrorIs(t, err, ErrNothingToRecover)
}

func TestUntrackedConflictAbortsBeforeWriting(t *testing.T) {
	r := newRepo(t)
	c1 := commit(t, r, "one", map[string]string{"a": "one\n"})
	c2 := commit(t, r, "two", map[string]string{"a": "two\n", "new.txt": "remote\n"})
	mustUpdate(t, r, Options{Target: c1})
	writeFile(t, r, "new.txt", "mine\n")

	res, err := Update(context.Background(), r, Options{Target: c2})
	require.ErrorIs(t, err, merge.ErrUntrackedConflict)
	assert.Nil(t, res)

	assert.Equal(t, "one\n", readFile(t, r, "a"), "no file may be written before the abort")
	assert.Equal(t, "mine\n", readFile(t, r, "new.txt"))
	assert.False(t, exists(r, ".splice/updatestate"))
	assert.False(t, exists(r, "new.txt.orig"))
	p1, p2 := parents(t, r)
	assert.Equal(t, c1, p1)
	assert.Empty(t, p2)
}

func TestRecoverAbandonsInterruptedMerge(t *testing.T) {
	r := newRepo(t)
	_, main, side := history(t, r, "side\n2\n3\n4\n5\n")
	require.NoError(t, writeMarker(r.UpdateStatePath(), marker{Target: string(main), BranchMerge: true}))
	writeFile(t, r, "a", "half written\n")

	res, err := Recover(context.Background(), r, nil)
	require.NoError(t, err)
	assert.Equal(t, "side\n2\n3\n4\n5\n", readFile(t, r, "a"))
	p1, p2 := parents(t, r)
	assert.Equal(t, side, p1)
	assert.Empty(t, p2)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[len(res.Warnings)-1], "merge again")
}

func TestMergeIntoOverlayLeavesDiskAlone(t *testing.T) {
	r := newRepo(t)
	_, main, side := history(t, r, "side\n2\n3\n4\n5\n")
	sideRev, err := r.Revision(side)
	require.NoError(t, err)
	ov := overlay.New(sideRev)

	res := mustUpdate(t, r, Options{Target: main, BranchMerge: true, WorkingCopy: ov})
	assert.Equal(t, 1, res.Merged)
	data, err := ov.Data("a")
	require.NoError(t, err)
	assert.Equal(t, "side\n2\n3\n4\nmain\n", string(data))
	assert.Equal(t, []string{"a"}, ov.Changed())

	assert.Equal(t, "side\n2\n3\n4\n5\n", readFile(t, r, "a"))
	p1, p2 := parents(t, r)
	assert.Equal(t, side, p1)
	assert.Empty(t, p2)
	assert.False(t, r.HasMergeState() && hasRecords(t, r))
}

func hasRecords(t *testing.T, r *repo.Repo) bool {
	t.Helper()
	recs, err := Records(r)
	require.NoError(t, err)
	return len(recs) > 0
}

func TestHaltStopsRemainingMerges(t *testing.T) {
	r := newRepo(t)
	cfg := repo.DefaultConfig()
	cfg.Merge.OnFailure = "halt"
	require.NoError(t, r.WriteConfig(cfg))

	base := commit(t, r, "base", map[string]string{"a": "a\n", "d": "d\n"})
	main := commit(t, r, "main", map[string]string{"a": "a main\n", "d": "d main\n"})
	mustUpdate(t, r, Options{Target: base})
	commit(t, r, "side", map[string]string{"a": "a side\n", "d": "d side\n"})

	res := mustUpdate(t, r, Options{Target: main, BranchMerge: true})
	assert.True(t, res.Halted)
	assert.Equal(t, 2, res.Unresolved)
	assert.Equal(t, "d side\n", readFile(t, r, "d"), "the halted merge never ran")
}

func TestPartialUpdateKeepsTrackingState(t *testing.T) {
	r := newRepo(t)
	c1 := commit(t, r, "one", map[string]string{"a": "one\n", "b": "bee\n"})
	c2 := commit(t, r, "two", map[string]string{"a": "two\n", "b": "bee two\n"})

	mustUpdate(t, r, Options{Target: c1, Matcher: match.Exact("a")})
	assert.Equal(t, "one\n", readFile(t, r, "a"))
	assert.Equal(t, "bee two\n", readFile(t, r, "b"))
	p1, _ := parents(t, r)
	assert.Equal(t, c2, p1)
}

func TestParseCheck(t *testing.T) {
	for _, s := range []string{"none", "linear", "noconflict"} {
		c, err := ParseCheck(s)
		require.NoError(t, err)
		assert.Equal(t, Check(s), c)
	}
	_, err := ParseCheck("abort")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "noconflict"))
}
