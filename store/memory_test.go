package store

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grafana/monogit/gitobject"
	"github.com/grafana/monogit/packfile"
	"github.com/grafana/monogit/protocol"
	"github.com/grafana/monogit/protocol/hash"
	"github.com/grafana/monogit/protocol/object"
)

// buildCommitFixture builds one small commit rooted at path: a tree holding
// "README.md" and a "src" subdirectory holding "main.go". It returns the
// decoded objects ready for IngestPack and the commit's own id.
func buildCommitFixture(t *testing.T) ([]*packfile.DecodedObject, hash.Hash) {
	t.Helper()

	readme, err := gitobject.New(object.TypeBlob, []byte("hello\n"))
	require.NoError(t, err)

	main, err := gitobject.New(object.TypeBlob, []byte("package main\n"))
	require.NoError(t, err)

	srcTree := &gitobject.Tree{Entries: []gitobject.TreeEntry{
		{Mode: gitobject.ModeFile, Name: "main.go", ID: main.ID},
	}}
	srcTreeObj, err := gitobject.New(object.TypeTree, srcTree.Encode())
	require.NoError(t, err)

	rootTree := &gitobject.Tree{Entries: []gitobject.TreeEntry{
		{Mode: gitobject.ModeFile, Name: "README.md", ID: readme.ID},
		{Mode: gitobject.ModeTree, Name: "src", ID: srcTreeObj.ID},
	}}
	rootTreeObj, err := gitobject.New(object.TypeTree, rootTree.Encode())
	require.NoError(t, err)

	commit := &gitobject.Commit{
		Tree:      rootTreeObj.ID,
		Author:    object.Identity{Name: "a", Email: "a@example.com", Timestamp: 1, Timezone: "+0000"},
		Committer: object.Identity{Name: "a", Email: "a@example.com", Timestamp: 1, Timezone: "+0000"},
		Message:   "initial\n",
	}
	commitObj, err := gitobject.New(object.TypeCommit, commit.Encode())
	require.NoError(t, err)

	decoded := []*packfile.DecodedObject{
		{ID: readme.ID, Kind: object.TypeBlob, Payload: readme.Payload},
		{ID: main.ID, Kind: object.TypeBlob, Payload: main.Payload},
		{ID: srcTreeObj.ID, Kind: object.TypeTree, Payload: srcTreeObj.Payload},
		{ID: rootTreeObj.ID, Kind: object.TypeTree, Payload: rootTreeObj.Payload},
		{ID: commitObj.ID, Kind: object.TypeCommit, Payload: commitObj.Payload},
	}
	return decoded, commitObj.ID
}

func TestInMemoryStore_IngestAndHead(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := NewInMemoryStore()
	decoded, commitID := buildCommitFixture(t)
	require.NoError(t, s.IngestPack(ctx, "repo", decoded))

	require.NoError(t, s.ApplyRefCommand(ctx, "repo", protocol.RefUpdateRequest{
		OldRef: hash.Zero.String(), NewRef: commitID.String(), RefName: DefaultBranch,
	}))

	head, err := s.HeadObjectID(ctx, "repo")
	require.NoError(t, err)
	require.True(t, head.Is(commitID))
}

func TestInMemoryStore_HeadObjectID_NoRef(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := NewInMemoryStore()
	head, err := s.HeadObjectID(ctx, "nonexistent")
	require.NoError(t, err)
	require.True(t, head.IsZero())
}

func TestInMemoryStore_FullPack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := NewInMemoryStore()
	decoded, commitID := buildCommitFixture(t)
	require.NoError(t, s.IngestPack(ctx, "repo", decoded))
	require.NoError(t, s.ApplyRefCommand(ctx, "repo", protocol.RefUpdateRequest{
		OldRef: hash.Zero.String(), NewRef: commitID.String(), RefName: DefaultBranch,
	}))

	data, err := s.FullPack(ctx, "repo")
	require.NoError(t, err)
	require.NotEmpty(t, data)

	objects, trailer, err := packfile.Decode(bytes.NewReader(data), nil)
	require.NoError(t, err)
	require.False(t, trailer.IsZero())
	require.Len(t, objects, 5)
}

func TestInMemoryStore_ApplyRefCommand_PreconditionFailed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := NewInMemoryStore()
	decoded, commitID := buildCommitFixture(t)
	require.NoError(t, s.IngestPack(ctx, "repo", decoded))
	require.NoError(t, s.ApplyRefCommand(ctx, "repo", protocol.RefUpdateRequest{
		OldRef: hash.Zero.String(), NewRef: commitID.String(), RefName: DefaultBranch,
	}))

	err := s.ApplyRefCommand(ctx, "repo", protocol.RefUpdateRequest{
		OldRef: hash.Zero.String(), NewRef: commitID.String(), RefName: DefaultBranch,
	})
	require.Error(t, err)
	var precondition *protocol.RefPreconditionFailedError
	require.ErrorAs(t, err, &precondition)
}

func TestInMemoryStore_ApplyRefCommands_AllSucceed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := NewInMemoryStore()
	decoded, commitID := buildCommitFixture(t)
	require.NoError(t, s.IngestPack(ctx, "repo", decoded))

	errs := s.ApplyRefCommands(ctx, "repo", []protocol.RefUpdateRequest{
		{OldRef: hash.Zero.String(), NewRef: commitID.String(), RefName: DefaultBranch},
		{OldRef: hash.Zero.String(), NewRef: commitID.String(), RefName: "refs/heads/feature"},
	})
	require.Len(t, errs, 2)
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	refs, err := s.RefMap(ctx, "repo")
	require.NoError(t, err)
	require.Len(t, refs, 2)
}

func TestInMemoryStore_ApplyRefCommands_BatchRollsBackTogether(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := NewInMemoryStore()
	decoded, commitID := buildCommitFixture(t)
	require.NoError(t, s.IngestPack(ctx, "repo", decoded))

	// The second command's precondition is wrong (the ref doesn't exist
	// yet), so the whole batch must fail, including the first command
	// whose precondition was fine on its own.
	errs := s.ApplyRefCommands(ctx, "repo", []protocol.RefUpdateRequest{
		{OldRef: hash.Zero.String(), NewRef: commitID.String(), RefName: DefaultBranch},
		{OldRef: commitID.String(), NewRef: hash.Zero.String(), RefName: "refs/heads/missing"},
	})
	require.Len(t, errs, 2)
	require.Error(t, errs[0])
	require.Error(t, errs[1])
	var notFound *protocol.RefNotFoundError
	require.ErrorAs(t, errs[1], &notFound)

	refs, err := s.RefMap(ctx, "repo")
	require.NoError(t, err)
	require.Empty(t, refs, "no command from a rejected atomic batch should have applied")
}

func TestInMemoryStore_ApplyRefCommand_BothZeroIsRejected(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := NewInMemoryStore()

	err := s.ApplyRefCommand(ctx, "repo", protocol.RefUpdateRequest{
		OldRef: hash.Zero.String(), NewRef: hash.Zero.String(), RefName: DefaultBranch,
	})
	var invalid *protocol.RefCommandInvalidError
	require.ErrorAs(t, err, &invalid)

	errs := s.ApplyRefCommands(ctx, "repo", []protocol.RefUpdateRequest{
		{OldRef: hash.Zero.String(), NewRef: hash.Zero.String(), RefName: DefaultBranch},
	})
	require.Len(t, errs, 1)
	require.ErrorAs(t, errs[0], &invalid)

	refs, err := s.RefMap(ctx, "repo")
	require.NoError(t, err)
	require.Empty(t, refs, "a rejected zero-to-zero command must not create a ref")
}

func TestInMemoryStore_SubpathSynthesis(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := NewInMemoryStore()
	decoded, commitID := buildCommitFixture(t)
	require.NoError(t, s.IngestPack(ctx, "repo", decoded))
	require.NoError(t, s.ApplyRefCommand(ctx, "repo", protocol.RefUpdateRequest{
		OldRef: hash.Zero.String(), NewRef: commitID.String(), RefName: DefaultBranch,
	}))

	head, err := s.HeadObjectID(ctx, "repo/src")
	require.NoError(t, err)
	require.False(t, head.IsZero())
	require.False(t, head.Is(commitID))

	synthesized, err := s.GetObject(ctx, head)
	require.NoError(t, err)
	commit, err := gitobject.ParseCommit(synthesized.Payload)
	require.NoError(t, err)
	require.Len(t, commit.Parents, 1)
	require.True(t, commit.Parents[0].Is(commitID))

	// Calling again returns the same synthesized ref rather than growing
	// a new commit each time.
	again, err := s.HeadObjectID(ctx, "repo/src")
	require.NoError(t, err)
	require.True(t, again.Is(head))
}

func TestInMemoryStore_IncrementalPack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := NewInMemoryStore()
	decoded, commitID := buildCommitFixture(t)
	require.NoError(t, s.IngestPack(ctx, "repo", decoded))

	data, err := s.IncrementalPack(ctx, "repo", []hash.Hash{commitID}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	objects, _, err := packfile.Decode(bytes.NewReader(data), nil)
	require.NoError(t, err)
	require.Len(t, objects, 5)
}

func TestInMemoryStore_IncrementalPack_WithHave(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := NewInMemoryStore()
	decoded, commitID := buildCommitFixture(t)
	require.NoError(t, s.IngestPack(ctx, "repo", decoded))

	// Client already has the one and only commit: nothing new to send.
	data, err := s.IncrementalPack(ctx, "repo", []hash.Hash{commitID}, []hash.Hash{commitID})
	require.NoError(t, err)

	objects, _, err := packfile.Decode(bytes.NewReader(data), nil)
	require.NoError(t, err)
	require.Empty(t, objects)
}

func TestInMemoryStore_GetObject_Missing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := NewInMemoryStore()
	_, err := s.GetObject(ctx, hash.MustFromHex("0000000000000000000000000000000000000001"))
	require.Error(t, err)
	var missing *MissingObjectError
	require.ErrorAs(t, err, &missing)
}
