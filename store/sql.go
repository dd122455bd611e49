package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/grafana/monogit/gitobject"
	"github.com/grafana/monogit/node"
	"github.com/grafana/monogit/packfile"
	"github.com/grafana/monogit/protocol"
	"github.com/grafana/monogit/protocol/hash"
	"github.com/grafana/monogit/protocol/object"
	"github.com/grafana/monogit/retry"
)

// SQLStore is a database/sql backed ObjectStore against the abstract
// commit/node/node_data/refs schema. It speaks MySQL (via
// go-sql-driver/mysql); the node and node_data writes in IngestPack use
// MySQL's INSERT ... ON DUPLICATE KEY UPDATE upsert form.
type SQLStore struct {
	db    *sql.DB
	idgen *node.IDGenerator
}

// OpenSQLStore opens dsn (a go-sql-driver/mysql data source name, e.g.
// "user:pass@tcp(host:3306)/gust?parseTime=true") and verifies it's
// reachable.
func OpenSQLStore(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sql store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, protocol.NewStoreUnavailableError(err)
	}
	return &SQLStore{db: db, idgen: node.NewIDGenerator()}, nil
}

// NewSQLStore wraps an already-opened *sql.DB (the teacher's convention for
// connection pools owned by the caller's lifecycle, not this package's).
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, idgen: node.NewIDGenerator()}
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) HeadObjectID(ctx context.Context, path string) (hash.Hash, error) {
	refID, err := retry.Do(ctx, func() (string, error) {
		var id string
		err := s.db.QueryRowContext(ctx,
			`SELECT ref_git_id FROM refs WHERE repo_path = ? AND ref_name = ?`,
			path, DefaultBranch,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		if err != nil {
			return "", protocol.NewStoreUnavailableError(err)
		}
		return id, nil
	})
	if err != nil {
		return nil, err
	}
	if refID != "" {
		return hash.FromHex(refID)
	}

	// No ref at path itself. Look for the longest ancestor ref path
	// whose repo_path is a strict prefix of path.
	type ancestor struct {
		path, refID string
	}
	candidates, err := retry.Do(ctx, func() ([]ancestor, error) {
		rows, err := s.db.QueryContext(ctx,
			`SELECT repo_path, ref_git_id FROM refs WHERE ref_name = ? AND ? LIKE CONCAT(repo_path, '/%')`,
			DefaultBranch, path,
		)
		if err != nil {
			return nil, protocol.NewStoreUnavailableError(err)
		}
		defer rows.Close()

		var out []ancestor
		for rows.Next() {
			var a ancestor
			if err := rows.Scan(&a.path, &a.refID); err != nil {
				return nil, protocol.NewStoreUnavailableError(err)
			}
			out = append(out, a)
		}
		return out, rows.Err()
	})
	if err != nil {
		return nil, err
	}

	var best *ancestor
	for i := range candidates {
		if best == nil || len(candidates[i].path) > len(best.path) {
			best = &candidates[i]
		}
	}
	if best == nil {
		return hash.Zero, nil
	}

	rootID, err := hash.FromHex(best.refID)
	if err != nil {
		return nil, fmt.Errorf("parsing ancestor ref id: %w", err)
	}
	return s.synthesizeChildCommit(ctx, path, best.path, rootID)
}

// synthesizeChildCommit mirrors InMemoryStore.synthesizeChildCommit against
// the commit/node/refs tables: it loads the root commit and the node
// already recorded at path, builds a child commit pointing at that node's
// tree with the root commit as its sole parent, and persists both the
// commit and a new ref.
func (s *SQLStore) synthesizeChildCommit(ctx context.Context, path, rootPath string, rootID hash.Hash) (hash.Hash, error) {
	rootMeta, err := s.commitMetaByGitID(ctx, rootID.String())
	if err != nil {
		return nil, err
	}
	if rootMeta == nil {
		return hash.Zero, nil
	}
	root, err := gitobject.ParseCommit(rootMeta.Payload)
	if err != nil {
		return nil, fmt.Errorf("parsing root commit %s: %w", rootID, err)
	}

	treeGitID, err := retry.Do(ctx, func() (string, error) {
		var id string
		err := s.db.QueryRowContext(ctx,
			`SELECT git_id FROM node WHERE path = ? AND node_kind = 'tree'`, path,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		if err != nil {
			return "", protocol.NewStoreUnavailableError(err)
		}
		return id, nil
	})
	if err != nil {
		return nil, err
	}
	if treeGitID == "" {
		return hash.Zero, nil
	}
	treeID, err := hash.FromHex(treeGitID)
	if err != nil {
		return nil, fmt.Errorf("parsing synthesized tree id: %w", err)
	}

	child := &gitobject.Commit{
		Tree:      treeID,
		Parents:   []hash.Hash{rootID},
		Author:    root.Author,
		Committer: root.Committer,
		Message:   root.Message,
	}
	meta, err := gitobject.New(object.TypeCommit, child.Encode())
	if err != nil {
		return nil, fmt.Errorf("hashing synthesized commit: %w", err)
	}

	now := nowUTC()
	err = retry.DoVoid(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return protocol.NewStoreUnavailableError(err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO commit (git_id, tree, meta, repo_path, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			meta.ID.String(), treeGitID, meta.Payload, path, now, now,
		); err != nil {
			return protocol.NewStoreUnavailableError(err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO refs (repo_path, ref_name, ref_git_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			path, DefaultBranch, meta.ID.String(), now, now,
		); err != nil {
			return protocol.NewStoreUnavailableError(err)
		}
		if err := tx.Commit(); err != nil {
			return protocol.NewStoreUnavailableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return meta.ID, nil
}

func (s *SQLStore) commitMetaByGitID(ctx context.Context, gitID string) (*gitobject.Metadata, error) {
	return retry.Do(ctx, func() (*gitobject.Metadata, error) {
		var payload []byte
		err := s.db.QueryRowContext(ctx, `SELECT meta FROM commit WHERE git_id = ?`, gitID).Scan(&payload)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, protocol.NewStoreUnavailableError(err)
		}
		return gitobject.New(object.TypeCommit, payload)
	})
}

func (s *SQLStore) RefMap(ctx context.Context, path string) (map[string]string, error) {
	return retry.Do(ctx, func() (map[string]string, error) {
		rows, err := s.db.QueryContext(ctx,
			`SELECT ref_git_id, ref_name FROM refs WHERE repo_path = ?`, path,
		)
		if err != nil {
			return nil, protocol.NewStoreUnavailableError(err)
		}
		defer rows.Close()

		m := make(map[string]string)
		for rows.Next() {
			var id, name string
			if err := rows.Scan(&id, &name); err != nil {
				return nil, protocol.NewStoreUnavailableError(err)
			}
			m[id] = name
		}
		return m, rows.Err()
	})
}

func (s *SQLStore) ApplyRefCommand(ctx context.Context, path string, cmd protocol.RefUpdateRequest) error {
	now := nowUTC()

	return retry.DoVoid(ctx, func() error {
		switch {
		case cmd.OldRef == hash.Zero.String() && cmd.NewRef == hash.Zero.String():
			return protocol.NewRefCommandInvalidError(cmd.RefName)

		case cmd.OldRef == hash.Zero.String(): // create
			if err := rejectIfRefExists(ctx, s.db, path, cmd); err != nil {
				return err
			}
			_, err := s.db.ExecContext(ctx,
				`INSERT INTO refs (repo_path, ref_name, ref_git_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
				path, cmd.RefName, cmd.NewRef, now, now,
			)
			if err != nil {
				return protocol.NewStoreUnavailableError(err)
			}
			return nil

		case cmd.NewRef == hash.Zero.String(): // delete
			res, err := s.db.ExecContext(ctx,
				`DELETE FROM refs WHERE repo_path = ? AND ref_name = ? AND ref_git_id = ?`,
				path, cmd.RefName, cmd.OldRef,
			)
			if err != nil {
				return protocol.NewStoreUnavailableError(err)
			}
			return checkPreconditionRows(ctx, s.db, res, path, cmd)

		default: // update
			res, err := s.db.ExecContext(ctx,
				`UPDATE refs SET ref_git_id = ?, updated_at = ? WHERE repo_path = ? AND ref_name = ? AND ref_git_id = ?`,
				cmd.NewRef, now, path, cmd.RefName, cmd.OldRef,
			)
			if err != nil {
				return protocol.NewStoreUnavailableError(err)
			}
			return checkPreconditionRows(ctx, s.db, res, path, cmd)
		}
	})
}

// rejectIfRefExists rejects a create command (OldRef == zero) whose ref
// name is already present at path, matching InMemoryStore's create branch:
// without this check a duplicate INSERT either errors opaquely against a
// uniqueness constraint (surfacing as a misleading store-unavailable retry
// loop) or, absent one, silently adds a second row for the same ref.
func rejectIfRefExists(ctx context.Context, db *sql.DB, path string, cmd protocol.RefUpdateRequest) error {
	var actual string
	err := db.QueryRowContext(ctx,
		`SELECT ref_git_id FROM refs WHERE repo_path = ? AND ref_name = ?`, path, cmd.RefName,
	).Scan(&actual)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return protocol.NewStoreUnavailableError(err)
	}
	return protocol.NewRefPreconditionFailedError(cmd.RefName, cmd.OldRef, actual)
}

// checkPreconditionRows turns a zero-rows-affected update/delete into the
// right typed error: the ref is either missing entirely, or present with a
// different current id than cmd.OldRef claimed.
func checkPreconditionRows(ctx context.Context, db *sql.DB, res sql.Result, path string, cmd protocol.RefUpdateRequest) error {
	n, err := res.RowsAffected()
	if err != nil {
		return protocol.NewStoreUnavailableError(err)
	}
	if n > 0 {
		return nil
	}

	var actual string
	err = db.QueryRowContext(ctx,
		`SELECT ref_git_id FROM refs WHERE repo_path = ? AND ref_name = ?`, path, cmd.RefName,
	).Scan(&actual)
	if errors.Is(err, sql.ErrNoRows) {
		return protocol.NewRefNotFoundError(cmd.RefName)
	}
	if err != nil {
		return protocol.NewStoreUnavailableError(err)
	}
	return protocol.NewRefPreconditionFailedError(cmd.RefName, cmd.OldRef, actual)
}

// ApplyRefCommands runs every command inside one database transaction: each
// precondition is checked and applied against that transaction's view, and
// a single failing command rolls the whole transaction back, so concurrent
// writers never observe (or produce) a partial batch.
func (s *SQLStore) ApplyRefCommands(ctx context.Context, path string, cmds []protocol.RefUpdateRequest) []error {
	txErr := retry.DoVoid(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return protocol.NewStoreUnavailableError(err)
		}
		defer tx.Rollback()

		now := nowUTC()
		for _, cmd := range cmds {
			if err := applyRefCommandInTx(ctx, tx, path, cmd, now); err != nil {
				return err
			}
		}
		if err := tx.Commit(); err != nil {
			return protocol.NewStoreUnavailableError(err)
		}
		return nil
	})
	if txErr != nil {
		return fillErrors(len(cmds), txErr)
	}
	return make([]error, len(cmds))
}

// applyRefCommandInTx mirrors ApplyRefCommand's three cases against an
// in-flight transaction instead of s.db directly.
func applyRefCommandInTx(ctx context.Context, tx *sql.Tx, path string, cmd protocol.RefUpdateRequest, now time.Time) error {
	switch {
	case cmd.OldRef == hash.Zero.String() && cmd.NewRef == hash.Zero.String():
		return protocol.NewRefCommandInvalidError(cmd.RefName)

	case cmd.OldRef == hash.Zero.String(): // create
		if err := rejectIfRefExistsTx(ctx, tx, path, cmd); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO refs (repo_path, ref_name, ref_git_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			path, cmd.RefName, cmd.NewRef, now, now,
		)
		if err != nil {
			return protocol.NewStoreUnavailableError(err)
		}
		return nil

	case cmd.NewRef == hash.Zero.String(): // delete
		res, err := tx.ExecContext(ctx,
			`DELETE FROM refs WHERE repo_path = ? AND ref_name = ? AND ref_git_id = ?`,
			path, cmd.RefName, cmd.OldRef,
		)
		if err != nil {
			return protocol.NewStoreUnavailableError(err)
		}
		return checkPreconditionRowsTx(ctx, tx, res, path, cmd)

	default: // update
		res, err := tx.ExecContext(ctx,
			`UPDATE refs SET ref_git_id = ?, updated_at = ? WHERE repo_path = ? AND ref_name = ? AND ref_git_id = ?`,
			cmd.NewRef, now, path, cmd.RefName, cmd.OldRef,
		)
		if err != nil {
			return protocol.NewStoreUnavailableError(err)
		}
		return checkPreconditionRowsTx(ctx, tx, res, path, cmd)
	}
}

// rejectIfRefExistsTx is rejectIfRefExists against an in-flight
// transaction, so a create command in the same batch sees any sibling
// command's not-yet-committed row.
func rejectIfRefExistsTx(ctx context.Context, tx *sql.Tx, path string, cmd protocol.RefUpdateRequest) error {
	var actual string
	err := tx.QueryRowContext(ctx,
		`SELECT ref_git_id FROM refs WHERE repo_path = ? AND ref_name = ?`, path, cmd.RefName,
	).Scan(&actual)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return protocol.NewStoreUnavailableError(err)
	}
	return protocol.NewRefPreconditionFailedError(cmd.RefName, cmd.OldRef, actual)
}

// checkPreconditionRowsTx is checkPreconditionRows against an in-flight
// transaction, so the re-read of the current ref value sees the same
// uncommitted state the failing update/delete just observed.
func checkPreconditionRowsTx(ctx context.Context, tx *sql.Tx, res sql.Result, path string, cmd protocol.RefUpdateRequest) error {
	n, err := res.RowsAffected()
	if err != nil {
		return protocol.NewStoreUnavailableError(err)
	}
	if n > 0 {
		return nil
	}

	var actual string
	err = tx.QueryRowContext(ctx,
		`SELECT ref_git_id FROM refs WHERE repo_path = ? AND ref_name = ?`, path, cmd.RefName,
	).Scan(&actual)
	if errors.Is(err, sql.ErrNoRows) {
		return protocol.NewRefNotFoundError(cmd.RefName)
	}
	if err != nil {
		return protocol.NewStoreUnavailableError(err)
	}
	return protocol.NewRefPreconditionFailedError(cmd.RefName, cmd.OldRef, actual)
}

func (s *SQLStore) IngestPack(ctx context.Context, path string, objects []*packfile.DecodedObject) error {
	now := nowUTC()
	lookup := node.NewPackLookup(objects)

	payloadByID := make(map[string][]byte, len(objects))
	for _, obj := range objects {
		if obj.Kind == object.TypeTree || obj.Kind == object.TypeBlob {
			payloadByID[obj.ID.String()] = obj.Payload
		}
	}

	return retry.DoVoid(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return protocol.NewStoreUnavailableError(err)
		}
		defer tx.Rollback()

		for _, obj := range objects {
			if obj.Kind != object.TypeCommit {
				continue
			}
			commit, err := gitobject.ParseCommit(obj.Payload)
			if err != nil {
				return fmt.Errorf("parsing ingested commit %s: %w", obj.ID, err)
			}

			root, err := node.BuildFromCommit(s.idgen, lookup, commit, baseName(path), path)
			if err != nil {
				return fmt.Errorf("building node tree for commit %s: %w", obj.ID, err)
			}
			for _, n := range node.Flatten(root) {
				kind := "blob"
				if n.IsDir() {
					kind = "tree"
				}
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO node (nid, pid, git_id, node_kind, name, path, created_at, updated_at)
					 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
					 ON DUPLICATE KEY UPDATE pid = VALUES(pid), name = VALUES(name), path = VALUES(path), updated_at = VALUES(updated_at)`,
					n.ID(), n.ParentID(), n.GitID().String(), kind, n.Name(), n.Path(), now, now,
				); err != nil {
					return protocol.NewStoreUnavailableError(err)
				}

				data := payloadByID[n.GitID().String()]
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO node_data (node_nid, data) VALUES (?, ?) ON DUPLICATE KEY UPDATE data = VALUES(data)`,
					n.ID(), data,
				); err != nil {
					return protocol.NewStoreUnavailableError(err)
				}
			}

			if _, err := tx.ExecContext(ctx,
				`INSERT INTO commit (git_id, tree, meta, repo_path, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
				obj.ID.String(), commit.Tree.String(), obj.Payload, path, now, now,
			); err != nil {
				return protocol.NewStoreUnavailableError(err)
			}
		}

		if err := tx.Commit(); err != nil {
			return protocol.NewStoreUnavailableError(err)
		}
		return nil
	})
}

func (s *SQLStore) FullPack(ctx context.Context, path string) ([]byte, error) {
	commits, err := retry.Do(ctx, func() ([]*gitobject.Commit, error) {
		rows, err := s.db.QueryContext(ctx, `SELECT meta FROM commit WHERE repo_path = ?`, path)
		if err != nil {
			return nil, protocol.NewStoreUnavailableError(err)
		}
		defer rows.Close()

		var out []*gitobject.Commit
		for rows.Next() {
			var payload []byte
			if err := rows.Scan(&payload); err != nil {
				return nil, protocol.NewStoreUnavailableError(err)
			}
			c, err := gitobject.ParseCommit(payload)
			if err != nil {
				return nil, fmt.Errorf("parsing stored commit: %w", err)
			}
			out = append(out, c)
		}
		return out, rows.Err()
	})
	if err != nil {
		return nil, err
	}

	result := make(map[string]*gitobject.Metadata)
	seen := make(map[string]bool)
	for _, c := range commits {
		if err := s.collectTree(ctx, c.Tree, seen, result); err != nil {
			return nil, err
		}
	}
	return encodePack(result)
}

func (s *SQLStore) IncrementalPack(ctx context.Context, path string, wants, haves []hash.Hash) ([]byte, error) {
	haveSet := make(map[string]bool, len(haves))
	for _, h := range haves {
		haveSet[h.String()] = true
	}

	result := make(map[string]*gitobject.Metadata)
	basic := make(map[string]bool)

	for _, want := range wants {
		chain, base, err := s.ancestorChain(ctx, path, want, haveSet)
		if err != nil {
			return nil, err
		}
		if base != nil {
			if err := s.collectTree(ctx, base.Tree, basic, nil); err != nil {
				return nil, err
			}
		}

		for i := len(chain) - 1; i >= 0; i-- {
			c := chain[i]
			meta, err := s.commitMetaByGitID(ctx, c.id)
			if err != nil {
				return nil, err
			}
			if meta != nil {
				result[c.id] = meta
			}

			fresh := make(map[string]bool)
			if err := s.collectTree(ctx, c.commit.Tree, fresh, nil); err != nil {
				return nil, err
			}
			for key := range fresh {
				if basic[key] {
					continue
				}
				basic[key] = true
				if m, err := s.getObjectRaw(ctx, key); err == nil && m != nil {
					result[key] = m
				}
			}
		}
	}

	return encodePack(result)
}

type idCommit struct {
	id     string
	commit *gitobject.Commit
}

// ancestorChain mirrors InMemoryStore.ancestorChain against the commit
// table, following first-parent links until it hits a have or runs out.
func (s *SQLStore) ancestorChain(ctx context.Context, path string, want hash.Hash, haveSet map[string]bool) ([]*idCommit, *gitobject.Commit, error) {
	var chain []*idCommit

	curID := want.String()
	for {
		if haveSet[curID] {
			meta, err := s.commitMetaByGitID(ctx, curID)
			if err != nil {
				return nil, nil, err
			}
			if meta == nil {
				return chain, nil, nil
			}
			c, err := gitobject.ParseCommit(meta.Payload)
			if err != nil {
				return nil, nil, fmt.Errorf("parsing ancestor commit: %w", err)
			}
			return chain, c, nil
		}

		meta, err := s.commitMetaByGitID(ctx, curID)
		if err != nil {
			return nil, nil, err
		}
		if meta == nil {
			return chain, nil, nil
		}
		c, err := gitobject.ParseCommit(meta.Payload)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing commit %s: %w", curID, err)
		}
		chain = append(chain, &idCommit{id: curID, commit: c})

		if len(c.Parents) == 0 {
			return chain, nil, nil
		}
		curID = c.Parents[0].String()
	}
}

// collectTree walks the tree rooted at treeID, recording every reachable
// tree/blob hash into seen. When out is non-nil, it's also populated with
// the decoded Metadata for every object found (FullPack's use); when nil,
// only membership is recorded (IncrementalPack's "basic" seeding use,
// which looks objects up separately once they're known-fresh).
func (s *SQLStore) collectTree(ctx context.Context, treeID hash.Hash, seen map[string]bool, out map[string]*gitobject.Metadata) error {
	key := treeID.String()
	if seen[key] {
		return nil
	}
	seen[key] = true

	meta, err := s.getObjectRaw(ctx, key)
	if err != nil {
		return err
	}
	if meta == nil {
		return nil
	}
	if out != nil {
		out[key] = meta
	}

	tree, err := gitobject.ParseTree(meta.Payload)
	if err != nil {
		return fmt.Errorf("parsing tree %s: %w", key, err)
	}
	for _, e := range tree.Entries {
		if e.Mode.IsTree() {
			if err := s.collectTree(ctx, e.ID, seen, out); err != nil {
				return err
			}
			continue
		}
		seen[e.ID.String()] = true
		if out != nil {
			blobMeta, err := s.getObjectRaw(ctx, e.ID.String())
			if err != nil {
				return err
			}
			if blobMeta != nil {
				out[e.ID.String()] = blobMeta
			}
		}
	}
	return nil
}

// getObjectRaw fetches a tree or blob's bytes from the node/node_data
// tables by git id.
func (s *SQLStore) getObjectRaw(ctx context.Context, gitID string) (*gitobject.Metadata, error) {
	return retry.Do(ctx, func() (*gitobject.Metadata, error) {
		var nid int64
		var kind string
		err := s.db.QueryRowContext(ctx,
			`SELECT nid, node_kind FROM node WHERE git_id = ?`, gitID,
		).Scan(&nid, &kind)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, protocol.NewStoreUnavailableError(err)
		}

		if kind == "tree" {
			var payload []byte
			err := s.db.QueryRowContext(ctx, `SELECT data FROM node_data WHERE node_nid = ?`, nid).Scan(&payload)
			if err != nil {
				return nil, protocol.NewStoreUnavailableError(err)
			}
			return gitobject.New(object.TypeTree, payload)
		}

		var payload []byte
		if err := s.db.QueryRowContext(ctx, `SELECT data FROM node_data WHERE node_nid = ?`, nid).Scan(&payload); err != nil {
			return nil, protocol.NewStoreUnavailableError(err)
		}
		return gitobject.New(object.TypeBlob, payload)
	})
}

func (s *SQLStore) GetObject(ctx context.Context, id hash.Hash) (*gitobject.Metadata, error) {
	if meta, err := s.commitMetaByGitID(ctx, id.String()); err != nil {
		return nil, err
	} else if meta != nil {
		return meta, nil
	}

	meta, err := s.getObjectRaw(ctx, id.String())
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, &MissingObjectError{ID: id.String()}
	}
	return meta, nil
}

// nowUTC stamps created_at/updated_at columns. Pulled out to one call site
// per write so a future switch to a DB-generated timestamp touches one
// line per table, not every query.
func nowUTC() time.Time {
	return time.Now().UTC()
}
