package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/kyeoh/margins/backend"
)

// pageSize is how many top-level comments one page holds.
const pageSize = 10

var (
	ErrNotFound     = errors.New("not found")
	ErrPageRange    = errors.New("page out of range")
	ErrAlreadyRated = errors.New("already rated")
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id    INTEGER PRIMARY KEY AUTOINCREMENT,
	name  TEXT NOT NULL UNIQUE,
	image TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS comments (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    INTEGER NOT NULL REFERENCES users(id),
	page_type  TEXT,
	item_id    INTEGER,
	parent_id  INTEGER REFERENCES comments(id),
	body       TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS comments_page ON comments(page_type, item_id);
CREATE INDEX IF NOT EXISTS comments_parent ON comments(parent_id);

CREATE TABLE IF NOT EXISTS reactions (
	comment_id INTEGER NOT NULL REFERENCES comments(id),
	user_id    INTEGER NOT NULL REFERENCES users(id),
	kind       TEXT NOT NULL CHECK (kind IN ('like', 'dislike')),
	PRIMARY KEY (comment_id, user_id)
);

CREATE TABLE IF NOT EXISTS ratings (
	item_id    INTEGER NOT NULL,
	user_id    INTEGER NOT NULL REFERENCES users(id),
	story      INTEGER NOT NULL,
	writing    INTEGER NOT NULL,
	world      INTEGER NOT NULL,
	characters INTEGER NOT NULL,
	PRIMARY KEY (item_id, user_id)
);
`

// Store persists comments, reactions and ratings in SQLite.
type Store struct {
	pool *sqlitex.Pool
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{PoolSize: 4})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	conn, err := pool.Take(context.Background())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("take connection: %w", err)
	}
	defer pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (st *Store) Close() error {
	return st.pool.Close()
}

// EnsureUser returns the id for a display name, registering it on first
// sight. Session handling proper lives outside this service.
func (st *Store) EnsureUser(ctx context.Context, name string) (int64, error) {
	conn, err := st.pool.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer st.pool.Put(conn)

	var id int64
	err = sqlitex.Execute(conn, `SELECT id FROM users WHERE name = ?`, &sqlitex.ExecOptions{
		Args: []any{name},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			id = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("lookup user: %w", err)
	}
	if id != 0 {
		return id, nil
	}

	err = sqlitex.Execute(conn, `INSERT INTO users (name) VALUES (?)`, &sqlitex.ExecOptions{
		Args: []any{name},
	})
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return conn.LastInsertRowID(), nil
}

// Page builds one snapshot page for a content page: newest top-level
// comments first, pageSize per page, replies nested recursively oldest
// first. The page number must be within range; an empty thread still has
// page 1.
func (st *Store) Page(ctx context.Context, ref backend.PageRef, page int, viewerID int64) (*backend.PageSnapshot, error) {
	conn, err := st.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer st.pool.Put(conn)

	var total int
	err = sqlitex.Execute(conn,
		`SELECT COUNT(*) FROM comments WHERE page_type = ? AND item_id = ? AND parent_id IS NULL`,
		&sqlitex.ExecOptions{
			Args: []any{string(ref.Type), ref.ID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				total = stmt.ColumnInt(0)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("count comments: %w", err)
	}

	pages := (total + pageSize - 1) / pageSize
	if pages == 0 {
		pages = 1
	}
	if page < 1 || page > pages {
		return nil, ErrPageRange
	}

	snap := &backend.PageSnapshot{
		Comments:    []backend.Comment{},
		PageNumbers: make([]int, 0, pages),
		CurrentPage: page,
	}
	for i := 1; i <= pages; i++ {
		snap.PageNumbers = append(snap.PageNumbers, i)
	}

	err = sqlitex.Execute(conn, `
		SELECT c.id, u.name, u.image, c.created_at, c.body
		FROM comments c JOIN users u ON u.id = c.user_id
		WHERE c.page_type = ? AND c.item_id = ? AND c.parent_id IS NULL
		ORDER BY c.id DESC LIMIT ? OFFSET ?`,
		&sqlitex.ExecOptions{
			Args: []any{string(ref.Type), ref.ID, pageSize, (page - 1) * pageSize},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				snap.Comments = append(snap.Comments, scanComment(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("select comments: %w", err)
	}

	for i := range snap.Comments {
		if err := st.fill(conn, &snap.Comments[i], viewerID); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

func scanComment(stmt *sqlite.Stmt) backend.Comment {
	return backend.Comment{
		ID:      stmt.ColumnInt64(0),
		User:    stmt.ColumnText(1),
		Image:   stmt.ColumnText(2),
		Date:    displayDate(stmt.ColumnText(3)),
		Body:    stmt.ColumnText(4),
		Replies: []backend.Comment{},
	}
}

// fill loads reaction counts and the reply subtree for one comment.
func (st *Store) fill(conn *sqlite.Conn, c *backend.Comment, viewerID int64) error {
	err := sqlitex.Execute(conn, `
		SELECT kind, COUNT(*), MAX(CASE WHEN user_id = ? THEN 1 ELSE 0 END)
		FROM reactions WHERE comment_id = ? GROUP BY kind`,
		&sqlitex.ExecOptions{
			Args: []any{viewerID, c.ID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count := stmt.ColumnInt(1)
				mine := stmt.ColumnInt(2) == 1 && viewerID != 0
				switch backend.ReactionKind(stmt.ColumnText(0)) {
				case backend.ReactionLike:
					c.LikeCount, c.Liked = count, mine
				case backend.ReactionDislike:
					c.DislikeCount, c.Disliked = count, mine
				}
				return nil
			},
		})
	if err != nil {
		return fmt.Errorf("count reactions: %w", err)
	}

	err = sqlitex.Execute(conn, `
		SELECT c.id, u.name, u.image, c.created_at, c.body
		FROM comments c JOIN users u ON u.id = c.user_id
		WHERE c.parent_id = ? ORDER BY c.id ASC`,
		&sqlitex.ExecOptions{
			Args: []any{c.ID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				c.Replies = append(c.Replies, scanComment(stmt))
				return nil
			},
		})
	if err != nil {
		return fmt.Errorf("select replies: %w", err)
	}

	for i := range c.Replies {
		if err := st.fill(conn, &c.Replies[i], viewerID); err != nil {
			return err
		}
	}
	return nil
}

// CreateComment adds a top-level comment to a content page.
func (st *Store) CreateComment(ctx context.Context, ref backend.PageRef, userID int64, body string) error {
	conn, err := st.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer st.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO comments (user_id, page_type, item_id, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{userID, string(ref.Type), ref.ID, body, time.Now().UTC().Format(time.RFC3339)},
		})
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

// CreateReply adds a reply under an existing comment.
func (st *Store) CreateReply(ctx context.Context, parentID, userID int64, body string) error {
	conn, err := st.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer st.pool.Put(conn)

	exists, err := commentExists(conn, parentID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}

	err = sqlitex.Execute(conn,
		`INSERT INTO comments (user_id, parent_id, body, created_at) VALUES (?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{userID, parentID, body, time.Now().UTC().Format(time.RFC3339)},
		})
	if err != nil {
		return fmt.Errorf("insert reply: %w", err)
	}
	return nil
}

// ToggleReaction applies a like or dislike as a toggle: reacting with the
// kind already on file removes it, and setting one kind clears the other.
func (st *Store) ToggleReaction(ctx context.Context, commentID, userID int64, kind backend.ReactionKind) (err error) {
	conn, err := st.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer st.pool.Put(conn)
	defer sqlitex.Save(conn)(&err)

	exists, err := commentExists(conn, commentID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}

	var current string
	err = sqlitex.Execute(conn, `SELECT kind FROM reactions WHERE comment_id = ? AND user_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{commentID, userID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				current = stmt.ColumnText(0)
				return nil
			},
		})
	if err != nil {
		return fmt.Errorf("lookup reaction: %w", err)
	}

	if current != "" {
		err = sqlitex.Execute(conn, `DELETE FROM reactions WHERE comment_id = ? AND user_id = ?`,
			&sqlitex.ExecOptions{Args: []any{commentID, userID}})
		if err != nil {
			return fmt.Errorf("remove reaction: %w", err)
		}
	}
	if current == string(kind) {
		return nil
	}

	err = sqlitex.Execute(conn, `INSERT INTO reactions (comment_id, user_id, kind) VALUES (?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{commentID, userID, string(kind)}})
	if err != nil {
		return fmt.Errorf("insert reaction: %w", err)
	}
	return nil
}

// Rating builds the aggregate for one item: per-axis rounded means and the
// overall one-decimal average across all raters, plus whether this viewer
// already has a rating on file.
func (st *Store) Rating(ctx context.Context, itemID, viewerID int64) (*backend.RatingState, error) {
	conn, err := st.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer st.pool.Put(conn)

	state := &backend.RatingState{}
	err = sqlitex.Execute(conn, `
		SELECT COUNT(*), AVG(story), AVG(writing), AVG(world), AVG(characters)
		FROM ratings WHERE item_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{itemID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				state.Count = stmt.ColumnInt(0)
				if state.Count == 0 {
					return nil
				}
				state.Story = int(math.Round(stmt.ColumnFloat(1)))
				state.Writing = int(math.Round(stmt.ColumnFloat(2)))
				state.World = int(math.Round(stmt.ColumnFloat(3)))
				state.Characters = int(math.Round(stmt.ColumnFloat(4)))
				overall := (stmt.ColumnFloat(1) + stmt.ColumnFloat(2) + stmt.ColumnFloat(3) + stmt.ColumnFloat(4)) / 4
				state.Average = math.Round(overall*10) / 10
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("aggregate ratings: %w", err)
	}

	if viewerID != 0 {
		err = sqlitex.Execute(conn, `SELECT 1 FROM ratings WHERE item_id = ? AND user_id = ?`,
			&sqlitex.ExecOptions{
				Args: []any{itemID, viewerID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					state.HasRated = true
					return nil
				},
			})
		if err != nil {
			return nil, fmt.Errorf("lookup rating: %w", err)
		}
	}
	return state, nil
}

// SubmitRating records one viewer's scores. Re-rating is not supported.
func (st *Store) SubmitRating(ctx context.Context, itemID, viewerID int64, scores backend.RatingScores) error {
	conn, err := st.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer st.pool.Put(conn)

	var exists bool
	err = sqlitex.Execute(conn, `SELECT 1 FROM ratings WHERE item_id = ? AND user_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{itemID, viewerID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				exists = true
				return nil
			},
		})
	if err != nil {
		return fmt.Errorf("lookup rating: %w", err)
	}
	if exists {
		return ErrAlreadyRated
	}

	err = sqlitex.Execute(conn, `
		INSERT INTO ratings (item_id, user_id, story, writing, world, characters)
		VALUES (?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{itemID, viewerID, scores.Story, scores.Writing, scores.World, scores.Characters},
		})
	if err != nil {
		return fmt.Errorf("insert rating: %w", err)
	}
	return nil
}

func commentExists(conn *sqlite.Conn, id int64) (bool, error) {
	var exists bool
	err := sqlitex.Execute(conn, `SELECT 1 FROM comments WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				exists = true
				return nil
			},
		})
	if err != nil {
		return false, fmt.Errorf("lookup comment: %w", err)
	}
	return exists, nil
}

// displayDate turns a stored RFC3339 timestamp into the display string the
// widgets show verbatim.
func displayDate(raw string) string {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return raw
	}
	return t.Format("Jan 2, 2006")
}
