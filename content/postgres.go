package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// PostgresRepository reads the content tree, permissions and users from
// PostgreSQL. Permission codes are stored comma separated.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const nodeColumns = `id, parent_id, name, url_name, url, document_type, level, sort_order, published, expire_date`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*Node, error) {
	var (
		n       Node
		parent  sql.NullInt64
		expires sql.NullTime
	)
	err := row.Scan(&n.ID, &parent, &n.Name, &n.URLName, &n.URL, &n.DocumentType,
		&n.TreeLevel, &n.SortOrder, &n.Published, &expires)
	if err != nil {
		return nil, err
	}
	if parent.Valid {
		p := int(parent.Int64)
		n.ParentID = &p
	}
	if expires.Valid {
		e := expires.Time.UTC()
		n.Expires = &e
	}
	return &n, nil
}

func (r *PostgresRepository) Node(ctx context.Context, id int) (*Node, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+nodeColumns+`
		FROM content_nodes
		WHERE id = $1
	`, id)

	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get node: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) Children(ctx context.Context, id int) ([]*Node, error) {
	return r.queryNodes(ctx, `
		SELECT `+nodeColumns+`
		FROM content_nodes
		WHERE parent_id = $1
		ORDER BY sort_order, id
	`, id)
}

func (r *PostgresRepository) Roots(ctx context.Context) ([]*Node, error) {
	return r.queryNodes(ctx, `
		SELECT `+nodeColumns+`
		FROM content_nodes
		WHERE parent_id IS NULL
		ORDER BY sort_order, id
	`)
}

func (r *PostgresRepository) ExpiringPages(ctx context.Context, from, to time.Time) ([]*Node, error) {
	return r.queryNodes(ctx, `
		SELECT `+nodeColumns+`
		FROM content_nodes
		WHERE published = true
		  AND (expire_date IS NULL OR expire_date BETWEEN $1 AND $2)
		ORDER BY expire_date NULLS LAST, id
	`, from, to)
}

func (r *PostgresRepository) SetExpireDate(ctx context.Context, id int, expires *time.Time) error {
	var value sql.NullTime
	if expires != nil {
		value = sql.NullTime{Time: expires.UTC(), Valid: true}
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE content_nodes SET expire_date = $2 WHERE id = $1
	`, id, value)
	if err != nil {
		return fmt.Errorf("failed to update expire date: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}
	return nil
}

func (r *PostgresRepository) queryNodes(ctx context.Context, q string, args ...any) ([]*Node, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}
	return nodes, nil
}

func (r *PostgresRepository) GroupPermissions(ctx context.Context, nodeID int) ([]GroupPermission, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT group_id, permissions
		FROM content_permissions
		WHERE node_id = $1
		ORDER BY group_id
	`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query permissions: %w", err)
	}
	defer rows.Close()

	var out []GroupPermission
	for rows.Next() {
		var (
			p     GroupPermission
			codes string
		)
		if err := rows.Scan(&p.GroupID, &codes); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		p.Permissions = splitCodes(codes)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating permissions: %w", err)
	}
	return out, nil
}

func splitCodes(s string) []string {
	var codes []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			codes = append(codes, c)
		}
	}
	return codes
}

func (r *PostgresRepository) User(ctx context.Context, id int) (*User, error) {
	var u User
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, active FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Name, &u.Email, &u.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrUserNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func (r *PostgresRepository) GroupMembers(ctx context.Context, groupID int) ([]*User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.id, u.name, u.email, u.active
		FROM users u
		JOIN user_group_members m ON m.user_id = u.id
		WHERE m.group_id = $1
		ORDER BY u.id
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query group members: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Active); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}
