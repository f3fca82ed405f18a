package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/shelflifeapp/shelflife/internal/domain"
	"github.com/shelflifeapp/shelflife/internal/store"
)

// groupingColumns is shared by the bags and tags tables.
// Must match the scan order in scanGrouping.
const groupingColumns = `id, remote_id, user_id, name, color, icon, description, image_url, is_private, created_at, updated_at`

// groupingTable describes the storage of one grouping kind.
type groupingTable struct {
	table     string // bags | tags
	joinTable string // product_bags | product_tags
	joinKey   string // bag_id | tag_id
	created   store.ChangeKind
	deleted   store.ChangeKind
}

var groupingTables = map[domain.EntityKind]groupingTable{
	domain.KindBag: {
		table:     "bags",
		joinTable: "product_bags",
		joinKey:   "bag_id",
		created:   store.ChangeBagCreated,
		deleted:   store.ChangeBagDeleted,
	},
	domain.KindTag: {
		table:     "tags",
		joinTable: "product_tags",
		joinKey:   "tag_id",
		created:   store.ChangeTagCreated,
		deleted:   store.ChangeTagDeleted,
	},
}

func tableFor(kind domain.EntityKind) (groupingTable, error) {
	t, ok := groupingTables[kind]
	if !ok {
		return groupingTable{}, fmt.Errorf("no grouping table for kind %q", kind)
	}
	return t, nil
}

func scanGrouping(scanner interface{ Scan(dest ...any) error }) (*domain.Grouping, error) {
	var (
		g         domain.Grouping
		remoteID  sql.NullString
		createdAt string
		updatedAt string
	)

	err := scanner.Scan(
		&g.ID,
		&remoteID,
		&g.UserID,
		&g.Name,
		&g.Color,
		&g.Icon,
		&g.Description,
		&g.ImageURL,
		&g.IsPrivate,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	g.RemoteID = stringPtr(remoteID)
	if g.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if g.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *session) createGrouping(ctx context.Context, kind domain.EntityKind, g *domain.Grouping, data any) error {
	if err := s.mutable(); err != nil {
		return err
	}
	t, err := tableFor(kind)
	if err != nil {
		return err
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO `+t.table+` (`+groupingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID,
		nullableString(g.RemoteID),
		g.UserID,
		g.Name,
		g.Color,
		g.Icon,
		g.Description,
		g.ImageURL,
		g.IsPrivate,
		formatTime(g.CreatedAt),
		formatTime(g.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("insert %s: %w", kind, err)
	}

	s.record(store.Change{Kind: t.created, UserID: g.UserID, EntityID: g.ID, Data: data})
	return nil
}

func (s *session) getGrouping(ctx context.Context, kind domain.EntityKind, id string) (*domain.Grouping, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	row := s.q.QueryRowContext(ctx, `SELECT `+groupingColumns+` FROM `+t.table+` WHERE id = ?`, id)
	g, err := scanGrouping(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	return g, err
}

func (s *session) listGroupings(ctx context.Context, kind domain.EntityKind, userID string) ([]*domain.Grouping, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT `+groupingColumns+` FROM `+t.table+` WHERE user_id = ? ORDER BY name COLLATE NOCASE ASC, created_at ASC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t.table, err)
	}
	defer rows.Close()

	var out []*domain.Grouping
	for rows.Next() {
		g, err := scanGrouping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *session) deleteGrouping(ctx context.Context, kind domain.EntityKind, id string) error {
	if err := s.mutable(); err != nil {
		return err
	}
	t, err := tableFor(kind)
	if err != nil {
		return err
	}

	var userID string
	err = s.q.QueryRowContext(ctx, `SELECT user_id FROM `+t.table+` WHERE id = ?`, id).Scan(&userID)
	if err == sql.ErrNoRows {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}

	if _, err := s.q.ExecContext(ctx, `DELETE FROM `+t.table+` WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}

	s.record(store.Change{Kind: t.deleted, UserID: userID, EntityID: id})
	return nil
}

// CreateBag inserts a new bag.
func (s *session) CreateBag(ctx context.Context, b *domain.Bag) error {
	cp := *b
	return s.createGrouping(ctx, domain.KindBag, &b.Grouping, &cp)
}

// GetBag retrieves a bag by id.
func (s *session) GetBag(ctx context.Context, id string) (*domain.Bag, error) {
	g, err := s.getGrouping(ctx, domain.KindBag, id)
	if err != nil {
		return nil, err
	}
	return &domain.Bag{Grouping: *g}, nil
}

// ListBags returns a user's bags ordered by name.
func (s *session) ListBags(ctx context.Context, userID string) ([]*domain.Bag, error) {
	gs, err := s.listGroupings(ctx, domain.KindBag, userID)
	if err != nil {
		return nil, err
	}
	bags := make([]*domain.Bag, len(gs))
	for i, g := range gs {
		bags[i] = &domain.Bag{Grouping: *g}
	}
	return bags, nil
}

// DeleteBag deletes a bag and its product links.
func (s *session) DeleteBag(ctx context.Context, id string) error {
	return s.deleteGrouping(ctx, domain.KindBag, id)
}

// CreateTag inserts a new tag.
func (s *session) CreateTag(ctx context.Context, t *domain.Tag) error {
	cp := *t
	return s.createGrouping(ctx, domain.KindTag, &t.Grouping, &cp)
}

// GetTag retrieves a tag by id.
func (s *session) GetTag(ctx context.Context, id string) (*domain.Tag, error) {
	g, err := s.getGrouping(ctx, domain.KindTag, id)
	if err != nil {
		return nil, err
	}
	return &domain.Tag{Grouping: *g}, nil
}

// ListTags returns a user's tags ordered by name.
func (s *session) ListTags(ctx context.Context, userID string) ([]*domain.Tag, error) {
	gs, err := s.listGroupings(ctx, domain.KindTag, userID)
	if err != nil {
		return nil, err
	}
	tags := make([]*domain.Tag, len(gs))
	for i, g := range gs {
		tags[i] = &domain.Tag{Grouping: *g}
	}
	return tags, nil
}

// DeleteTag deletes a tag and its product links.
func (s *session) DeleteTag(ctx context.Context, id string) error {
	return s.deleteGrouping(ctx, domain.KindTag, id)
}

// AddAssociation links a product to a bag or tag.
// Returns store.ErrNotFound when either side does not exist.
func (s *session) AddAssociation(ctx context.Context, kind domain.EntityKind, productID, groupingID string) (bool, error) {
	if err := s.mutable(); err != nil {
		return false, err
	}
	t, err := tableFor(kind)
	if err != nil {
		return false, err
	}

	now := time.Now()
	result, err := s.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO `+t.joinTable+` (product_id, `+t.joinKey+`, created_at) VALUES (?, ?, ?)`,
		productID, groupingID, formatTime(now))
	if err != nil {
		if isForeignKeyViolation(err) {
			return false, store.ErrNotFound
		}
		return false, fmt.Errorf("link product to %s: %w", kind, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	s.record(store.Change{
		Kind:      store.ChangeAssociationAdded,
		EntityID:  groupingID,
		ProductID: productID,
		Data:      &domain.Association{ProductID: productID, GroupingID: groupingID, Kind: kind, CreatedAt: now},
	})
	return true, nil
}

// RemoveAssociation unlinks a product from a bag or tag.
func (s *session) RemoveAssociation(ctx context.Context, kind domain.EntityKind, productID, groupingID string) (bool, error) {
	if err := s.mutable(); err != nil {
		return false, err
	}
	t, err := tableFor(kind)
	if err != nil {
		return false, err
	}

	result, err := s.q.ExecContext(ctx,
		`DELETE FROM `+t.joinTable+` WHERE product_id = ? AND `+t.joinKey+` = ?`,
		productID, groupingID)
	if err != nil {
		return false, fmt.Errorf("unlink product from %s: %w", kind, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	s.record(store.Change{
		Kind:      store.ChangeAssociationRemoved,
		EntityID:  groupingID,
		ProductID: productID,
		Data:      &domain.Association{ProductID: productID, GroupingID: groupingID, Kind: kind},
	})
	return true, nil
}

// ListAssociatedProducts returns the products in a bag or with a tag, in link order.
func (s *session) ListAssociatedProducts(ctx context.Context, kind domain.EntityKind, groupingID string) ([]*domain.Product, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	cols := make([]string, len(productColumnList))
	for i, c := range productColumnList {
		cols[i] = "p." + c
	}

	b := sq.Select(cols...).
		From("products p").
		Join(t.joinTable + " a ON a.product_id = p.id").
		Where(sq.Eq{"a." + t.joinKey: groupingID}).
		OrderBy("a.created_at ASC", "p.rowid ASC")

	rows, err := s.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("list products in %s: %w", kind, err)
	}
	return scanProducts(rows)
}

// ListAssociationIDs returns the bag or tag ids linked to a product.
func (s *session) ListAssociationIDs(ctx context.Context, kind domain.EntityKind, productID string) ([]string, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT `+t.joinKey+` FROM `+t.joinTable+` WHERE product_id = ? ORDER BY created_at ASC`,
		productID)
	if err != nil {
		return nil, fmt.Errorf("list %s links: %w", kind, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func isForeignKeyViolation(err error) bool {
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
