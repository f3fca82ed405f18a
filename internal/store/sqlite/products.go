package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"github.com/shelflifeapp/shelflife/internal/domain"
	"github.com/shelflifeapp/shelflife/internal/store"
)

// productColumnList is the ordered list of columns selected in product queries.
// Must match the scan order in scanProduct.
var productColumnList = []string{
	"id", "remote_id", "user_id", "barcode", "name", "brand", "shade", "size",
	"spf", "price", "currency", "purchase_date", "open_date", "period_after_opening",
	"expiry_date", "remaining_amount", "is_finished", "finish_date", "is_favorite",
	"times_used", "created_at", "updated_at",
}

var productColumns = strings.Join(productColumnList, ", ")

// scanProduct scans a sql.Row (or sql.Rows via its Scan method) into a domain.Product.
func scanProduct(scanner interface{ Scan(dest ...any) error }) (*domain.Product, error) {
	var p domain.Product

	var (
		remoteID     sql.NullString
		spf          sql.NullInt64
		price        decimal.NullDecimal
		purchaseDate sql.NullString
		openDate     sql.NullString
		expiryDate   sql.NullString
		finishDate   sql.NullString
		createdAt    string
		updatedAt    string
	)

	err := scanner.Scan(
		&p.ID,
		&remoteID,
		&p.UserID,
		&p.Barcode,
		&p.Name,
		&p.Brand,
		&p.Shade,
		&p.Size,
		&spf,
		&price,
		&p.Currency,
		&purchaseDate,
		&openDate,
		&p.PeriodAfterOpening,
		&expiryDate,
		&p.RemainingAmount,
		&p.IsFinished,
		&finishDate,
		&p.IsFavorite,
		&p.TimesUsed,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.RemoteID = stringPtr(remoteID)
	if spf.Valid {
		v := int(spf.Int64)
		p.SPF = &v
	}
	if price.Valid {
		v := price.Decimal
		p.Price = &v
	}

	if p.PurchaseDate, err = parseNullableTime(purchaseDate); err != nil {
		return nil, fmt.Errorf("parse purchase_date: %w", err)
	}
	if p.OpenDate, err = parseNullableTime(openDate); err != nil {
		return nil, fmt.Errorf("parse open_date: %w", err)
	}
	if p.ExpiryDate, err = parseNullableTime(expiryDate); err != nil {
		return nil, fmt.Errorf("parse expiry_date: %w", err)
	}
	if p.FinishDate, err = parseNullableTime(finishDate); err != nil {
		return nil, fmt.Errorf("parse finish_date: %w", err)
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &p, nil
}

func scanProducts(rows *sql.Rows) ([]*domain.Product, error) {
	defer rows.Close()

	var products []*domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func nullPrice(p *decimal.Decimal) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: p.String(), Valid: true}
}

func nullSPF(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

// snapshot copies a product so observers never share the caller's pointer.
func snapshot(p *domain.Product) *domain.Product {
	cp := *p
	return &cp
}

// CreateProduct inserts a new product.
// Returns store.ErrAlreadyExists on a duplicate id or remote id.
func (s *session) CreateProduct(ctx context.Context, p *domain.Product) error {
	if err := s.mutable(); err != nil {
		return err
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		nullableString(p.RemoteID),
		p.UserID,
		p.Barcode,
		p.Name,
		p.Brand,
		p.Shade,
		p.Size,
		nullSPF(p.SPF),
		nullPrice(p.Price),
		p.Currency,
		nullTimeString(p.PurchaseDate),
		nullTimeString(p.OpenDate),
		p.PeriodAfterOpening,
		nullTimeString(p.ExpiryDate),
		p.RemainingAmount,
		p.IsFinished,
		nullTimeString(p.FinishDate),
		p.IsFavorite,
		p.TimesUsed,
		formatTime(p.CreatedAt),
		formatTime(p.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("insert product: %w", err)
	}

	s.record(store.Change{
		Kind:      store.ChangeProductCreated,
		UserID:    p.UserID,
		EntityID:  p.ID,
		ProductID: p.ID,
		Data:      snapshot(p),
	})
	return nil
}

// GetProduct retrieves a product by its local id.
// Returns store.ErrNotFound if the product does not exist.
func (s *session) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ?`, id)

	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateProduct writes every mutable column of p.
// The remote id is not touched; use BindRemoteID.
func (s *session) UpdateProduct(ctx context.Context, p *domain.Product) error {
	if err := s.mutable(); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx, `
		UPDATE products SET
			barcode = ?,
			name = ?,
			brand = ?,
			shade = ?,
			size = ?,
			spf = ?,
			price = ?,
			currency = ?,
			purchase_date = ?,
			open_date = ?,
			period_after_opening = ?,
			expiry_date = ?,
			remaining_amount = ?,
			is_finished = ?,
			finish_date = ?,
			is_favorite = ?,
			times_used = ?,
			updated_at = ?
		WHERE id = ?`,
		p.Barcode,
		p.Name,
		p.Brand,
		p.Shade,
		p.Size,
		nullSPF(p.SPF),
		nullPrice(p.Price),
		p.Currency,
		nullTimeString(p.PurchaseDate),
		nullTimeString(p.OpenDate),
		p.PeriodAfterOpening,
		nullTimeString(p.ExpiryDate),
		p.RemainingAmount,
		p.IsFinished,
		nullTimeString(p.FinishDate),
		p.IsFavorite,
		p.TimesUsed,
		formatTime(p.UpdatedAt),
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}

	s.record(store.Change{
		Kind:      store.ChangeProductUpdated,
		UserID:    p.UserID,
		EntityID:  p.ID,
		ProductID: p.ID,
		Data:      snapshot(p),
	})
	return nil
}

// DeleteProduct hard-deletes a product. Usage entries, journey events and
// bag/tag links go with it through ON DELETE CASCADE.
func (s *session) DeleteProduct(ctx context.Context, id string) error {
	if err := s.mutable(); err != nil {
		return err
	}

	var userID string
	err := s.q.QueryRowContext(ctx, `SELECT user_id FROM products WHERE id = ?`, id).Scan(&userID)
	if err == sql.ErrNoRows {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}

	if _, err := s.q.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	s.record(store.Change{
		Kind:      store.ChangeProductDeleted,
		UserID:    userID,
		EntityID:  id,
		ProductID: id,
	})
	return nil
}

// ListProducts returns a user's products, newest first.
func (s *session) ListProducts(ctx context.Context, f store.ProductFilter) ([]*domain.Product, error) {
	b := sq.Select(productColumnList...).
		From("products").
		Where(sq.Eq{"user_id": f.UserID}).
		OrderBy("created_at DESC", "rowid DESC")

	switch f.State {
	case domain.StateWishlist:
		b = b.Where(sq.Eq{"purchase_date": nil, "open_date": nil, "is_finished": false})
	case domain.StatePurchased:
		b = b.Where(sq.And{
			sq.NotEq{"purchase_date": nil},
			sq.Eq{"open_date": nil, "is_finished": false},
		})
	case domain.StateOpened:
		b = b.Where(sq.And{sq.NotEq{"open_date": nil}, sq.Eq{"is_finished": false}})
	case domain.StateFinished:
		b = b.Where(sq.Eq{"is_finished": true})
	default:
		if !f.IncludeFinished {
			b = b.Where(sq.Eq{"is_finished": false})
		}
	}

	if f.FavoritesOnly {
		b = b.Where(sq.Eq{"is_favorite": true})
	}
	if f.IDs != nil {
		b = b.Where(sq.Eq{"id": f.IDs})
	}
	if f.Limit > 0 {
		b = b.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		b = b.Offset(uint64(f.Offset))
	}

	rows, err := s.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return scanProducts(rows)
}

// CountProducts counts a user's products matching c exactly.
func (s *session) CountProducts(ctx context.Context, c store.ProductCriteria) (int, error) {
	eq := sq.Eq{"user_id": c.UserID}
	if c.Name != nil {
		eq["name"] = *c.Name
	}
	if c.Brand != nil {
		eq["brand"] = *c.Brand
	}
	if c.Size != nil {
		eq["size"] = *c.Size
	}
	if !c.IncludeFinished {
		eq["is_finished"] = false
	}

	row, err := s.queryRow(ctx, sq.Select("COUNT(*)").From("products").Where(eq))
	if err != nil {
		return 0, err
	}

	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}

// FindProductByRemoteID returns the user's product bound to remoteID.
func (s *session) FindProductByRemoteID(ctx context.Context, userID, remoteID string) (*domain.Product, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE user_id = ? AND remote_id = ?`,
		userID, remoteID)

	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	return p, err
}

// FindProductByBarcode returns the oldest of the user's products with barcode.
// An empty barcode never matches.
func (s *session) FindProductByBarcode(ctx context.Context, userID, barcode string) (*domain.Product, error) {
	if barcode == "" {
		return nil, store.ErrNotFound
	}

	row := s.q.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products
		WHERE user_id = ? AND barcode = ?
		ORDER BY created_at ASC, rowid ASC LIMIT 1`,
		userID, barcode)

	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	return p, err
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// AllProducts returns every product of every user. Used to rebuild the search
// index and by offline inspection tools.
func (s *Store) AllProducts(ctx context.Context) ([]*domain.Product, error) {
	var out []*domain.Product
	err := s.Read(ctx, func(tx store.Session) error {
		sess := tx.(*session)
		rows, err := sess.query(ctx, sq.Select(productColumnList...).
			From("products").
			OrderBy("user_id", "created_at", "rowid"))
		if err != nil {
			return fmt.Errorf("list all products: %w", err)
		}
		out, err = scanProducts(rows)
		return err
	})
	return out, err
}
