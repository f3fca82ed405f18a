package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shelflifeapp/shelflife/internal/domain"
	"github.com/shelflifeapp/shelflife/internal/store"
)

var remoteIDTables = map[domain.EntityKind]string{
	domain.KindProduct: "products",
	domain.KindBag:     "bags",
	domain.KindTag:     "tags",
}

// BindRemoteID records the remote id of a local entity once.
func (s *session) BindRemoteID(ctx context.Context, kind domain.EntityKind, localID, remoteID string) error {
	if err := s.mutable(); err != nil {
		return err
	}
	table, ok := remoteIDTables[kind]
	if !ok {
		return fmt.Errorf("no remote id for kind %q", kind)
	}

	current, err := s.RemoteID(ctx, kind, localID)
	if err != nil {
		return err
	}
	switch current {
	case remoteID:
		return nil
	case "":
	default:
		return store.ErrRemoteIDBound
	}

	_, err = s.q.ExecContext(ctx,
		`UPDATE `+table+` SET remote_id = ? WHERE id = ? AND remote_id IS NULL`,
		remoteID, localID)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrRemoteIDBound
		}
		return fmt.Errorf("bind remote id: %w", err)
	}

	if kind == domain.KindProduct {
		p, err := s.GetProduct(ctx, localID)
		if err != nil {
			return err
		}
		s.record(store.Change{
			Kind:      store.ChangeProductUpdated,
			UserID:    p.UserID,
			EntityID:  p.ID,
			ProductID: p.ID,
			Data:      p,
		})
	}
	return nil
}

// RemoteID returns the bound remote id, or "" when none is bound.
// Returns store.ErrNotFound when the local entity does not exist.
func (s *session) RemoteID(ctx context.Context, kind domain.EntityKind, localID string) (string, error) {
	table, ok := remoteIDTables[kind]
	if !ok {
		return "", fmt.Errorf("no remote id for kind %q", kind)
	}

	var remoteID sql.NullString
	err := s.q.QueryRowContext(ctx, `SELECT remote_id FROM `+table+` WHERE id = ?`, localID).Scan(&remoteID)
	if err == sql.ErrNoRows {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return remoteID.String, nil
}
