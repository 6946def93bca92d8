package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rl1809/campus-order/internal/core/domain"
)

func (m *MySQLAdapter) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	var u domain.User
	err := m.db.QueryRowContext(ctx, `SELECT id, full_name FROM users WHERE id = ?`, userID).
		Scan(&u.ID, &u.FullName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

func (m *MySQLAdapter) GetVendor(ctx context.Context, vendorID string) (*domain.Vendor, error) {
	var v domain.Vendor
	err := m.db.QueryRowContext(ctx, `SELECT id, full_name, uni_id FROM vendors WHERE id = ?`, vendorID).
		Scan(&v.ID, &v.FullName, &v.UniID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query vendor: %w", err)
	}
	return &v, nil
}

func (m *MySQLAdapter) GetUniversity(ctx context.Context, uniID string) (*domain.University, error) {
	var u domain.University
	err := m.db.QueryRowContext(ctx, `SELECT id, name FROM universities WHERE id = ?`, uniID).
		Scan(&u.ID, &u.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query university: %w", err)
	}
	return &u, nil
}

func (m *MySQLAdapter) GetItem(ctx context.Context, itemID string, kind domain.Kind) (*domain.Item, error) {
	var it domain.Item
	err := m.db.QueryRowContext(ctx, `
		SELECT id, kind, uni_id, name, price, image, unit, type
		FROM items WHERE id = ? AND kind = ?`, itemID, kind,
	).Scan(&it.ID, &it.Kind, &it.UniID, &it.Name, &it.Price, &it.Image, &it.Unit, &it.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query item: %w", err)
	}
	return &it, nil
}

func (m *MySQLAdapter) ListVendorIDsByUni(ctx context.Context, uniID string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT id FROM vendors WHERE uni_id = ? ORDER BY id`, uniID)
	if err != nil {
		return nil, fmt.Errorf("query vendors: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan vendor id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
