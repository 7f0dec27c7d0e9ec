package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ferrovia/internal/domain"
)

const trafficSelect = `
	SELECT id, titre, contenu, COALESCE(region, ''), updated_at
	FROM infos_trafics`

const trafficOrder = ` ORDER BY updated_at DESC, id DESC`

func scanTrafficInfo(row rowScanner) (domain.TrafficInfo, error) {
	var (
		info    domain.TrafficInfo
		updated string
	)
	if err := row.Scan(&info.ID, &info.Title, &info.Content, &info.Region, &updated); err != nil {
		return info, err
	}
	t, err := time.Parse(time.RFC3339, updated)
	if err != nil {
		return info, fmt.Errorf("invalid updated_at %q for traffic info %d: %w", updated, info.ID, err)
	}
	info.UpdatedAt = t
	return info, nil
}

func (s *SQLStore) queryTraffic(ctx context.Context, query string, args ...any) ([]domain.TrafficInfo, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query traffic info: %w", err)
	}
	defer rows.Close()

	items := []domain.TrafficInfo{}
	for rows.Next() {
		info, err := scanTrafficInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan traffic info: %w", err)
		}
		items = append(items, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating traffic info: %w", err)
	}
	return items, nil
}

// AllTrafficInfo returns every notice, most recent first.
func (s *SQLStore) AllTrafficInfo(ctx context.Context) ([]domain.TrafficInfo, error) {
	return s.queryTraffic(ctx, trafficSelect+trafficOrder)
}

// TrafficInfoByRegion returns the notices of one region, most recent first.
func (s *SQLStore) TrafficInfoByRegion(ctx context.Context, region string) ([]domain.TrafficInfo, error) {
	return s.queryTraffic(ctx, trafficSelect+` WHERE region = ?`+trafficOrder, region)
}

func (s *SQLStore) TrafficInfo(ctx context.Context, id int64) (*domain.TrafficInfo, error) {
	info, err := scanTrafficInfo(s.db.QueryRowContext(ctx, s.rebind(trafficSelect+` WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query traffic info: %w", err)
	}
	return &info, nil
}

func (s *SQLStore) insertTraffic(ctx context.Context, tx *sql.Tx, items []domain.TrafficInfo) error {
	query := s.rebind(`
		INSERT INTO infos_trafics (id, titre, contenu, region, updated_at)
		VALUES (?, ?, ?, ?, ?)`)
	for _, info := range items {
		updated := info.UpdatedAt.UTC().Format(time.RFC3339)
		if _, err := tx.ExecContext(ctx, query, info.ID, info.Title, info.Content, nullString(info.Region), updated); err != nil {
			return fmt.Errorf("failed to insert traffic info %d: %w", info.ID, err)
		}
	}
	return nil
}
