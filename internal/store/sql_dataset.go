package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ferrovia/internal/domain"
)

var datasetTables = []string{
	"infos_trafics",
	"schedule_platforms",
	"schedule_custom_exclude",
	"schedule_custom_include",
	"schedule_daily_variants",
	"schedule_stops",
	"sillons",
	"stations",
}

// Import replaces the database content with ds in one transaction.
func (s *SQLStore) Import(ctx context.Context, ds *domain.Dataset) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin import: %w", err)
	}
	defer tx.Rollback()

	for _, table := range datasetTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if err := s.insertStations(ctx, tx, ds.Stations); err != nil {
		return err
	}
	if err := s.insertRuns(ctx, tx, ds.Runs); err != nil {
		return err
	}
	if err := s.insertOverrides(ctx, tx, "schedule_custom_include", ds.Inclusions); err != nil {
		return err
	}
	if err := s.insertOverrides(ctx, tx, "schedule_custom_exclude", ds.Exclusions); err != nil {
		return err
	}

	insertVariant := s.rebind(`
		INSERT INTO schedule_daily_variants (schedule_id, date, type, delay_minutes, cause)
		VALUES (?, ?, ?, ?, ?)`)
	for _, v := range ds.Variants {
		if _, err := tx.ExecContext(ctx, insertVariant, v.RunID, v.Date, string(domain.ParseVariantType(string(v.Type))), v.DelayMinutes, nullString(v.Cause)); err != nil {
			return fmt.Errorf("failed to insert variant for run %d: %w", v.RunID, err)
		}
	}

	insertPlatform := s.rebind(`
		INSERT INTO schedule_platforms (schedule_id, station_id, platform)
		VALUES (?, ?, ?)`)
	for _, p := range ds.Platforms {
		if _, err := tx.ExecContext(ctx, insertPlatform, p.RunID, p.StationID, p.Platform); err != nil {
			return fmt.Errorf("failed to insert platform for run %d: %w", p.RunID, err)
		}
	}

	if err := s.insertTraffic(ctx, tx, ds.Traffic); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit import: %w", err)
	}

	stats := ds.Stats()
	s.logger.Info("dataset imported",
		"stations", stats.Stations,
		"runs", stats.Runs,
		"stops", stats.Stops,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (s *SQLStore) insertStations(ctx context.Context, tx *sql.Tx, stations []domain.Station) error {
	query := s.rebind(`
		INSERT INTO stations (id, name, region, slug, station_type)
		VALUES (?, ?, ?, ?, ?)`)
	for _, st := range stations {
		var class any
		if st.Class != domain.StationClassUnknown {
			class = st.Class.String()
		}
		if _, err := tx.ExecContext(ctx, query, st.ID, st.Name, nullString(st.Region), nullString(st.Slug), class); err != nil {
			return fmt.Errorf("failed to insert station %d: %w", st.ID, err)
		}
	}
	return nil
}

func (s *SQLStore) insertRuns(ctx context.Context, tx *sql.Tx, runs []domain.Run) error {
	insertRun := s.rebind(`
		INSERT INTO sillons (id, train_number, train_type, rolling_stock, departure_station_id,
			arrival_station_id, departure_time, arrival_time, days_mask)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	insertStop := s.rebind(`
		INSERT INTO schedule_stops (schedule_id, stop_order, station_id, arrival_time, departure_time)
		VALUES (?, ?, ?, ?, ?)`)

	for _, run := range runs {
		_, err := tx.ExecContext(ctx, insertRun,
			run.ID, run.TrainNumber, nullString(run.TrainType), nullString(run.RollingStock),
			run.DepartureStationID, run.ArrivalStationID,
			run.DepartureTime.String(), run.ArrivalTime.String(), int64(run.DaysMask),
		)
		if err != nil {
			return fmt.Errorf("failed to insert run %d: %w", run.ID, err)
		}
		for _, st := range run.Stops {
			if _, err := tx.ExecContext(ctx, insertStop, run.ID, st.Order, st.StationID, nullClock(st.ArrivalTime), nullClock(st.DepartureTime)); err != nil {
				return fmt.Errorf("failed to insert stop %d of run %d: %w", st.Order, run.ID, err)
			}
		}
	}
	return nil
}

func (s *SQLStore) insertOverrides(ctx context.Context, tx *sql.Tx, table string, overrides []domain.DateOverride) error {
	query := s.rebind("INSERT INTO " + table + " (schedule_id, date) VALUES (?, ?)")
	for _, o := range overrides {
		if _, err := tx.ExecContext(ctx, query, o.RunID, o.Date); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}
	return nil
}

// Dump reads the whole database into a dataset.
func (s *SQLStore) Dump(ctx context.Context) (*domain.Dataset, error) {
	start := time.Now()
	ds := &domain.Dataset{}

	stations, err := s.AllStations(ctx)
	if err != nil {
		return nil, err
	}
	ds.Stations = stations

	if ds.Runs, err = s.dumpRuns(ctx); err != nil {
		return nil, err
	}
	if ds.Inclusions, err = s.dumpOverrides(ctx, "schedule_custom_include"); err != nil {
		return nil, err
	}
	if ds.Exclusions, err = s.dumpOverrides(ctx, "schedule_custom_exclude"); err != nil {
		return nil, err
	}
	if ds.Variants, err = s.dumpVariants(ctx); err != nil {
		return nil, err
	}
	if ds.Platforms, err = s.dumpPlatforms(ctx); err != nil {
		return nil, err
	}
	traffic, err := s.AllTrafficInfo(ctx)
	if err != nil {
		return nil, err
	}
	if len(traffic) > 0 {
		ds.Traffic = traffic
	}

	s.logger.Debug("dataset dumped", "runs", len(ds.Runs), "duration_ms", time.Since(start).Milliseconds())
	return ds, nil
}

// DatasetStats counts the rows of every schedule table. Stops embedded only
// in stops_json are not counted.
func (s *SQLStore) DatasetStats(ctx context.Context) (domain.DatasetStats, error) {
	var stats domain.DatasetStats
	counts := []struct {
		table string
		dest  *int
	}{
		{"stations", &stats.Stations},
		{"sillons", &stats.Runs},
		{"schedule_stops", &stats.Stops},
		{"schedule_custom_include", &stats.Inclusions},
		{"schedule_custom_exclude", &stats.Exclusions},
		{"schedule_daily_variants", &stats.Variants},
		{"schedule_platforms", &stats.Platforms},
		{"infos_trafics", &stats.Traffic},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dest); err != nil {
			return stats, fmt.Errorf("failed to count %s: %w", c.table, err)
		}
	}
	return stats, nil
}

func (s *SQLStore) dumpRuns(ctx context.Context) ([]domain.Run, error) {
	rows, err := s.db.QueryContext(ctx, runSelect+` ORDER BY s.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var (
		runs     []domain.Run
		embedded = make(map[int64]sql.NullString)
	)
	for rows.Next() {
		run, raw, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
		embedded[run.ID] = raw
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	stopRows, err := s.db.QueryContext(ctx, `
		SELECT
			st.schedule_id,
			st.stop_order,
			st.station_id,
			COALESCE(sn.name, ''),
			st.arrival_time,
			st.departure_time
		FROM schedule_stops st
		LEFT JOIN stations sn ON sn.id = st.station_id
		ORDER BY st.schedule_id, st.stop_order`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stops: %w", err)
	}
	stops, err := scanStops(stopRows)
	if err != nil {
		return nil, err
	}

	byRun := make(map[int64][]domain.Stop)
	for _, st := range stops {
		byRun[st.RunID] = append(byRun[st.RunID], st)
	}
	for i := range runs {
		if st, ok := byRun[runs[i].ID]; ok {
			runs[i].Stops = st
			continue
		}
		runs[i].Stops = s.decodeStops(runs[i].ID, embedded[runs[i].ID])
	}
	return runs, nil
}

func (s *SQLStore) dumpOverrides(ctx context.Context, table string) ([]domain.DateOverride, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT schedule_id, date FROM "+table+" ORDER BY schedule_id, date")
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var result []domain.DateOverride
	for rows.Next() {
		var o domain.DateOverride
		if err := rows.Scan(&o.RunID, &o.Date); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", table, err)
	}
	return result, nil
}

func (s *SQLStore) dumpVariants(ctx context.Context) ([]domain.Variant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT schedule_id, date, type, delay_minutes, cause
		FROM schedule_daily_variants
		ORDER BY schedule_id, date`)
	if err != nil {
		return nil, fmt.Errorf("failed to query variants: %w", err)
	}
	defer rows.Close()

	var result []domain.Variant
	for rows.Next() {
		var (
			v     domain.Variant
			typ   string
			delay sql.NullInt64
			cause sql.NullString
		)
		if err := rows.Scan(&v.RunID, &v.Date, &typ, &delay, &cause); err != nil {
			return nil, fmt.Errorf("failed to scan variant: %w", err)
		}
		v.Type = domain.ParseVariantType(typ)
		v.DelayMinutes = int(delay.Int64)
		v.Cause = cause.String
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating variants: %w", err)
	}
	return result, nil
}

func (s *SQLStore) dumpPlatforms(ctx context.Context) ([]domain.PlatformAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT schedule_id, station_id, platform
		FROM schedule_platforms
		ORDER BY schedule_id, station_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query platforms: %w", err)
	}
	defer rows.Close()

	var result []domain.PlatformAssignment
	for rows.Next() {
		var p domain.PlatformAssignment
		if err := rows.Scan(&p.RunID, &p.StationID, &p.Platform); err != nil {
			return nil, fmt.Errorf("failed to scan platform: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating platforms: %w", err)
	}
	return result, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullClock(c *domain.Clock) sql.NullString {
	if c == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: c.String(), Valid: true}
}
