package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"ferrovia/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// Dialect selects placeholder syntax.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

// SQLStore reads the schedule from a relational database.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	writeMu sync.Mutex
	logger  *slog.Logger
}

// OpenSQLite opens (and creates if needed) a SQLite database file.
func OpenSQLite(path string, logger *slog.Logger) (*SQLStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewSQLStore(db, DialectSQLite, logger), nil
}

// OpenPostgres connects through the pgx database/sql driver.
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*SQLStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewSQLStore(db, DialectPostgres, logger), nil
}

func NewSQLStore(db *sql.DB, dialect Dialect, logger *slog.Logger) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		logger:  logger.With("component", "sql_store"),
	}
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureSchema creates the tables from the embedded schema.sql.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	for _, stmt := range splitStatements(schemaSQL) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	s.logger.Info("database schema ensured")
	return nil
}

func splitStatements(script string) []string {
	var stmts []string
	for _, part := range strings.Split(script, ";") {
		var lines []string
		for _, line := range strings.Split(part, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "--") {
				continue
			}
			lines = append(lines, line)
		}
		if stmt := strings.TrimSpace(strings.Join(lines, "\n")); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// rebind rewrites ? placeholders as $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const runSelect = `
	SELECT
		s.id,
		s.train_number,
		COALESCE(s.train_type, ''),
		COALESCE(s.rolling_stock, ''),
		s.departure_time,
		s.arrival_time,
		s.departure_station_id,
		s.arrival_station_id,
		COALESCE(ds.name, ''),
		COALESCE(ast.name, ''),
		s.days_mask,
		s.stops_json
	FROM sillons s
	LEFT JOIN stations ds ON ds.id = s.departure_station_id
	LEFT JOIN stations ast ON ast.id = s.arrival_station_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (domain.Run, sql.NullString, error) {
	var (
		run       domain.Run
		dep, arr  string
		mask      int64
		stopsJSON sql.NullString
	)
	err := row.Scan(
		&run.ID,
		&run.TrainNumber,
		&run.TrainType,
		&run.RollingStock,
		&dep,
		&arr,
		&run.DepartureStationID,
		&run.ArrivalStationID,
		&run.DepartureStationName,
		&run.ArrivalStationName,
		&mask,
		&stopsJSON,
	)
	if err != nil {
		return run, stopsJSON, err
	}
	if run.DepartureTime, err = domain.ParseClock(dep); err != nil {
		return run, stopsJSON, fmt.Errorf("run %d departure: %w", run.ID, err)
	}
	if run.ArrivalTime, err = domain.ParseClock(arr); err != nil {
		return run, stopsJSON, fmt.Errorf("run %d arrival: %w", run.ID, err)
	}
	run.DaysMask = uint8(mask) & domain.AllDays
	return run, stopsJSON, nil
}

func (s *SQLStore) queryRuns(ctx context.Context, op, where string, args ...any) ([]domain.Run, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(runSelect+" "+where), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", op, err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, _, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", op, err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", op, err)
	}
	return runs, nil
}

func (s *SQLStore) RunsByDeparture(ctx context.Context, stationID int64) ([]domain.Run, error) {
	return s.queryRuns(ctx, "runs by departure", "WHERE s.departure_station_id = ? ORDER BY s.departure_time, s.id", stationID)
}

func (s *SQLStore) RunsByArrival(ctx context.Context, stationID int64) ([]domain.Run, error) {
	return s.queryRuns(ctx, "runs by arrival", "WHERE s.arrival_station_id = ? ORDER BY s.arrival_time, s.id", stationID)
}

func (s *SQLStore) RunsByTrainNumber(ctx context.Context, trainNumber string) ([]domain.Run, error) {
	return s.queryRuns(ctx, "runs by train number", "WHERE s.train_number = ? ORDER BY s.id", strings.TrimSpace(trainNumber))
}

// StopsAtStation returns the intermediate calls at stationID, from
// schedule_stops and from the stops_json of runs that have no stop rows.
func (s *SQLStore) StopsAtStation(ctx context.Context, stationID int64) ([]domain.RunStop, error) {
	query := s.rebind(`
		SELECT
			st.schedule_id,
			st.stop_order,
			st.station_id,
			COALESCE(sn.name, ''),
			st.arrival_time,
			st.departure_time
		FROM schedule_stops st
		JOIN sillons s ON s.id = st.schedule_id
		LEFT JOIN stations sn ON sn.id = st.station_id
		WHERE st.station_id = ?
			AND s.departure_station_id <> ?
			AND s.arrival_station_id <> ?
		ORDER BY st.schedule_id, st.stop_order`)

	rows, err := s.db.QueryContext(ctx, query, stationID, stationID, stationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stops at station: %w", err)
	}
	stops, err := scanStops(rows)
	if err != nil {
		return nil, err
	}

	runIDs := make([]int64, 0, len(stops))
	for _, st := range stops {
		runIDs = append(runIDs, st.RunID)
	}
	runs, err := s.runsByID(ctx, runIDs)
	if err != nil {
		return nil, err
	}

	result := make([]domain.RunStop, 0, len(stops))
	for _, st := range stops {
		run, ok := runs[st.RunID]
		if !ok {
			continue
		}
		result = append(result, domain.RunStop{Run: run, Stop: st})
	}

	embedded, err := s.embeddedStopsAt(ctx, stationID)
	if err != nil {
		return nil, err
	}
	return append(result, embedded...), nil
}

// embeddedStopsAt scans runs that carry their stops only as stops_json.
func (s *SQLStore) embeddedStopsAt(ctx context.Context, stationID int64) ([]domain.RunStop, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(runSelect+`
		WHERE s.stops_json IS NOT NULL
			AND s.departure_station_id <> ?
			AND s.arrival_station_id <> ?
			AND NOT EXISTS (SELECT 1 FROM schedule_stops x WHERE x.schedule_id = s.id)
		ORDER BY s.id`), stationID, stationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query embedded stops: %w", err)
	}
	defer rows.Close()

	var result []domain.RunStop
	for rows.Next() {
		run, raw, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan embedded stops: %w", err)
		}
		for _, st := range s.decodeStops(run.ID, raw) {
			if st.StationID == stationID {
				result = append(result, domain.RunStop{Run: run, Stop: st})
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating embedded stops: %w", err)
	}
	return result, nil
}

func (s *SQLStore) decodeStops(runID int64, raw sql.NullString) []domain.Stop {
	if !raw.Valid {
		return nil
	}
	stops, err := domain.ParseStopsJSON(runID, raw.String)
	if err != nil {
		s.logger.Debug("ignoring malformed stops_json", "run_id", runID, "error", err)
		return nil
	}
	return stops
}

func (s *SQLStore) runsByID(ctx context.Context, ids []int64) (map[int64]domain.Run, error) {
	result := make(map[int64]domain.Run, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := make([]string, 0, len(ids))
	args := make([]any, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		placeholders = append(placeholders, "?")
		args = append(args, id)
	}

	runs, err := s.queryRuns(ctx, "runs by id", "WHERE s.id IN ("+strings.Join(placeholders, ", ")+")", args...)
	if err != nil {
		return nil, err
	}
	for _, run := range runs {
		result[run.ID] = run
	}
	return result, nil
}

func scanStops(rows *sql.Rows) ([]domain.Stop, error) {
	defer rows.Close()

	var stops []domain.Stop
	for rows.Next() {
		var (
			st       domain.Stop
			arr, dep sql.NullString
		)
		if err := rows.Scan(&st.RunID, &st.Order, &st.StationID, &st.StationName, &arr, &dep); err != nil {
			return nil, fmt.Errorf("failed to scan stop: %w", err)
		}
		var err error
		if st.ArrivalTime, err = domain.ParseOptionalClock(arr.String); err != nil {
			return nil, fmt.Errorf("stop %d of run %d: %w", st.Order, st.RunID, err)
		}
		if st.DepartureTime, err = domain.ParseOptionalClock(dep.String); err != nil {
			return nil, fmt.Errorf("stop %d of run %d: %w", st.Order, st.RunID, err)
		}
		stops = append(stops, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stops: %w", err)
	}
	return stops, nil
}

// StopsForRun returns a run's stops from schedule_stops, falling back to its
// stops_json.
func (s *SQLStore) StopsForRun(ctx context.Context, runID int64) ([]domain.Stop, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT
			st.schedule_id,
			st.stop_order,
			st.station_id,
			COALESCE(sn.name, ''),
			st.arrival_time,
			st.departure_time
		FROM schedule_stops st
		LEFT JOIN stations sn ON sn.id = st.station_id
		WHERE st.schedule_id = ?
		ORDER BY st.stop_order`), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stops for run: %w", err)
	}
	stops, err := scanStops(rows)
	if err != nil {
		return nil, err
	}
	if len(stops) > 0 {
		return stops, nil
	}

	var raw sql.NullString
	err = s.db.QueryRowContext(ctx, s.rebind(`SELECT stops_json FROM sillons WHERE id = ?`), runID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query stops_json: %w", err)
	}
	return s.decodeStops(runID, raw), nil
}

func (s *SQLStore) Variant(ctx context.Context, runID int64, date time.Time) (*domain.Variant, error) {
	var (
		typ   string
		delay sql.NullInt64
		cause sql.NullString
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT type, delay_minutes, cause
		FROM schedule_daily_variants
		WHERE schedule_id = ? AND date = ?`), runID, domain.DateKey(date)).Scan(&typ, &delay, &cause)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query variant: %w", err)
	}
	return &domain.Variant{
		RunID:        runID,
		Date:         domain.DateKey(date),
		Type:         domain.ParseVariantType(typ),
		DelayMinutes: int(delay.Int64),
		Cause:        cause.String,
	}, nil
}

func (s *SQLStore) exists(ctx context.Context, op, query string, args ...any) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.rebind(query), args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query %s: %w", op, err)
	}
	return true, nil
}

func (s *SQLStore) IsExcluded(ctx context.Context, runID int64, date time.Time) (bool, error) {
	return s.exists(ctx, "exclusion",
		`SELECT 1 FROM schedule_custom_exclude WHERE schedule_id = ? AND date = ?`, runID, domain.DateKey(date))
}

func (s *SQLStore) IsIncluded(ctx context.Context, runID int64, date time.Time) (bool, error) {
	return s.exists(ctx, "inclusion",
		`SELECT 1 FROM schedule_custom_include WHERE schedule_id = ? AND date = ?`, runID, domain.DateKey(date))
}

func (s *SQLStore) Platform(ctx context.Context, runID, stationID int64) (string, bool, error) {
	var platform string
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT platform FROM schedule_platforms
		WHERE schedule_id = ? AND station_id = ?`), runID, stationID).Scan(&platform)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query platform: %w", err)
	}
	return platform, true, nil
}

const stationSelect = `
	SELECT id, name, COALESCE(region, ''), COALESCE(slug, ''), COALESCE(station_type, '')
	FROM stations`

func scanStation(row rowScanner) (domain.Station, error) {
	var (
		st    domain.Station
		class string
	)
	if err := row.Scan(&st.ID, &st.Name, &st.Region, &st.Slug, &class); err != nil {
		return st, err
	}
	st.Class = domain.ParseStationClass(class)
	return st, nil
}

func (s *SQLStore) Station(ctx context.Context, id int64) (*domain.Station, error) {
	st, err := scanStation(s.db.QueryRowContext(ctx, s.rebind(stationSelect+` WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query station: %w", err)
	}
	return &st, nil
}

// SearchStations ranks the whole station table in Go: accent-insensitive
// matching is not portable across the two SQL dialects.
func (s *SQLStore) SearchStations(ctx context.Context, query string, limit int) ([]domain.Station, error) {
	stations, err := s.AllStations(ctx)
	if err != nil {
		return nil, err
	}
	return domain.RankStations(stations, query, limit), nil
}

func (s *SQLStore) AllStations(ctx context.Context) ([]domain.Station, error) {
	rows, err := s.db.QueryContext(ctx, stationSelect+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stations: %w", err)
	}
	defer rows.Close()

	var stations []domain.Station
	for rows.Next() {
		st, err := scanStation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan station: %w", err)
		}
		stations = append(stations, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stations: %w", err)
	}
	return stations, nil
}
