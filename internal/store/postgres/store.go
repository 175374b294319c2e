// Package postgres implements store.Store on PostgreSQL through a pgx connection pool.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NovaUNL/Supernova-sub000/internal/config"
	"github.com/NovaUNL/Supernova-sub000/internal/model"
	"github.com/NovaUNL/Supernova-sub000/internal/store"
)

// Store is the pgx backed store.
type Store struct {
	pool *pgxpool.Pool

	departments    *repository[*model.Department]
	buildings      *repository[*model.Building]
	rooms          *repository[*model.Room]
	courses        *repository[*model.Course]
	classes        *repository[*model.Class]
	classInstances *repository[*model.ClassInstance]
	turns          *repository[*model.Turn]
	turnInstances  *repository[*model.TurnInstance]
	enrollments    *repository[*model.Enrollment]
	classEvents    *repository[*model.ClassEvent]
	classFiles     *repository[*model.ClassFile]
	students       *repository[*model.Student]
	teachers       *repository[*model.Teacher]
}

var _ store.Store = (*Store)(nil)

// New wraps an existing pool. Close closes the pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:           pool,
		departments:    newRepository(pool, departments),
		buildings:      newRepository(pool, buildings),
		rooms:          newRepository(pool, rooms),
		courses:        newRepository(pool, courses),
		classes:        newRepository(pool, classes),
		classInstances: newRepository(pool, classInstances),
		turns:          newRepository(pool, turns),
		turnInstances:  newRepository(pool, turnInstances),
		enrollments:    newRepository(pool, enrollments),
		classEvents:    newRepository(pool, classEvents),
		classFiles:     newRepository(pool, classFiles),
		students:       newRepository(pool, students),
		teachers:       newRepository(pool, teachers),
	}
}

// Connect builds a connection pool with the configured limits and checks it is reachable.
func Connect(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration is required")
	}
	connStr, err := cfg.GetConnectionString()
	if err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database connection string: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	}
	if cfg.ConnMaxLifetime != "" {
		lifetime, err := time.ParseDuration(cfg.ConnMaxLifetime)
		if err != nil {
			return nil, fmt.Errorf("failed to parse connMaxLifetime: %w", err)
		}
		poolConfig.MaxConnLifetime = lifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	slog.Info("Database connection pool created successfully", "host", cfg.Host, "database", cfg.Database)
	return pool, nil
}

// Pool exposes the underlying pool for components sharing the connection.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Departments implements store.Store.
func (s *Store) Departments() store.Repository[*model.Department] { return s.departments }

// Buildings implements store.Store.
func (s *Store) Buildings() store.Repository[*model.Building] { return s.buildings }

// Rooms implements store.Store.
func (s *Store) Rooms() store.Repository[*model.Room] { return s.rooms }

// Courses implements store.Store.
func (s *Store) Courses() store.Repository[*model.Course] { return s.courses }

// Classes implements store.Store.
func (s *Store) Classes() store.Repository[*model.Class] { return s.classes }

// ClassInstances implements store.Store.
func (s *Store) ClassInstances() store.Repository[*model.ClassInstance] { return s.classInstances }

// Turns implements store.Store.
func (s *Store) Turns() store.Repository[*model.Turn] { return s.turns }

// TurnInstances implements store.Store.
func (s *Store) TurnInstances() store.Repository[*model.TurnInstance] { return s.turnInstances }

// Enrollments implements store.Store.
func (s *Store) Enrollments() store.Repository[*model.Enrollment] { return s.enrollments }

// ClassEvents implements store.Store.
func (s *Store) ClassEvents() store.Repository[*model.ClassEvent] { return s.classEvents }

// ClassFiles implements store.Store.
func (s *Store) ClassFiles() store.Repository[*model.ClassFile] { return s.classFiles }

// Students implements store.Store.
func (s *Store) Students() store.Repository[*model.Student] { return s.students }

// Teachers implements store.Store.
func (s *Store) Teachers() store.Repository[*model.Teacher] { return s.teachers }

// Links implements store.Store. It panics on an unknown relation.
func (s *Store) Links(rel model.Relation) store.Links {
	t, ok := linkTables[rel]
	if !ok {
		panic(fmt.Sprintf("unknown relation %q", rel))
	}
	return &links{pool: s.pool, table: t[0], owner: t[1], target: t[2], targetTable: t[3]}
}

// PropagateDisappearance implements store.Store.
func (s *Store) PropagateDisappearance(ctx context.Context, edge model.Ownership) (int64, error) {
	t, ok := edgeTables[edge]
	if !ok {
		return 0, fmt.Errorf("unknown ownership edge %s", edge)
	}
	sql := fmt.Sprintf(
		"UPDATE %s c SET disappeared = TRUE FROM %s p WHERE c.%s = p.id AND p.disappeared AND NOT c.disappeared",
		t[0], t[2], t[1])
	tag, err := s.pool.Exec(ctx, sql)
	if err != nil {
		return 0, fmt.Errorf("failed to propagate %s: %w", edge, err)
	}
	return tag.RowsAffected(), nil
}

// ActiveClassInstances implements store.Store.
func (s *Store) ActiveClassInstances(ctx context.Context, year, period int) ([]*model.ClassInstance, error) {
	return s.classInstances.query(ctx, s.classInstances.selectSQL+`
		WHERE e.year = $1 AND e.period = $2 AND NOT e.disappeared
		  AND (EXISTS (SELECT 1 FROM turn t WHERE t.class_instance_id = e.id)
		    OR EXISTS (SELECT 1 FROM enrollment n WHERE n.class_instance_id = e.id))
		ORDER BY e.id`, year, period)
}

// SaveAggregates implements store.Store. Every value is written in one transaction.
func (s *Store) SaveAggregates(ctx context.Context, agg store.Aggregates) error {
	batch := &pgx.Batch{}
	for id, extinguished := range agg.ExtinguishedClasses {
		batch.Queue(`UPDATE class SET extinguished = $2 WHERE id = $1 AND extinguished <> $2`, id, extinguished)
	}
	for id, st := range agg.Students {
		batch.Queue(`UPDATE student SET year = $2, first_year = $3, last_year = $4, credits = $5
			WHERE id = $1 AND (year, first_year, last_year, credits) IS DISTINCT FROM ($2, $3, $4, $5)`,
			id, st.Year, st.Span.First, st.Span.Last, st.Credits)
	}
	for id, span := range agg.Teachers {
		batch.Queue(`UPDATE teacher SET first_year = $2, last_year = $3
			WHERE id = $1 AND (first_year, last_year) IS DISTINCT FROM ($2, $3)`,
			id, span.First, span.Last)
	}
	if batch.Len() == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to save aggregates: %w", err)
		}
		return nil
	})
}

// Close implements store.Store.
func (s *Store) Close() {
	s.pool.Close()
}

type links struct {
	pool        *pgxpool.Pool
	table       string
	owner       string
	target      string
	targetTable string
}

func (l *links) Targets(ctx context.Context, ownerID int64) (map[int64]int64, error) {
	sql := fmt.Sprintf(`SELECT t.external_id, t.id FROM %s j JOIN %s t ON t.id = j.%s
		WHERE j.%s = $1 AND t.external_id IS NOT NULL`, l.table, l.targetTable, l.target, l.owner)
	rows, err := l.pool.Query(ctx, sql, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", l.table, err)
	}
	defer rows.Close()

	out := make(map[int64]int64)
	for rows.Next() {
		var ext, id int64
		if err := rows.Scan(&ext, &id); err != nil {
			return nil, err
		}
		out[ext] = id
	}
	return out, rows.Err()
}

func (l *links) Add(ctx context.Context, ownerID int64, targetIDs []int64) error {
	if len(targetIDs) == 0 {
		return nil
	}
	sql := fmt.Sprintf(`INSERT INTO %s (%s, %s) SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING`,
		l.table, l.owner, l.target)
	if _, err := l.pool.Exec(ctx, sql, ownerID, targetIDs); err != nil {
		return fmt.Errorf("failed to link %s: %w", l.table, err)
	}
	return nil
}

func (l *links) Remove(ctx context.Context, ownerID int64, targetIDs []int64) error {
	if len(targetIDs) == 0 {
		return nil
	}
	sql := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND %s = ANY($2)`, l.table, l.owner, l.target)
	if _, err := l.pool.Exec(ctx, sql, ownerID, targetIDs); err != nil {
		return fmt.Errorf("failed to unlink %s: %w", l.table, err)
	}
	return nil
}

func (l *links) All(ctx context.Context) ([]model.Link, error) {
	rows, err := l.pool.Query(ctx, fmt.Sprintf(`SELECT %s, %s FROM %s`, l.owner, l.target, l.table))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", l.table, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Link, error) {
		var link model.Link
		err := row.Scan(&link.OwnerID, &link.TargetID)
		return link, err
	})
}
