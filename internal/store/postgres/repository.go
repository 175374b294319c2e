package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NovaUNL/Supernova-sub000/internal/model"
	"github.com/NovaUNL/Supernova-sub000/internal/store"
)

// uniqueViolation is the SQLSTATE of a unique constraint failure.
const uniqueViolation = "23505"

// baseColumns are shared by every importable table, in scan order.
var baseColumns = []string{
	"id", "external_id", "iid", "external_update", "frozen", "same_as", "disappeared", "external_data",
}

// mapping binds an entity kind to its table.
type mapping[T model.Entity] struct {
	table string
	// parent is the owning foreign key column, empty for roots.
	parent string
	// columns are written by Create and Update.
	columns []string
	// cached columns are only read. They are written by SaveAggregates.
	cached []string
	fresh  func() T
	// values returns the arguments for columns, in order.
	values func(T) []any
	// dests returns the scan targets for columns followed by cached.
	dests func(T) []any
}

type repository[T model.Entity] struct {
	pool      *pgxpool.Pool
	m         mapping[T]
	selectSQL string
}

func newRepository[T model.Entity](pool *pgxpool.Pool, m mapping[T]) *repository[T] {
	cols := make([]string, 0, len(baseColumns)+len(m.columns)+len(m.cached))
	for _, c := range append(append(append([]string{}, baseColumns...), m.columns...), m.cached...) {
		cols = append(cols, "e."+c)
	}
	return &repository[T]{
		pool:      pool,
		m:         m,
		selectSQL: "SELECT " + strings.Join(cols, ", ") + " FROM " + m.table + " e",
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *repository[T]) scan(row scanner) (T, error) {
	e := r.m.fresh()
	b := e.Base()
	dest := []any{&b.ID, &b.ExternalID, &b.IID, &b.ExternalUpdate, &b.Frozen, &b.SameAs, &b.Disappeared, &b.ExternalData}
	err := row.Scan(append(dest, r.m.dests(e)...)...)
	return e, err
}

func (r *repository[T]) one(ctx context.Context, where string, arg any) (T, bool, error) {
	e, err := r.scan(r.pool.QueryRow(ctx, r.selectSQL+" WHERE "+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		var zero T
		return zero, false, nil
	}
	if err != nil {
		var zero T
		return zero, false, fmt.Errorf("failed to load %s: %w", r.m.table, err)
	}
	return e, true, nil
}

func (r *repository[T]) ByExternalID(ctx context.Context, extID int64) (T, bool, error) {
	return r.one(ctx, "e.external_id = $1", extID)
}

func (r *repository[T]) ByID(ctx context.Context, id int64) (T, bool, error) {
	return r.one(ctx, "e.id = $1", id)
}

// where returns the filter for scope, or an empty clause.
func (r *repository[T]) where(scope store.Scope) (string, []any) {
	if scope.ParentID == nil || r.m.parent == "" {
		return "", nil
	}
	return " WHERE e." + r.m.parent + " = $1", []any{*scope.ParentID}
}

func (r *repository[T]) List(ctx context.Context, scope store.Scope) ([]T, error) {
	clause, args := r.where(scope)
	return r.query(ctx, r.selectSQL+clause+" ORDER BY e.id", args...)
}

func (r *repository[T]) query(ctx context.Context, sql string, args ...any) ([]T, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", r.m.table, err)
	}
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		e, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", r.m.table, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *repository[T]) Index(ctx context.Context, scope store.Scope) (model.IDSet, model.IDSet, error) {
	clause, args := r.where(scope)
	if clause == "" {
		clause = " WHERE e.external_id IS NOT NULL"
	} else {
		clause += " AND e.external_id IS NOT NULL"
	}
	rows, err := r.pool.Query(ctx, "SELECT e.external_id, e.disappeared FROM "+r.m.table+" e"+clause, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to index %s: %w", r.m.table, err)
	}
	defer rows.Close()

	known, active := model.NewIDSet(), model.NewIDSet()
	for rows.Next() {
		var (
			ext         int64
			disappeared bool
		)
		if err := rows.Scan(&ext, &disappeared); err != nil {
			return nil, nil, fmt.Errorf("failed to scan %s index: %w", r.m.table, err)
		}
		known.Add(ext)
		if !disappeared {
			active.Add(ext)
		}
	}
	return known, active, rows.Err()
}

func (r *repository[T]) Create(ctx context.Context, entity T) (T, error) {
	b := entity.Base()
	cols := append([]string{"external_id", "iid", "external_update", "disappeared", "external_data"}, r.m.columns...)
	args := append([]any{b.ExternalID, b.IID, b.ExternalUpdate, b.Disappeared, nullJSON(b.ExternalData)}, r.m.values(entity)...)

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		r.m.table, strings.Join(cols, ", "), placeholders(1, len(cols)))

	var id int64
	if err := r.pool.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		var zero T
		return zero, r.writeError("create", err)
	}
	b.ID = id
	b.Frozen = false
	b.SameAs = nil
	return entity, nil
}

func (r *repository[T]) Update(ctx context.Context, entity T) error {
	b := entity.Base()
	cols := append([]string{"external_id", "iid", "external_update", "disappeared", "external_data"}, r.m.columns...)
	args := append([]any{b.ID, b.ExternalID, b.IID, b.ExternalUpdate, b.Disappeared, nullJSON(b.ExternalData)}, r.m.values(entity)...)

	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", c, i+2)
	}
	tag, err := r.pool.Exec(ctx, "UPDATE "+r.m.table+" SET "+strings.Join(sets, ", ")+" WHERE id = $1", args...)
	if err != nil {
		return r.writeError("update", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %d is not stored", entity.Kind(), b.ID)
	}
	return nil
}

func (r *repository[T]) Touch(ctx context.Context, extIDs []int64, at time.Time) (int64, error) {
	return r.exec(ctx, "UPDATE "+r.m.table+" SET external_update = $2, disappeared = FALSE WHERE external_id = ANY($1)",
		extIDs, at)
}

func (r *repository[T]) MarkDisappeared(ctx context.Context, extIDs []int64) (int64, error) {
	return r.exec(ctx, "UPDATE "+r.m.table+" SET disappeared = TRUE WHERE NOT disappeared AND external_id = ANY($1)",
		extIDs)
}

func (r *repository[T]) exec(ctx context.Context, sql string, extIDs []int64, args ...any) (int64, error) {
	if len(extIDs) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx, sql, append([]any{extIDs}, args...)...)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", r.m.table, err)
	}
	return tag.RowsAffected(), nil
}

func (r *repository[T]) writeError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s: %s", store.ErrConflict, r.m.table, pgErr.Detail)
	}
	return fmt.Errorf("failed to %s %s: %w", op, r.m.table, err)
}

// placeholders renders "$from, ..., $(from+n-1)".
func placeholders(from, n int) string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(out, ", ")
}

// nullJSON stores an empty document as NULL.
func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
