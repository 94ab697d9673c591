package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/growfi/growfi-server/internal/database"
	"github.com/growfi/growfi-server/internal/model"
)

const ownershipColumns = "farm_id, plot_id, farm_name, user_id, holder, token_id, price_paid_xrp, crop, estimated_yield_kg, tx_ref, simulated, purchased_at"

// OwnershipRepo stores ownership records keyed by (farm_id, plot_id).
type OwnershipRepo struct {
	DB      *sql.DB
	Dialect database.Dialect
}

func NewOwnershipRepo(db *sql.DB, d database.Dialect) *OwnershipRepo {
	return &OwnershipRepo{DB: db, Dialect: d}
}

// upsertSQL overwrites every column of an existing record, never a subset.
func (r *OwnershipRepo) upsertSQL() string {
	insert := "INSERT INTO ownership_records (" + ownershipColumns + ") VALUES (?,?,?,?,?,?,?,?,?,?,?,?)"
	cols := strings.Split(ownershipColumns, ", ")[2:]
	sets := make([]string, len(cols))
	if r.Dialect == database.SQLite {
		for i, c := range cols {
			sets[i] = c + "=excluded." + c
		}
		return insert + " ON CONFLICT(farm_id, plot_id) DO UPDATE SET " + strings.Join(sets, ", ")
	}
	for i, c := range cols {
		sets[i] = c + "=VALUES(" + c + ")"
	}
	return insert + " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
}

// SaveOwnership writes all records in one transaction.  A record for a
// plot that is already owned replaces the previous one.
func (r *OwnershipRepo) SaveOwnership(ctx context.Context, records []model.OwnershipRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, r.upsertSQL())
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		if rec.FarmID == "" || rec.PlotID == "" {
			return fmt.Errorf("ownership record without farm or plot id")
		}
		if _, err := stmt.ExecContext(ctx,
			rec.FarmID, rec.PlotID, rec.FarmName, rec.UserID, rec.Holder, rec.TokenID,
			rec.PricePaidXRP, rec.Crop, rec.EstimatedYieldKg, rec.TxRef, rec.Simulated,
			rec.PurchasedAt.UTC()); err != nil {
			return fmt.Errorf("save %s/%s: %w", rec.FarmID, rec.PlotID, err)
		}
	}
	return tx.Commit()
}

// Get returns the record of one plot.
func (r *OwnershipRepo) Get(ctx context.Context, farmID, plotID string) (model.OwnershipRecord, error) {
	recs, err := r.list(ctx, "WHERE farm_id=? AND plot_id=? LIMIT 1", farmID, plotID)
	if err != nil {
		return model.OwnershipRecord{}, err
	}
	if len(recs) == 0 {
		return model.OwnershipRecord{}, ErrNotFound
	}
	return recs[0], nil
}

// ListByUser returns the records of an account, newest first.
func (r *OwnershipRepo) ListByUser(ctx context.Context, userID uint64) ([]model.OwnershipRecord, error) {
	return r.list(ctx, "WHERE user_id=? ORDER BY purchased_at DESC, farm_id, plot_id", userID)
}

// ListByHolder returns the records held by a wallet address, newest first.
func (r *OwnershipRepo) ListByHolder(ctx context.Context, holder string) ([]model.OwnershipRecord, error) {
	return r.list(ctx, "WHERE holder=? ORDER BY purchased_at DESC, farm_id, plot_id", holder)
}

// ListByFarm returns the records of a farm ordered by plot.
func (r *OwnershipRepo) ListByFarm(ctx context.Context, farmID string) ([]model.OwnershipRecord, error) {
	return r.list(ctx, "WHERE farm_id=? ORDER BY plot_id", farmID)
}

func (r *OwnershipRepo) list(ctx context.Context, where string, args ...any) ([]model.OwnershipRecord, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT "+ownershipColumns+" FROM ownership_records "+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.OwnershipRecord{}
	for rows.Next() {
		var rec model.OwnershipRecord
		if err := rows.Scan(&rec.FarmID, &rec.PlotID, &rec.FarmName, &rec.UserID, &rec.Holder,
			&rec.TokenID, &rec.PricePaidXRP, &rec.Crop, &rec.EstimatedYieldKg, &rec.TxRef,
			&rec.Simulated, &rec.PurchasedAt); err != nil {
			return nil, err
		}
		rec.PurchasedAt = rec.PurchasedAt.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return out, nil
}
