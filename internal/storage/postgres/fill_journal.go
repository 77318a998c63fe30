package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"market-history-lab/internal/domain"
	"market-history-lab/internal/storage"
)

// FillJournal implements storage.FillJournal using PostgreSQL. Uniqueness of
// fill_id and of the (block_height, tx_index, op_index) position is enforced
// by table constraints.
type FillJournal struct {
	pool *Pool
}

// NewFillJournal creates a new FillJournal.
func NewFillJournal(pool *Pool) *FillJournal {
	return &FillJournal{pool: pool}
}

// Compile-time interface check.
var _ storage.FillJournal = (*FillJournal)(nil)

const insertFillQuery = `
	INSERT INTO fill_events (
		fill_id, block_height, tx_index, op_index, block_time,
		pays_asset_id, pays_amount, receives_asset_id, receives_amount
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

const selectFillColumns = `
	fill_id, block_height, tx_index, op_index, block_time,
	pays_asset_id, pays_amount, receives_asset_id, receives_amount
`

// InsertBulk appends fills atomically. The whole batch rolls back on the
// first duplicate fill_id or chain position.
func (j *FillJournal) InsertBulk(ctx context.Context, fills []*domain.FillEvent) error {
	if len(fills) == 0 {
		return nil
	}

	tx, err := j.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, f := range fills {
		_, err := tx.Exec(ctx, insertFillQuery,
			f.FillID,
			int64(f.BlockHeight),
			f.TxIndex,
			f.OpIndex,
			f.BlockTime,
			int64(f.PaysAssetID),
			f.PaysAmount,
			int64(f.ReceivesAssetID),
			f.ReceivesAmount,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert fill in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByHeightRange retrieves fills with fromHeight <= BlockHeight <= toHeight,
// ordered by (height, tx_index, op_index) ASC.
func (j *FillJournal) GetByHeightRange(ctx context.Context, fromHeight, toHeight uint64) ([]*domain.FillEvent, error) {
	query := `
		SELECT ` + selectFillColumns + `
		FROM fill_events
		WHERE block_height >= $1 AND block_height <= $2
		ORDER BY block_height ASC, tx_index ASC, op_index ASC
	`

	rows, err := j.pool.Query(ctx, query, int64(fromHeight), int64(toHeight))
	if err != nil {
		return nil, fmt.Errorf("get fills by height range: %w", err)
	}
	defer rows.Close()

	return scanFills(rows)
}

// GetAll retrieves every journaled fill in chain-position order.
func (j *FillJournal) GetAll(ctx context.Context) ([]*domain.FillEvent, error) {
	query := `
		SELECT ` + selectFillColumns + `
		FROM fill_events
		ORDER BY block_height ASC, tx_index ASC, op_index ASC
	`

	rows, err := j.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all fills: %w", err)
	}
	defer rows.Close()

	return scanFills(rows)
}

// MaxHeight returns the highest journaled block height, or 0 when empty.
func (j *FillJournal) MaxHeight(ctx context.Context) (uint64, error) {
	var height int64
	err := j.pool.QueryRow(ctx, `SELECT COALESCE(MAX(block_height), 0) FROM fill_events`).Scan(&height)
	if err != nil {
		return 0, fmt.Errorf("max journaled height: %w", err)
	}
	return uint64(height), nil
}

// scanFills scans multiple rows into a slice of FillEvent.
func scanFills(rows pgx.Rows) ([]*domain.FillEvent, error) {
	var fills []*domain.FillEvent

	for rows.Next() {
		var f domain.FillEvent
		var height, paysAsset, receivesAsset int64

		err := rows.Scan(
			&f.FillID,
			&height,
			&f.TxIndex,
			&f.OpIndex,
			&f.BlockTime,
			&paysAsset,
			&f.PaysAmount,
			&receivesAsset,
			&f.ReceivesAmount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan fill row: %w", err)
		}

		f.BlockHeight = uint64(height)
		f.PaysAssetID = domain.AssetID(paysAsset)
		f.ReceivesAssetID = domain.AssetID(receivesAsset)
		fills = append(fills, &f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fill rows: %w", err)
	}

	return fills, nil
}
