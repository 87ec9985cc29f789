package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("wager not found")

// Postgres implementa o journal de apostas em banco Postgres
type Postgres struct{ db *sql.DB }

// NewPostgres retorna uma instância do journal de apostas
func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// CreateAwaiting insere a aposta recém aceita com status AWAITING_RANDOMNESS.
// Reenvio do mesmo endereço não duplica a linha.
func (p *Postgres) CreateAwaiting(ctx context.Context, w *Wager) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO wagers (address,table_address,player,randomness,bet_seq,kind,stake,status,signature)
		VALUES ($1,$2,$3,$4,$5,$6,$7,'AWAITING_RANDOMNESS',$8)
		ON CONFLICT (address) DO NOTHING`,
		w.Address, w.Table, w.Player, w.Randomness, int64(w.BetSeq), w.Kind, int64(w.Stake), w.Signature,
	)
	if err != nil {
		return fmt.Errorf("insert wager: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tx.Commit()
	}
	if err := insertTransition(ctx, tx, w.Address, "SUBMITTED", "AWAITING_RANDOMNESS", ""); err != nil {
		return err
	}
	return tx.Commit()
}

// Get retorna a linha do journal pelo endereço da aposta
func (p *Postgres) Get(ctx context.Context, address string) (*Wager, error) {
	var (
		w             Wager
		betSeq, stake int64
		reason, sig   sql.NullString
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT address,table_address,player,randomness,bet_seq,kind,stake,status,reason,signature,created_at,updated_at
		FROM wagers WHERE address=$1`, address).
		Scan(&w.Address, &w.Table, &w.Player, &w.Randomness, &betSeq, &w.Kind, &stake,
			&w.Status, &reason, &sig, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	w.BetSeq = uint64(betSeq)
	w.Stake = uint64(stake)
	w.Reason = reason.String
	w.Signature = sig.String
	return &w, nil
}

// Transition move a aposta para newStatus e grava o histórico.
// Sem mudança de status é no-op; aposta desconhecida devolve ErrNotFound.
func (p *Postgres) Transition(ctx context.Context, address, newStatus, reason string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var old string
	err = tx.QueryRowContext(ctx, `SELECT status FROM wagers WHERE address=$1 FOR UPDATE`, address).Scan(&old)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if old == newStatus {
		return nil
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE wagers SET status=$1, reason=NULLIF($2,''), updated_at=NOW() WHERE address=$3`,
		newStatus, reason, address); err != nil {
		return fmt.Errorf("update wager: %w", err)
	}
	if err := insertTransition(ctx, tx, address, old, newStatus, reason); err != nil {
		return err
	}
	return tx.Commit()
}

// History lista as transições de uma aposta em ordem cronológica
func (p *Postgres) History(ctx context.Context, address string) ([]Transition, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id,wager_address,old_status,new_status,COALESCE(reason,''),created_at
		FROM wager_transitions WHERE wager_address=$1 ORDER BY created_at`, address)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var t Transition
		if err := rows.Scan(&t.ID, &t.Wager, &t.OldStatus, &t.NewStatus, &t.Reason, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func insertTransition(ctx context.Context, tx *sql.Tx, address, oldStatus, newStatus, reason string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wager_transitions (id, wager_address, old_status, new_status, reason, created_at)
		VALUES ($1,$2,$3,$4,NULLIF($5,''),NOW())`,
		uuid.NewString(), address, oldStatus, newStatus, reason)
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}
