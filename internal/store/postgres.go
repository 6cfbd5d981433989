package store

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PostgresStore backs SessionStore with Postgres through gorm. All
// check-and-set methods are single conditional UPDATEs (or a
// conditional DELETE) judged by RowsAffected, so two racing writers
// can never both pass the same guard.
type PostgresStore struct {
	db  *gorm.DB
	log *zap.Logger
}

var _ SessionStore = (*PostgresStore)(nil)

func NewPostgresStore(db *gorm.DB, log *zap.Logger) (*PostgresStore, error) {
	if err := db.AutoMigrate(&Session{}); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db, log: log}, nil
}

func (p *PostgresStore) Create(ctx context.Context, s *Session) error {
	return p.db.WithContext(ctx).Create(s).Error
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Session, error) {
	var s Session
	err := p.db.WithContext(ctx).First(&s, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (p *PostgresStore) SetOpponent(ctx context.Context, id, opponentID, opponentName string) error {
	tx := p.db.WithContext(ctx).Model(&Session{}).
		Where("id = ? AND opponent_id IS NULL", id).
		Updates(map[string]any{
			"opponent_id":   opponentID,
			"opponent_name": opponentName,
		})
	return p.conditionResult(ctx, tx, id, ErrOpponentSet)
}

func (p *PostgresStore) SetScore(ctx context.Context, id string, slot ScoreSlot, score int) error {
	column := "owner_score"
	if slot == SlotOpponent {
		column = "opponent_score"
	}

	tx := p.db.WithContext(ctx).Model(&Session{}).
		Where("id = ? AND "+column+" IS NULL", id).
		Update(column, score)
	return p.conditionResult(ctx, tx, id, ErrScoreSet)
}

func (p *PostgresStore) Complete(ctx context.Context, id string, c Completion) error {
	tx := p.db.WithContext(ctx).Model(&Session{}).
		Where("id = ? AND completed_at IS NULL", id).
		Updates(map[string]any{
			"outcome":        c.Outcome,
			"winner_id":      c.WinnerID,
			"payout":         c.Payout,
			"payout_pending": c.PayoutPending,
			"completed_at":   c.CompletedAt,
		})
	return p.conditionResult(ctx, tx, id, ErrAlreadyCompleted)
}

func (p *PostgresStore) DeleteWaiting(ctx context.Context, id string) error {
	tx := p.db.WithContext(ctx).
		Where("id = ? AND opponent_id IS NULL", id).
		Delete(&Session{})
	return p.conditionResult(ctx, tx, id, ErrHasOpponent)
}

func (p *PostgresStore) SetPayoutReceipt(ctx context.Context, id, receipt string) error {
	tx := p.db.WithContext(ctx).Model(&Session{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"payout_receipt": receipt,
			"payout_pending": false,
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) ListWaiting(ctx context.Context) ([]*Session, error) {
	var out []*Session
	err := p.db.WithContext(ctx).
		Where("opponent_id IS NULL").
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

func (p *PostgresStore) ListPayoutPending(ctx context.Context) ([]*Session, error) {
	var out []*Session
	err := p.db.WithContext(ctx).
		Where("completed_at IS NOT NULL AND payout_pending").
		Order("completed_at ASC").
		Find(&out).Error
	return out, err
}

// conditionResult maps a zero-row conditional write to the right
// sentinel: the row is either gone (ErrNotFound) or the guard failed
// because another writer got there first.
func (p *PostgresStore) conditionResult(ctx context.Context, tx *gorm.DB, id string, guardErr error) error {
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected > 0 {
		return nil
	}
	if _, err := p.Get(ctx, id); errors.Is(err, ErrNotFound) {
		return ErrNotFound
	} else if err != nil {
		return err
	}
	return guardErr
}
