package settlement

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/tileduel/tileduel-backend/internal/store"
)

// Retrier re-issues payouts that failed at completion time. It runs as
// a periodic job; each pass walks the pending sessions oldest first and
// clears the flag only after every transfer for that session succeeds.
type Retrier struct {
	store store.SessionStore
	payer Payer
	log   *zap.Logger
}

func NewRetrier(st store.SessionStore, payer Payer, log *zap.Logger) *Retrier {
	return &Retrier{store: st, payer: payer, log: log}
}

func (r *Retrier) Run(ctx context.Context) error {
	pending, err := r.store.ListPayoutPending(ctx)
	if err != nil {
		return err
	}

	for _, s := range pending {
		if err := r.settle(ctx, s); err != nil {
			r.log.Warn("payout retry failed",
				zap.String("session_id", s.ID),
				zap.Error(err))
		}
	}
	return nil
}

func (r *Retrier) settle(ctx context.Context, s *store.Session) error {
	if s.Outcome == nil || s.Payout == nil {
		return nil
	}

	var receipts []string
	switch *s.Outcome {
	case "draw":
		// Both sides get their stake back, less the fee. Payout holds
		// the per-participant amount.
		recipients := []string{s.OwnerID}
		if s.OpponentID != nil {
			recipients = append(recipients, *s.OpponentID)
		}
		for _, to := range recipients {
			receipt, err := r.payer.SendPayout(ctx, to, *s.Payout)
			if err != nil {
				return err
			}
			receipts = append(receipts, receipt)
		}
	default:
		if s.WinnerID == nil {
			return nil
		}
		receipt, err := r.payer.SendPayout(ctx, *s.WinnerID, *s.Payout)
		if err != nil {
			return err
		}
		receipts = append(receipts, receipt)
	}

	return r.store.SetPayoutReceipt(ctx, s.ID, strings.Join(receipts, ","))
}
