package settlement

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrBadAddress = errors.New("invalid wallet address")
var ErrBadAmount = errors.New("payout amount must be positive")

// Payer issues a payout to a wallet address and returns an opaque
// receipt. Implementations must be safe for concurrent use.
type Payer interface {
	SendPayout(ctx context.Context, to string, amount decimal.Decimal) (receipt string, err error)
}

// ValidateAddress accepts the two TON address forms: the user-friendly
// base64url form (EQ/UQ prefix, 48 chars) and the raw workchain:hex
// form.
func ValidateAddress(addr string) error {
	if len(addr) == 48 && (strings.HasPrefix(addr, "EQ") || strings.HasPrefix(addr, "UQ")) {
		if _, err := base64.RawURLEncoding.DecodeString(addr); err != nil {
			return ErrBadAddress
		}
		return nil
	}

	wc, hexPart, ok := strings.Cut(addr, ":")
	if !ok {
		return ErrBadAddress
	}
	if _, err := strconv.Atoi(wc); err != nil {
		return ErrBadAddress
	}
	if len(hexPart) != 64 {
		return ErrBadAddress
	}
	if _, err := hex.DecodeString(hexPart); err != nil {
		return ErrBadAddress
	}
	return nil
}

// StubWallet validates and logs payouts without touching a chain. It
// stands in for the on-chain wallet in every environment that has no
// funded treasury.
type StubWallet struct {
	log *zap.Logger
}

var _ Payer = (*StubWallet)(nil)

func NewStubWallet(log *zap.Logger) *StubWallet {
	return &StubWallet{log: log}
}

func (w *StubWallet) SendPayout(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := ValidateAddress(to); err != nil {
		return "", err
	}
	if !amount.IsPositive() {
		return "", ErrBadAmount
	}

	receipt := "stub:" + uuid.NewString()
	w.log.Info("stub payout issued",
		zap.String("to", to),
		zap.String("amount", amount.String()),
		zap.String("receipt", receipt))
	return receipt, nil
}
