package formance

import (
	"context"
	"fmt"
	"strconv"

	"dart-ledger-go/internal/txlog"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy txlog.Journal.
var _ txlog.Journal = (*Service)(nil)

// Credits come from @world. The wallet record is authoritative, so the
// mirror allows overdraft rather than rejecting a debit it cannot see.
const numscriptCredit = `
vars {
  monetary $amount
  account $user
  string $entry_type
  string $reference
}

send $amount (
  source = @world
  destination = $user
)

set_tx_meta("entry_type", $entry_type)
set_tx_meta("reference", $reference)
`

const numscriptDebit = `
vars {
  monetary $amount
  account $user
  string $entry_type
  string $reference
}

send $amount (
  source = $user allowing unbounded overdraft
  destination = @world
)

set_tx_meta("entry_type", $entry_type)
set_tx_meta("reference", $reference)
`

// Record posts one transaction per journal entry. The Formance reference
// makes replays of the same entry a no-op.
func (s *Service) Record(ctx context.Context, userId string, e txlog.Entry) error {
	if e.Amount == 0 {
		return nil
	}

	script := numscriptCredit
	amount := e.Amount
	if amount < 0 {
		script = numscriptDebit
		amount = -amount
	}

	postTx := shared.V2PostTransaction{
		Reference: strPtr(reference(userId, e)),
		Script: &shared.V2PostTransactionScript{
			Plain: script,
			Vars:  scriptVars(userId, amount, e),
		},
	}
	if !e.CreatedAt.IsZero() {
		ts := e.CreatedAt
		postTx.Timestamp = &ts
	}

	_, err := s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            s.ledger,
		V2PostTransaction: postTx,
	})
	if err != nil {
		if isConflictError(err) {
			return nil // idempotent
		}
		return fmt.Errorf("error mirroring %s for %s: %w", e.Type, userId, err)
	}

	zap.L().Debug("Mirrored wallet entry to Formance",
		zap.String("user_id", userId),
		zap.String("type", e.Type),
		zap.Int64("amount", e.Amount))
	return nil
}

func accountFor(userId string) string {
	return "users:" + userId
}

// reference is unique per user and entry: an escrow id alone is shared by
// both players.
func reference(userId string, e txlog.Entry) string {
	return fmt.Sprintf("%s:%s:%s", userId, e.Type, e.Reference)
}

func scriptVars(userId string, amount int64, e txlog.Entry) map[string]string {
	return map[string]string{
		"amount":     coinAsset + " " + strconv.FormatInt(amount, 10),
		"user":       accountFor(userId),
		"entry_type": e.Type,
		"reference":  e.Reference,
	}
}
