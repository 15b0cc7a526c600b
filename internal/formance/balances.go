package formance

import (
	"context"
	"fmt"
	"math/big"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"go.uber.org/zap"
)

// Balance returns the mirrored coin balance of a user. Used to reconcile
// the mirror against the authoritative wallet record.
func (s *Service) Balance(ctx context.Context, userId string) (int64, error) {
	resp, err := s.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  s.ledger,
		Address: accountFor(userId),
		Expand:  v3.Pointer("volumes"),
	})
	if err != nil {
		if isNotFoundError(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get account %s: %w", accountFor(userId), err)
	}

	bal := volumeBalance(resp.V2AccountResponse.Data.Volumes, coinAsset)
	if bal == nil {
		return 0, nil
	}
	if !bal.IsInt64() {
		zap.L().Warn("Mirrored balance out of range", zap.String("user_id", userId), zap.String("balance", bal.String()))
		return 0, fmt.Errorf("balance for %s out of range", userId)
	}
	return bal.Int64(), nil
}

// volumeBalance extracts the balance for a specific asset from volumes.
func volumeBalance(vols map[string]shared.V2Volume, asset string) *big.Int {
	vol, ok := vols[asset]
	if !ok {
		return nil
	}
	if vol.Balance != nil {
		return vol.Balance
	}
	if vol.Input == nil {
		return nil
	}
	result := new(big.Int).Set(vol.Input)
	if vol.Output != nil {
		result.Sub(result, vol.Output)
	}
	return result
}
