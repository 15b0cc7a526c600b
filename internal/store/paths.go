package store

import (
	"strconv"
	"strings"
)

const (
	UsersRoot      = "users"
	EscrowRoot     = "escrow"
	AdRewardsRoot  = "verifiedAdRewards"
	QueueRoot      = "matchmaking_queue"
	RateLimitsRoot = "rateLimits"
	GamesRoot      = "games"
)

func join(parts ...string) string { return strings.Join(parts, "/") }

func WalletPath(uid string) string { return join(UsersRoot, uid, "wallet") }

func ProgressPath(uid string) string { return join(UsersRoot, uid, "progress") }

func TransactionsPath(uid string) string { return join(UsersRoot, uid, "transactions") }

func EscrowPath(escrowId string) string { return join(EscrowRoot, escrowId) }

func AdRewardPath(transactionId string) string { return join(AdRewardsRoot, transactionId) }

// QueuePath places casual entries directly under the mode and wagered
// entries under their stake level.
func QueuePath(mode string, stakeLevel int64, playerId string) string {
	if stakeLevel <= 0 {
		return join(QueueRoot, mode, playerId)
	}
	return join(QueueRoot, mode, strconv.FormatInt(stakeLevel, 10), playerId)
}

func RateLimitPath(uid, op string) string { return join(RateLimitsRoot, uid, op) }

func GamePath(gameId string) string { return join(GamesRoot, gameId) }
