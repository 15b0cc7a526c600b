package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"dart-ledger-go/internal/api"
	"dart-ledger-go/internal/apperr"
	"dart-ledger-go/internal/models"

	"github.com/gorilla/mux"
	"google.golang.org/grpc/codes"
)

type stakeRequest struct {
	StakeLevel int64 `json:"stake_level"`
}

type dailyRequest struct {
	Timezone string `json:"timezone"`
}

type throwRequest struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

type adVerifiedRequest struct {
	UserId        string    `json:"user_id"`
	TransactionId string    `json:"transaction_id"`
	VerifiedAt    time.Time `json:"verified_at"`
}

type paymentCompletedRequest struct {
	UserId      string `json:"user_id"`
	AmountCoins int64  `json:"amount_coins"`
	SessionId   string `json:"session_id"`
}

// decode reads a bounded JSON body with no unknown fields. An empty body
// leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperr.InvalidArgument("malformed request body")
	}
	return nil
}

// stakeQuery reads the optional stake_level query parameter.
func stakeQuery(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("stake_level")
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperr.InvalidArgument("stake_level must be an integer")
	}
	return v, nil
}

func respond(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.HealthCheck(r.Context()); err != nil {
		writeError(w, r, apperr.Wrap(codes.Unavailable, err, "store unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.SignIn(r.Context())
	respond(w, r, v, err)
}

func (s *Server) getWallet(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.GetWallet(r.Context())
	respond(w, r, v, err)
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	v, err := s.svc.GetTransactionHistory(r.Context(), limit)
	respond(w, r, v, err)
}

func (s *Server) getProgress(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.GetProgress(r.Context())
	respond(w, r, v, err)
}

func (s *Server) stake(w http.ResponseWriter, r *http.Request) {
	var req stakeRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	v, err := s.svc.Stake(r.Context(), mux.Vars(r)["escrowId"], req.StakeLevel)
	respond(w, r, v, err)
}

func (s *Server) refund(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.RefundEscrow(r.Context(), mux.Vars(r)["escrowId"])
	respond(w, r, v, err)
}

func (s *Server) claimAd(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.ClaimAdReward(r.Context(), mux.Vars(r)["transactionId"])
	respond(w, r, v, err)
}

func (s *Server) claimDaily(w http.ResponseWriter, r *http.Request) {
	var req dailyRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	v, err := s.svc.ClaimDailyBonus(r.Context(), req.Timezone)
	respond(w, r, v, err)
}

func (s *Server) joinQueue(w http.ResponseWriter, r *http.Request) {
	var req api.QueueRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	v, err := s.svc.JoinQueue(r.Context(), req)
	respond(w, r, v, err)
}

func (s *Server) listQueue(w http.ResponseWriter, r *http.Request) {
	stake, err := stakeQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := s.svc.ListQueue(r.Context(), models.GameMode(mux.Vars(r)["mode"]), stake)
	respond(w, r, v, err)
}

func (s *Server) leaveQueue(w http.ResponseWriter, r *http.Request) {
	stake, err := stakeQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	err = s.svc.LeaveQueue(r.Context(), models.GameMode(mux.Vars(r)["mode"]), stake)
	respond(w, r, map[string]bool{"left": true}, err)
}

func (s *Server) getQueueEntry(w http.ResponseWriter, r *http.Request) {
	stake, err := stakeQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := s.svc.GetQueueEntry(r.Context(), models.GameMode(mux.Vars(r)["mode"]), stake)
	respond(w, r, v, err)
}

func (s *Server) createGame(w http.ResponseWriter, r *http.Request) {
	var req api.CreateGameRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	v, err := s.svc.CreateGame(r.Context(), req)
	respond(w, r, v, err)
}

func (s *Server) getGame(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.GetGame(r.Context(), mux.Vars(r)["gameId"])
	respond(w, r, v, err)
}

func (s *Server) throw(w http.ResponseWriter, r *http.Request) {
	var req throwRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.X == nil || req.Y == nil {
		writeError(w, r, apperr.InvalidArgument("x and y are required"))
		return
	}
	v, err := s.svc.Throw(r.Context(), mux.Vars(r)["gameId"], *req.X, *req.Y)
	respond(w, r, v, err)
}

func (s *Server) forfeit(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.Forfeit(r.Context(), mux.Vars(r)["gameId"])
	respond(w, r, v, err)
}

func (s *Server) settle(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.SettleGame(r.Context(), mux.Vars(r)["gameId"])
	respond(w, r, v, err)
}

func (s *Server) adVerified(w http.ResponseWriter, r *http.Request) {
	var req adVerifiedRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.svc.RecordAdVerified(r.Context(), req.UserId, req.TransactionId, req.VerifiedAt)
	respond(w, r, map[string]bool{"created": created}, err)
}

func (s *Server) paymentCompleted(w http.ResponseWriter, r *http.Request) {
	var req paymentCompletedRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	v, err := s.svc.CompletePurchase(r.Context(), req.UserId, req.AmountCoins, req.SessionId)
	respond(w, r, v, err)
}
