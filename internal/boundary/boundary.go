// Package boundary translates authenticated HTTP requests into Day Coordinator
// operations: worker-originated signature verification, admin-key gated lifecycle
// endpoints, and read-only ledger/reward queries. Routing and JSON encoding are
// thin wrappers around gorilla/mux and internal/httputil, grounded on the example
// pack's cmd/gateway handler/middleware layout.
package boundary

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/r3e-network/ai4all-coordinator/internal/adminsession"
	"github.com/r3e-network/ai4all-coordinator/internal/apierr"
	"github.com/r3e-network/ai4all-coordinator/internal/auth"
	"github.com/r3e-network/ai4all-coordinator/internal/coordinator"
	"github.com/r3e-network/ai4all-coordinator/internal/domain"
	"github.com/r3e-network/ai4all-coordinator/internal/httputil"
	"github.com/r3e-network/ai4all-coordinator/internal/ledger"
	"github.com/r3e-network/ai4all-coordinator/internal/logging"
	"github.com/r3e-network/ai4all-coordinator/internal/merkle"
	"github.com/r3e-network/ai4all-coordinator/internal/metrics"
	"github.com/r3e-network/ai4all-coordinator/internal/storage"
)

// Handler bundles the coordinator and its collaborators behind the HTTP contract
// in the specification's section 6.
type Handler struct {
	Coordinator *coordinator.Coordinator
	Stores      storage.Stores
	Verifier    auth.Verifier
	AdminKey    string
	Clock       func() time.Time
	Log         *logging.Logger

	// sessions lazily holds the admin console's JWT issuer, derived from AdminKey.
	sessions *adminsession.Issuer
}

// adminSessions returns the lazily-constructed session issuer for AdminKey.
func (h *Handler) adminSessions() *adminsession.Issuer {
	if h.sessions == nil {
		h.sessions = adminsession.NewIssuer(h.AdminKey)
	}
	return h.sessions
}

// Router builds the full mux.Router for the coordinator's HTTP boundary.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/nodes/register", h.register).Methods(http.MethodPost)
	r.HandleFunc("/nodes/heartbeat", h.authenticated(h.heartbeat)).Methods(http.MethodPost)

	r.HandleFunc("/admin/session", h.admin(h.adminSession)).Methods(http.MethodPost)
	r.HandleFunc("/admin/day/start", h.admin(h.dayStart)).Methods(http.MethodPost)
	r.HandleFunc("/admin/day/status", h.admin(h.dayStatus)).Methods(http.MethodGet)
	r.HandleFunc("/admin/day/finalize", h.admin(h.dayFinalize)).Methods(http.MethodPost)

	r.HandleFunc("/work/request", h.authenticated(h.workRequest)).Methods(http.MethodPost)
	r.HandleFunc("/work/submit", h.authenticated(h.workSubmit)).Methods(http.MethodPost)

	r.HandleFunc("/rewards/day", h.rewardsDay).Methods(http.MethodGet)
	r.HandleFunc("/rewards/root", h.rewardsRoot).Methods(http.MethodGet)
	r.HandleFunc("/rewards/proof", h.rewardsProof).Methods(http.MethodGet)

	r.HandleFunc("/accounts/{id}/balance", h.accountBalance).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{id}/history", h.accountHistory).Methods(http.MethodGet)
	r.HandleFunc("/accounts/leaderboard", h.leaderboard).Methods(http.MethodGet)
	r.HandleFunc("/accounts/supply", h.supply).Methods(http.MethodGet)

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return metrics.InstrumentHandler(r)
}

func (h *Handler) now() time.Time {
	if h.Clock != nil {
		return h.Clock()
	}
	return time.Now().UTC()
}

// writeAPIError maps the categorical apierr.Error taxonomy to its HTTP status.
func (h *Handler) writeAPIError(w http.ResponseWriter, err error) {
	if ae, ok := err.(*apierr.Error); ok {
		httputil.WriteJSON(w, apierr.Status(ae.Kind), httputil.ErrorResponse{Error: ae.Message, Code: ae.Code})
		return
	}
	httputil.InternalError(w, err.Error())
}

// admin gates a handler behind the shared X-Admin-Key header, or, for the
// optional admin console, a Bearer session token issued by /admin/session.
func (h *Handler) admin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.AdminKey == "" {
			httputil.Unauthorized(w, "invalid admin key")
			return
		}
		if r.Header.Get("X-Admin-Key") == h.AdminKey {
			next(w, r)
			return
		}
		if bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "); bearer != r.Header.Get("Authorization") && h.adminSessions().Verify(bearer, h.now()) {
			next(w, r)
			return
		}
		httputil.Unauthorized(w, "invalid admin key")
	}
}

// adminSession issues a short-lived JWT session token for the optional admin
// console, once the caller has already proven the shared X-Admin-Key.
func (h *Handler) adminSession(w http.ResponseWriter, r *http.Request) {
	token, err := h.adminSessions().Issue(h.now())
	if err != nil {
		httputil.InternalError(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"token": token, "expiresInSeconds": int(adminsession.DefaultExpiry.Seconds())})
}

// authenticated verifies the worker signature envelope and passes the verified
// accountId to next as its accountID argument. The request body is
// restored after decoding so next can decode its own domain-specific fields from
// the same JSON object.
func (h *Handler) authenticated(next func(w http.ResponseWriter, r *http.Request, accountID string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			httputil.BadRequest(w, "could not read request body")
			return
		}
		r.Body.Close()

		var env struct {
			AccountID string `json:"accountId"`
			Timestamp string `json:"timestamp"`
			Signature string `json:"signature"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			httputil.BadRequest(w, "invalid request body")
			return
		}

		sig, err := hex.DecodeString(env.Signature)
		if err != nil {
			httputil.BadRequest(w, "signature must be hex-encoded")
			return
		}
		pubKeyHex, ok, err := h.Stores.Operational.GetNodeKey(env.AccountID)
		if err != nil {
			httputil.InternalError(w, err.Error())
			return
		}
		if !ok {
			httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unknown accountId", Code: "UNKNOWN_ACCOUNT"})
			return
		}
		pubKey, err := hex.DecodeString(pubKeyHex)
		if err != nil {
			httputil.InternalError(w, "stored public key is not valid hex")
			return
		}

		verr := auth.VerifyEnvelope(h.Verifier, auth.Envelope{AccountID: env.AccountID, Timestamp: env.Timestamp, Signature: sig}, pubKey, h.now())
		if verr != nil {
			h.writeAPIError(w, verr)
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(raw))
		next(w, r, env.AccountID)
	}
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID string `json:"accountId"`
		PublicKey string `json:"publicKey"`
	}
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	pubKey, err := hex.DecodeString(req.PublicKey)
	if err != nil {
		httputil.BadRequest(w, "publicKey must be hex-encoded")
		return
	}
	expected := auth.DeriveAddress(pubKey)
	if req.AccountID != expected {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "accountId does not match derived address", Code: "ADDRESS_MISMATCH"})
		return
	}

	registered, err := h.Coordinator.Register(req.AccountID, req.PublicKey)
	if err != nil {
		h.writeAPIError(w, err)
		return
	}
	if !registered {
		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"accountId": req.AccountID, "alreadyRegistered": true})
		return
	}
	if err := h.Stores.Operational.PutNodeKey(req.AccountID, req.PublicKey); err != nil {
		httputil.InternalError(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"accountId": req.AccountID, "alreadyRegistered": false})
}

func (h *Handler) heartbeat(w http.ResponseWriter, r *http.Request, accountID string) {
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"accountId": accountID, "status": "alive", "serverTime": h.now()})
}

func (h *Handler) dayStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DayID string `json:"dayId"`
	}
	if r.Body != nil {
		raw, _ := io.ReadAll(r.Body)
		if len(bytes.TrimSpace(raw)) > 0 {
			_ = json.Unmarshal(raw, &req)
		}
	}

	day, err := h.Coordinator.DayStart(req.DayID)
	if err != nil {
		h.writeAPIError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"dayId":      day.DayID,
		"phase":      day.Phase,
		"seed":       day.Seed,
		"rosterHash": day.RosterHash,
		"rosterSize": len(day.RosterAccountIDs),
	})
}

func (h *Handler) dayStatus(w http.ResponseWriter, r *http.Request) {
	st := h.Coordinator.Status()
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"phase":      st.Phase,
		"dayId":      st.DayID,
		"dayNumber":  st.DayNumber,
		"rosterSize": st.RosterSize,
	})
}

func (h *Handler) dayFinalize(w http.ResponseWriter, r *http.Request) {
	result, err := h.Coordinator.DayFinalize()
	if err != nil {
		metrics.RecordFinalization("failure", 0)
		h.writeAPIError(w, err)
		return
	}
	var distributedMicro int64
	for _, entry := range result.Distribution.Rewards {
		distributedMicro += int64(entry.TotalReward * 1_000_000)
	}
	metrics.RecordFinalization("success", distributedMicro)
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"dayId":      result.Snapshot.DayID,
		"dayNumber":  result.Snapshot.DayNumber,
		"rewardRoot": result.RewardRoot,
		"stateHash":  result.Snapshot.StateHash,
		"rewards":    result.Distribution.Rewards,
	})
}

func (h *Handler) workRequest(w http.ResponseWriter, r *http.Request, accountID string) {
	res, err := h.Coordinator.WorkRequest(accountID)
	if err != nil {
		h.writeAPIError(w, err)
		return
	}
	if res.Reason != "" {
		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"assignments": []string{}, "reason": res.Reason})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"assignments": res.Assignment.BlockIDs, "batchNumber": res.Assignment.BatchNumber})
}

func (h *Handler) workSubmit(w http.ResponseWriter, r *http.Request, accountID string) {
	var req struct {
		DayID       string                    `json:"dayId"`
		Submissions []domain.BlockSubmission `json:"submissions"`
	}
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	results, err := h.Coordinator.WorkSubmit(accountID, req.DayID, req.Submissions)
	if err != nil {
		h.writeAPIError(w, err)
		return
	}
	for _, res := range results {
		outcome := "rejected"
		if res.Accepted {
			outcome = "accepted"
		}
		metrics.RecordSubmission(outcome)
		if res.CanaryDetected {
			if res.CanaryPassed {
				metrics.RecordCanaryOutcome("passed")
			} else {
				metrics.RecordCanaryOutcome("failed")
			}
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (h *Handler) rewardsDay(w http.ResponseWriter, r *http.Request) {
	dayID := r.URL.Query().Get("dayId")
	if dayID == "" {
		httputil.BadRequest(w, "dayId is required")
		return
	}
	snap, ok, err := h.Stores.States.LoadSnapshot(dayID)
	if err != nil {
		httputil.InternalError(w, err.Error())
		return
	}
	if !ok {
		httputil.NotFound(w, "no distribution for dayId")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, snap)
}

func (h *Handler) rewardsRoot(w http.ResponseWriter, r *http.Request) {
	dayID := r.URL.Query().Get("dayId")
	dist, err := h.loadDistribution(dayID)
	if err != nil {
		h.writeAPIError(w, err)
		return
	}
	leaves := toLeaves(dist.Rewards)
	tree, err := merkle.Build(leaves)
	if err != nil {
		httputil.InternalError(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"dayId": dayID, "root": tree.Root(), "leafCount": tree.LeafCount()})
}

func (h *Handler) rewardsProof(w http.ResponseWriter, r *http.Request) {
	dayID := r.URL.Query().Get("dayId")
	accountID := r.URL.Query().Get("accountId")
	dist, err := h.loadDistribution(dayID)
	if err != nil {
		h.writeAPIError(w, err)
		return
	}
	proof, root, ok, err := coordinator.RewardProof(dist, accountID)
	if err != nil {
		httputil.InternalError(w, err.Error())
		return
	}
	if !ok {
		httputil.NotFound(w, "account has no reward entry for dayId")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"dayId": dayID, "accountId": accountID, "root": root, "proof": proof})
}

func (h *Handler) loadDistribution(dayID string) (domain.RewardDistribution, error) {
	if dayID == "" {
		return domain.RewardDistribution{}, apierr.New(apierr.KindValidation, "DAY_ID_REQUIRED")
	}
	events, err := h.Stores.Events.QueryByDay(dayID)
	if err != nil {
		return domain.RewardDistribution{}, apierr.Newf(apierr.KindInternal, "LOAD_EVENTS_FAILED", err.Error())
	}
	for _, ev := range events {
		if ev.EventType == domain.EventDayFinalized {
			return distributionFromEvent(dayID, ev.Payload), nil
		}
	}
	return domain.RewardDistribution{}, apierr.New(apierr.KindNotFound, "NO_DISTRIBUTION")
}

func (h *Handler) accountBalance(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["id"]
	row, ok, err := h.Stores.Ledger.GetBalance(accountID)
	if err != nil {
		httputil.InternalError(w, err.Error())
		return
	}
	if !ok {
		httputil.NotFound(w, "unknown accountId")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, row)
}

func (h *Handler) accountHistory(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["id"]
	rows, err := h.Stores.Ledger.ListHistory(accountID)
	if err != nil {
		httputil.InternalError(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"accountId": accountID, "history": rows})
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := httputil.QueryInt(r, "limit", 50)
	rows, err := ledger.Leaderboard(h.Stores.Ledger, limit)
	if err != nil {
		httputil.InternalError(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"leaderboard": rows})
}

func (h *Handler) supply(w http.ResponseWriter, r *http.Request) {
	total, err := ledger.TotalSupply(h.Stores.Ledger)
	if err != nil {
		httputil.InternalError(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"totalSupplyMicro": total})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	st := h.Coordinator.Status()
	metrics.SetDayPhase(phaseCode(st.Phase))
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"phase":              st.Phase,
		"dayId":              st.DayID,
		"contributorCount":   st.ContributorCount,
		"pendingSubmissions": st.PendingSubmissions,
	})
}

func phaseCode(p domain.Phase) int {
	switch p {
	case domain.PhaseActive:
		return 1
	case domain.PhaseFinalizing:
		return 2
	default:
		return 0
	}
}

func toLeaves(entries []domain.RewardEntry) []merkle.Leaf {
	leaves := make([]merkle.Leaf, 0, len(entries))
	for _, e := range entries {
		leaves = append(leaves, merkle.Leaf{
			AccountID:             e.AccountID,
			TotalReward:           e.TotalReward,
			BasePoolReward:        e.BasePoolReward,
			PerformancePoolReward: e.PerformancePoolReward,
		})
	}
	return leaves
}

func distributionFromEvent(dayID string, payload map[string]interface{}) domain.RewardDistribution {
	raw, _ := json.Marshal(payload)
	var wire struct {
		Date                 string               `json:"date"`
		TotalEmissions       float64              `json:"totalEmissions"`
		BasePoolTotal        float64              `json:"basePoolTotal"`
		PerformancePoolTotal float64              `json:"performancePoolTotal"`
		ActiveCount          int                  `json:"activeCount"`
		Rewards              []domain.RewardEntry `json:"rewards"`
	}
	_ = json.Unmarshal(raw, &wire)
	return domain.RewardDistribution{
		Date:                   dayID,
		TotalEmissions:         wire.TotalEmissions,
		BasePoolTotal:          wire.BasePoolTotal,
		PerformancePoolTotal:   wire.PerformancePoolTotal,
		ActiveContributorCount: wire.ActiveCount,
		Rewards:                wire.Rewards,
	}
}
