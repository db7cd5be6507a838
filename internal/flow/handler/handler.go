// Package handler exposes the payment-gated access flow over HTTP: one
// endpoint to issue a request, one to settle an outstanding challenge.
package handler

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"tollgate/internal/explorer"
	"tollgate/internal/flow"
	"tollgate/internal/policy"
	dErrors "tollgate/pkg/domain-errors"
	"tollgate/pkg/httputil"
	"tollgate/pkg/requestcontext"
)

// pendingTTL bounds how long a challenged flow stays addressable. Abandoned
// flows carry no cleanup obligation beyond this eviction.
const pendingTTL = 15 * time.Minute

// Handler wires access endpoints to the flow service, tracking challenged
// flows between the 402 and the retry.
type Handler struct {
	flows  *flow.Service
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]pendingFlow
}

type pendingFlow struct {
	flow     *flow.Flow
	parkedAt time.Time
}

// New constructs an access handler.
func New(flows *flow.Service, logger *slog.Logger) *Handler {
	return &Handler{
		flows:   flows,
		logger:  logger,
		pending: make(map[string]pendingFlow),
	}
}

// Register mounts access endpoints on the router. GET and POST /access are
// equivalent; GET exists so a plain crawler fetch can hit the gate.
func (h *Handler) Register(r chi.Router) {
	r.Get("/access", h.HandleAccessQuery)
	r.Post("/access", h.HandleAccess)
	r.Post("/access/{flowID}/pay", h.HandlePay)
}

type accessRequest struct {
	IdentitySignal string `json:"identitySignal"`
	Path           string `json:"path"`
	Proof          string `json:"proof,omitempty"`
}

type grantResponse struct {
	FlowID  string `json:"flowId"`
	Status  string `json:"status"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type challengeResponse struct {
	FlowID    string            `json:"flowId"`
	Status    string            `json:"status"`
	Challenge *policy.Challenge `json:"x402"`
}

// HandleAccess starts a request lifecycle. Returns 200 with a grant or 402
// with the payment challenge and a flow id for the retry.
func (h *Handler) HandleAccess(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.Decode[accessRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.access(w, r, req)
}

// HandleAccessQuery is the query-parameter variant of HandleAccess.
func (h *Handler) HandleAccessQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.access(w, r, accessRequest{
		IdentitySignal: q.Get("signal"),
		Path:           q.Get("path"),
		Proof:          q.Get("proof"),
	})
}

func (h *Handler) access(w http.ResponseWriter, r *http.Request, req accessRequest) {
	ctx := r.Context()

	if req.Path == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "path is required"))
		return
	}
	if req.IdentitySignal == "" {
		// Fall back to the transport-level signal.
		req.IdentitySignal = requestcontext.UserAgent(ctx)
	}

	f := h.flows.Start(policy.Descriptor{
		IdentitySignal: req.IdentitySignal,
		Path:           req.Path,
		Proof:          req.Proof,
	})

	outcome, err := f.Submit(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if outcome.State == flow.StateAllowed {
		httputil.WriteJSON(w, http.StatusOK, grantResponse{
			FlowID:  outcome.FlowID,
			Status:  "allowed",
			Reason:  string(outcome.Reason),
			Message: grantMessage(outcome.Reason),
		})
		return
	}

	h.park(f)
	httputil.WriteJSON(w, http.StatusPaymentRequired, challengeResponse{
		FlowID:    outcome.FlowID,
		Status:    "payment_required",
		Challenge: outcome.Challenge,
	})
}

type payRequest struct {
	ProofToken string `json:"proofToken"`
}

type paidResponse struct {
	FlowID      string `json:"flowId"`
	Status      string `json:"status"`
	Reason      string `json:"reason"`
	ProofToken  string `json:"proofToken"`
	ExplorerURL string `json:"explorerUrl"`
}

// HandlePay settles an outstanding challenge and retries the request.
func (h *Handler) HandlePay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	flowID := chi.URLParam(r, "flowID")

	req, err := httputil.Decode[payRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.ProofToken == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "proofToken is required"))
		return
	}

	f := h.lookup(flowID)
	if f == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "unknown or expired flow"))
		return
	}

	outcome, err := f.SubmitProof(ctx, req.ProofToken)
	if err != nil {
		// Recoverable verification failures keep the flow parked for a
		// retry; anything else evicts it.
		if !dErrors.Is(err, dErrors.CodeVerificationFailed) {
			h.evict(flowID)
		}
		httputil.WriteError(w, err)
		return
	}

	h.evict(flowID)

	h.logger.InfoContext(ctx, "payment settled",
		"request_id", requestcontext.RequestID(ctx),
		"flow_id", outcome.FlowID,
		"reason", outcome.Reason,
	)

	var chainID int64
	if c := f.Challenge(); c != nil {
		chainID = c.ChainID
	}
	httputil.WriteJSON(w, http.StatusOK, paidResponse{
		FlowID:      outcome.FlowID,
		Status:      "allowed",
		Reason:      string(outcome.Reason),
		ProofToken:  req.ProofToken,
		ExplorerURL: explorer.TxURL(chainID, req.ProofToken),
	})
}

func grantMessage(reason policy.Reason) string {
	switch reason {
	case policy.ReasonProtectionDisabled:
		return "Access granted - protection disabled"
	case policy.ReasonAllowlisted:
		return "Access granted - allowlisted identity"
	case policy.ReasonPaymentVerified:
		return "Access granted - payment verified"
	default:
		return "Access granted - human user"
	}
}

func (h *Handler) park(f *flow.Flow) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	for id, p := range h.pending {
		if now.Sub(p.parkedAt) > pendingTTL {
			delete(h.pending, id)
		}
	}
	h.pending[f.ID()] = pendingFlow{flow: f, parkedAt: now}
}

func (h *Handler) lookup(flowID string) *flow.Flow {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.pending[flowID]
	if !ok {
		return nil
	}
	return p.flow
}

func (h *Handler) evict(flowID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.pending, flowID)
}
