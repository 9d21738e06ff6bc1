package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/roach88/quorum/internal/engine"
	"github.com/roach88/quorum/internal/ir"
)

// StateResponse is the body of GET /v1/state.
type StateResponse struct {
	RequestID     string                `json:"request_id"`
	Operator      engine.OperatorState  `json:"operator"`
	Methodologist engine.CustodianState `json:"methodologist"`
}

// ActionResponse is the body of a successful mutating request.
type ActionResponse struct {
	RequestID string `json:"request_id"`
	Domain    string `json:"domain"`
	Action    string `json:"action"`
	State     any    `json:"state"`
}

// RebalanceRequest is the body of POST /v1/rebalance. Amounts are decimal
// strings so values above 2^53 survive JSON.
type RebalanceRequest struct {
	Constituents   []string `json:"constituents"`
	Removed        []string `json:"removed"`
	Weights        []string `json:"weights"`
	ExecutionBound string   `json:"execution_bound"`
}

// Params converts r to validated rebalance parameters.
func (r RebalanceRequest) Params() (ir.RebalanceParams, error) {
	var p ir.RebalanceParams
	var err error
	if p.Constituents, err = ir.ParseIdentities(r.Constituents); err != nil {
		return p, fmt.Errorf("constituents%w", err)
	}
	if p.Removed, err = ir.ParseIdentities(r.Removed); err != nil {
		return p, fmt.Errorf("removed%w", err)
	}
	if p.Weights, err = ir.ParseAmounts(r.Weights); err != nil {
		return p, fmt.Errorf("weights%w", err)
	}
	if p.ExecutionBound, err = ir.ParseAmount(r.ExecutionBound); err != nil {
		return p, fmt.Errorf("execution_bound: %w", err)
	}
	return p, p.Validate()
}

// CandidateRequest is the body of a role-rotation submit.
type CandidateRequest struct {
	Candidate string `json:"candidate"`
}

// caller reads the caller identity header. It writes a 401 and returns
// false when absent or malformed.
func caller(w http.ResponseWriter, req *http.Request) (ir.Identity, bool) {
	id, err := ir.ParseIdentity(req.Header.Get(CallerHeader))
	if err != nil {
		writeError(w, req, http.StatusUnauthorized, ErrorDetail{
			Code:    "UNAUTHENTICATED",
			Message: fmt.Sprintf("%s: %v", CallerHeader, err),
		})
		return "", false
	}
	return id, true
}

// statusFor maps a gate error to an HTTP status.
func statusFor(err error) int {
	var ge *engine.GateError
	if !errors.As(err, &ge) {
		return http.StatusInternalServerError
	}
	switch ge.Code {
	case engine.ErrCodeAuthorization:
		return http.StatusForbidden
	case engine.ErrCodeStateConflict:
		return http.StatusConflict
	case engine.ErrCodeQuorum:
		return http.StatusUnprocessableEntity
	case engine.ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case engine.ErrCodeEffect:
		return http.StatusBadGateway
	case engine.ErrCodeJournal:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeGateError(log *slog.Logger, w http.ResponseWriter, req *http.Request, err error) {
	detail := ErrorDetail{Code: "INTERNAL", Message: err.Error()}
	var ge *engine.GateError
	if errors.As(err, &ge) {
		detail.Code = string(ge.Code)
		detail.Message = ge.Error()
		detail.Domain = string(ge.Domain)
		detail.Alias = ge.Alias
	}
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Warn("Gate operation failed", "request_id", requestID(req), "err", err)
	}
	writeError(w, req, status, detail)
}

// forbidden rejects a caller without the submit role before its body is
// read, with the same code and reason the gate would return.
func forbidden(w http.ResponseWriter, req *http.Request, domain ir.Domain, reason string) {
	writeError(w, req, http.StatusForbidden, ErrorDetail{
		Code:    string(engine.ErrCodeAuthorization),
		Message: reason,
		Domain:  string(domain),
	})
}

func badRequest(w http.ResponseWriter, req *http.Request, err error) {
	writeError(w, req, http.StatusBadRequest, ErrorDetail{
		Code:    string(engine.ErrCodeInvalidArgument),
		Message: err.Error(),
	})
}

// gateOp is one owner operation without arguments.
type gateOp func(ctx context.Context, caller ir.Identity) error

// handleAction serves confirm|revoke|execute for one domain.
func handleAction(log *slog.Logger, domain ir.Domain, ops map[string]gateOp, state func() any) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		who, ok := caller(w, req)
		if !ok {
			return
		}
		action := mux.Vars(req)["action"]
		if err := ops[action](req.Context(), who); err != nil {
			writeGateError(log, w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, ActionResponse{
			RequestID: requestID(req),
			Domain:    string(domain),
			Action:    action,
			State:     state(),
		})
	}
}

func handleSubmitRebalance(log *slog.Logger, cfg Config) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		who, ok := caller(w, req)
		if !ok {
			return
		}
		if !cfg.Operator.IsOperator(who) {
			forbidden(w, req, ir.DomainRebalance, engine.ReasonNotOperator)
			return
		}
		var body RebalanceRequest
		if err := readJSON(req, &body); err != nil {
			badRequest(w, req, fmt.Errorf("decode body: %w", err))
			return
		}
		params, err := body.Params()
		if err != nil {
			badRequest(w, req, err)
			return
		}
		if err := cfg.Operator.SubmitRebalance(req.Context(), who, params); err != nil {
			writeGateError(log, w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, ActionResponse{
			RequestID: requestID(req),
			Domain:    string(ir.DomainRebalance),
			Action:    string(ir.KindSubmit),
			State:     cfg.Operator.Snapshot(),
		})
	}
}

func handleRebalanceAction(log *slog.Logger, cfg Config) func(w http.ResponseWriter, req *http.Request) {
	g := cfg.Operator
	return handleAction(log, ir.DomainRebalance, map[string]gateOp{
		"confirm": g.ConfirmRebalance,
		"revoke":  g.RevokeRebalance,
		"execute": g.ExecuteRebalance,
	}, func() any { return g.Snapshot() })
}

// handleSubmitCandidate serves a role-rotation submit.
func handleSubmitCandidate(log *slog.Logger, domain ir.Domain, isOwner func(ir.Identity) bool, submit func(context.Context, ir.Identity, ir.Identity) error, state func() any) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		who, ok := caller(w, req)
		if !ok {
			return
		}
		if !isOwner(who) {
			forbidden(w, req, domain, engine.ReasonNotOwner)
			return
		}
		var body CandidateRequest
		if err := readJSON(req, &body); err != nil {
			badRequest(w, req, fmt.Errorf("decode body: %w", err))
			return
		}
		candidate, err := ir.ParseIdentity(body.Candidate)
		if err != nil {
			badRequest(w, req, fmt.Errorf("candidate: %w", err))
			return
		}
		if err := submit(req.Context(), who, candidate); err != nil {
			writeGateError(log, w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, ActionResponse{
			RequestID: requestID(req),
			Domain:    string(domain),
			Action:    string(ir.KindSubmit),
			State:     state(),
		})
	}
}

func handleSubmitOperator(log *slog.Logger, cfg Config) func(w http.ResponseWriter, req *http.Request) {
	g := cfg.Operator
	return handleSubmitCandidate(log, ir.DomainOperator, g.IsOwner, g.SubmitNewOperator, func() any { return g.Snapshot() })
}

func handleOperatorAction(log *slog.Logger, cfg Config) func(w http.ResponseWriter, req *http.Request) {
	g := cfg.Operator
	return handleAction(log, ir.DomainOperator, map[string]gateOp{
		"confirm": g.ConfirmNewOperator,
		"revoke":  g.RevokeNewOperator,
		"execute": g.ExecuteNewOperator,
	}, func() any { return g.Snapshot() })
}

func handleSubmitMethodologist(log *slog.Logger, cfg Config) func(w http.ResponseWriter, req *http.Request) {
	g := cfg.Custodian
	return handleSubmitCandidate(log, ir.DomainMethodologist, g.IsOwner, g.SubmitNewMethodologist, func() any { return g.Snapshot() })
}

func handleMethodologistAction(log *slog.Logger, cfg Config) func(w http.ResponseWriter, req *http.Request) {
	g := cfg.Custodian
	return handleAction(log, ir.DomainMethodologist, map[string]gateOp{
		"confirm": g.ConfirmNewMethodologist,
		"revoke":  g.RevokeNewMethodologist,
		"execute": g.ExecuteNewMethodologist,
	}, func() any { return g.Snapshot() })
}

func handleState(cfg Config) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, StateResponse{
			RequestID:     requestID(req),
			Operator:      cfg.Operator.Snapshot(),
			Methodologist: cfg.Custodian.Snapshot(),
		})
	}
}

// EventsResponse is the body of GET /v1/events.
type EventsResponse struct {
	RequestID string     `json:"request_id"`
	Gate      string     `json:"gate"`
	Events    []ir.Event `json:"events"`
}

func handleEvents(log *slog.Logger, cfg Config) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		if cfg.Store == nil {
			writeError(w, req, http.StatusNotFound, ErrorDetail{Code: "NOT_FOUND", Message: "no event journal configured"})
			return
		}
		gate := req.URL.Query().Get("gate")
		if gate == "" {
			gate = cfg.Operator.Name()
		}
		events, err := cfg.Store.ReadEvents(req.Context(), gate)
		if err != nil {
			log.Warn("Failed to read events", "gate", gate, "err", err)
			writeError(w, req, http.StatusInternalServerError, ErrorDetail{Code: "INTERNAL", Message: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, EventsResponse{RequestID: requestID(req), Gate: gate, Events: events})
	}
}
