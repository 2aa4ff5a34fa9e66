package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/onetrueaddress/internal/agent"
	"github.com/onetrueaddress/internal/audit"
	"github.com/onetrueaddress/internal/consolidate"
	"github.com/onetrueaddress/internal/match"
	"github.com/onetrueaddress/internal/record"
	"github.com/onetrueaddress/internal/store"
)

// Version is reported by the health endpoint.
const Version = "1.0"

// Service is the part of the agent the API needs.
type Service interface {
	Match(ctx context.Context, address string, threshold float64) (*match.MatchResult, error)
	Consolidate(ctx context.Context, internal []record.AddressRecord, golden record.AddressRecord, scenario consolidate.Scenario) (consolidate.Outcome, error)
	PushUpdates(ctx context.Context, internal []record.AddressRecord, golden record.AddressRecord, scenario consolidate.Scenario) (*agent.PushResult, error)
	WriteGolden(ctx context.Context, golden record.AddressRecord) (*agent.PushResult, error)
	TimeSaved(ctx context.Context) (*audit.TimeSaved, error)
}

// APIHandler handles the /api/v1 endpoints
type APIHandler struct {
	Service Service
	Logger  *zap.Logger
}

// MatchRequest is the body of POST /match.
type MatchRequest struct {
	Address   string   `json:"address"`
	Threshold *float64 `json:"threshold"`
}

// ConsolidateRequest is the body of POST /consolidate and /push_updates.
type ConsolidateRequest struct {
	InternalMatches     []record.AddressRecord `json:"internal_matches"`
	GoldenSourceAddress record.AddressRecord   `json:"golden_source_address"`
	Scenario            *int                   `json:"scenario"`
}

// WriteRequest is the body of POST /write_to_internal.
type WriteRequest struct {
	GoldenSourceRecord record.AddressRecord `json:"golden_source_record"`
}

// Health reports liveness.
func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": Version,
		"service": "OneTrueAddress API",
	})
}

// Match handles POST /match.
func (h *APIHandler) Match(w http.ResponseWriter, r *http.Request) {
	var req MatchRequest
	if !h.decode(w, r, &req) {
		return
	}

	// zero means "use the configured default" to the service, so an
	// explicit threshold is checked here
	threshold := 0.0
	if req.Threshold != nil {
		if err := match.ValidateThreshold(*req.Threshold); err != nil {
			h.fail(w, err)
			return
		}
		threshold = *req.Threshold
	}

	result, err := h.Service.Match(r.Context(), req.Address, threshold)
	if err != nil {
		h.fail(w, err)
		return
	}

	body, err := withSuccess(result)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, body)
}

// Consolidate handles POST /consolidate. Nothing is persisted.
func (h *APIHandler) Consolidate(w http.ResponseWriter, r *http.Request) {
	var req ConsolidateRequest
	if !h.decode(w, r, &req) {
		return
	}

	outcome, err := h.Service.Consolidate(r.Context(), req.InternalMatches, req.GoldenSourceAddress, scenarioOf(req.Scenario))
	if err != nil {
		h.fail(w, err)
		return
	}
	if outcome.Conflicted() {
		h.writeConflict(w, outcome.Conflict)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":             true,
		"consolidated_record": outcome.Record,
		"message":             outcome.Record.AgentAction,
	})
}

// PushUpdates handles POST /push_updates.
func (h *APIHandler) PushUpdates(w http.ResponseWriter, r *http.Request) {
	var req ConsolidateRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.Service.PushUpdates(r.Context(), req.InternalMatches, req.GoldenSourceAddress, scenarioOf(req.Scenario))
	h.writePush(w, res, err, "consolidated_record")
}

// WriteToInternal handles POST /write_to_internal.
func (h *APIHandler) WriteToInternal(w http.ResponseWriter, r *http.Request) {
	var req WriteRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.GoldenSourceRecord) == 0 {
		h.writeError(w, http.StatusBadRequest, "golden_source_record is required")
		return
	}

	res, err := h.Service.WriteGolden(r.Context(), req.GoldenSourceRecord)
	h.writePush(w, res, err, "written_record")
}

// TimeSaved handles GET /time_saved.
func (h *APIHandler) TimeSaved(w http.ResponseWriter, r *http.Request) {
	saved, err := h.Service.TimeSaved(r.Context())
	if err != nil {
		h.logger().Error("time saved query failed", zap.Error(err))
		h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success":     false,
			"hours_saved": 0.0,
			"error":       "failed to read time saved",
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"hours_saved": saved.HoursSaved,
		"events":      saved.Events,
		"total_tpi":   saved.TotalTPI,
		"by_scenario": saved.ByScenario,
	})
}

func (h *APIHandler) writePush(w http.ResponseWriter, res *agent.PushResult, err error, recordKey string) {
	if err != nil {
		h.fail(w, err)
		return
	}
	if res.Conflicted() {
		h.writeConflict(w, res.Conflict)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"message":  "Record successfully pushed to internal updates",
		recordKey:  res.Record,
		"receipt":  res.Receipt,
		"scenario": res.Record.Scenario.String(),
	})
}

// decode reads a JSON body, answering 400 itself on failure.
func (h *APIHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, "request body must be valid JSON")
		return false
	}
	return true
}

// fail maps an error to its status: caller mistakes are 400, everything
// else 500.
func (h *APIHandler) fail(w http.ResponseWriter, err error) {
	switch {
	case match.IsInputError(err), consolidate.IsInputError(err):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrPersist):
		h.logger().Error("persist failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to persist record")
	default:
		h.logger().Error("request failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *APIHandler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func scenarioOf(v *int) consolidate.Scenario {
	if v == nil {
		return consolidate.ScenarioMultipleRecords
	}
	return consolidate.Scenario(*v)
}

// withSuccess re-renders v as an object with "success": true added.
func withSuccess(v interface{}) (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	out["success"] = json.RawMessage("true")
	return out, nil
}

func (h *APIHandler) writeConflict(w http.ResponseWriter, c *consolidate.ConflictReport) {
	h.writeJSON(w, http.StatusConflict, map[string]interface{}{
		"success":                false,
		"error":                  c.Reason,
		"requires_manual_review": true,
		"conflict":               c,
	})
}

func (h *APIHandler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   msg,
	})
}

// writeJSON sends v with status. The header is already out when encoding
// fails, so the failure is only logged.
func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger().Debug("failed to write response", zap.Int("status", status), zap.Error(err))
	}
}
