package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"resellerhq/warden/pkg/limits/enforcement"
	"resellerhq/warden/pkg/monitor"
	"resellerhq/warden/pkg/panels"
	"resellerhq/warden/pkg/telemetry/logging"
)

// recentLimit is the number of samples and log entries in a panel view.
const recentLimit = 20

const maxBodyBytes = 64 << 10

type panelView struct {
	Panel   *panels.AdminPanel   `json:"panel"`
	Samples []panels.UsageSample `json:"samples"`
	Logs    []panels.LogEntry    `json:"logs"`
}

type deactivateRequest struct {
	Reason string `json:"reason"`

	// Preset selects a canned reason; "non_payment" is the only one.
	Preset string `json:"preset"`
}

type quotaRequest struct {
	MaxUsers        *int64     `json:"max_users"`
	MaxTotalTraffic *int64     `json:"max_total_traffic"`
	MaxTotalTime    *int64     `json:"max_total_time"`
	CreatedAt       *time.Time `json:"created_at"`
}

type actionResponse struct {
	Result *enforcement.Result `json:"result"`
	OK     bool                `json:"ok"`
}

func (s *Server) handleListPanels(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Store.ListPanels(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []panels.AdminPanel{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"panels": list, "count": len(list)})
}

func (s *Server) handleGetPanel(w http.ResponseWriter, r *http.Request) {
	id := panelID(r)
	ctx := r.Context()

	p, err := s.deps.Store.GetPanel(ctx, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	samples, err := s.deps.Store.RecentSamples(ctx, id, recentLimit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	logs, err := s.deps.Store.RecentLogs(ctx, id, recentLimit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, panelView{Panel: p, Samples: orEmpty(samples), Logs: orEmpty(logs)})
}

func (s *Server) handleCheckPanel(w http.ResponseWriter, r *http.Request) {
	id := panelID(r)
	res, err := s.deps.Checker.Check(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	id := panelID(r)

	var req deactivateRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reason, err := req.reason()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.deps.Operator.Deactivate(r.Context(), id, reason)
	s.respondAction(w, r, res, err)
}

func (s *Server) handleReactivate(w http.ResponseWriter, r *http.Request) {
	id := panelID(r)
	res, err := s.deps.Operator.Reactivate(r.Context(), id)
	s.respondAction(w, r, res, err)
}

func (s *Server) handleUpdateQuotas(w http.ResponseWriter, r *http.Request) {
	id := panelID(r)

	var req quotaRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	upd, err := req.update()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.deps.Operator.UpdateQuotas(r.Context(), id, upd); err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.deps.Store.GetPanel(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"panel": p, "fields": upd.Fields()})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Sweeps.TriggerSweep()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSweepStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Sweeps.Status())
}

// respondAction answers 200 when every step succeeded and 207 when the
// action completed with failed steps.
func (s *Server) respondAction(w http.ResponseWriter, r *http.Request, res *enforcement.Result, err error) {
	if err != nil && res == nil {
		s.fail(w, r, err)
		return
	}
	if err != nil {
		// The action ran but its final status could not be persisted.
		s.logger.ErrorContext(r.Context(), "Operator action failed", "panel_id", res.PanelID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"result": res, "ok": false, "error": err.Error()})
		return
	}
	code := http.StatusOK
	if !res.OK() {
		code = http.StatusMultiStatus
	}
	writeJSON(w, code, actionResponse{Result: res, OK: res.OK()})
}

// fail maps an engine error to an HTTP status.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= 500 {
		s.logger.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, code, err.Error())
}

func statusFor(err error) int {
	var transient *panels.TransientAPIError
	switch {
	case errors.Is(err, panels.ErrPanelNotFound):
		return http.StatusNotFound
	case errors.Is(err, panels.ErrLocked), errors.Is(err, monitor.ErrSweepRunning):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &transient):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (req deactivateRequest) reason() (string, error) {
	switch req.Preset {
	case "":
	case "non_payment":
		if req.Reason != "" {
			return "", errors.New("reason and preset are mutually exclusive")
		}
		return panels.ReasonNonPayment, nil
	default:
		return "", fmt.Errorf("unknown preset %q", req.Preset)
	}
	if req.Reason == "" {
		return panels.ReasonManual, nil
	}
	return req.Reason, nil
}

func (req quotaRequest) update() (*panels.Update, error) {
	upd := panels.NewUpdate()
	for name, v := range map[string]*int64{
		"max_users":         req.MaxUsers,
		"max_total_traffic": req.MaxTotalTraffic,
		"max_total_time":    req.MaxTotalTime,
	} {
		if v != nil && *v < 0 {
			return nil, fmt.Errorf("%s must not be negative", name)
		}
	}
	if req.MaxUsers != nil {
		upd.SetMaxUsers(*req.MaxUsers)
	}
	if req.MaxTotalTraffic != nil {
		upd.SetMaxTotalTraffic(*req.MaxTotalTraffic)
	}
	if req.MaxTotalTime != nil {
		upd.SetMaxTotalTime(*req.MaxTotalTime)
	}
	if req.CreatedAt != nil {
		upd.SetCreatedAt(req.CreatedAt.UTC())
	}
	if upd.Empty() {
		return nil, errors.New("no quota fields given")
	}
	return upd, nil
}

// panelContext parses the {id} route parameter and tags the request
// context with it.
func panelContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "invalid panel id")
			return
		}
		next.ServeHTTP(w, r.WithContext(logging.WithPanelID(r.Context(), id)))
	})
}

func panelID(r *http.Request) int64 {
	id, _ := logging.PanelID(r.Context())
	return id
}

// decodeBody decodes a JSON body. With optional set an empty body is
// accepted and leaves v untouched.
func decodeBody(r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
