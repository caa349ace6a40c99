package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/homehub/hearth-core/internal/core/color"
	"github.com/homehub/hearth-core/internal/core/devices"
	"github.com/homehub/hearth-core/internal/core/expr"
	"github.com/homehub/hearth-core/internal/eventbus"
)

type activateRequest struct {
	DeviceKeys        []string `json:"device_keys,omitempty"`
	GroupIDs          []string `json:"group_ids,omitempty"`
	SkipLockedDevices bool     `json:"skip_locked_devices,omitempty"`
}

func (s *Server) handleActivateScene(w http.ResponseWriter, r *http.Request) {
	sceneID := chi.URLParam(r, "id")
	var req activateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.deps.AppState.Send(eventbus.ActivateScene(
		sceneID, req.SkipLockedDevices, parseKeys(req.DeviceKeys), groupKeys(req.GroupIDs)))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type cycleRequest struct {
	Scenes     []eventbus.SceneDescriptor `json:"scenes"`
	NoWrap     bool                       `json:"nowrap,omitempty"`
	DeviceKeys []string                   `json:"device_keys,omitempty"`
	GroupIDs   []string                   `json:"group_ids,omitempty"`
}

func (s *Server) handleCycleScenes(w http.ResponseWriter, r *http.Request) {
	var req cycleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.deps.AppState.Send(eventbus.CycleScenes(req.Scenes, req.NoWrap, parseKeys(req.DeviceKeys), groupKeys(req.GroupIDs)))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type dimRequest struct {
	Step       float64  `json:"step"`
	DeviceKeys []string `json:"device_keys,omitempty"`
	GroupIDs   []string `json:"group_ids,omitempty"`
}

func (s *Server) handleDim(w http.ResponseWriter, r *http.Request) {
	var req dimRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.deps.AppState.Send(eventbus.Dim(req.Step, parseKeys(req.DeviceKeys), groupKeys(req.GroupIDs)))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type setStateRequest struct {
	Power      bool    `json:"power"`
	Brightness float64 `json:"brightness"`
	Hue        float64 `json:"hue"`
	Saturation float64 `json:"saturation"`
}

func (s *Server) handleSetDeviceState(w http.ResponseWriter, r *http.Request) {
	key := devices.Key{IntegrationID: chi.URLParam(r, "integration"), DeviceID: chi.URLParam(r, "device")}
	var req setStateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	d := devices.Device{
		Key: key,
		Data: devices.Data{
			Kind: devices.KindManaged,
			Light: devices.Light{
				Power:      req.Power,
				Brightness: req.Brightness,
				Color:      color.Color{Mode: color.ModeHs, Hue: req.Hue, Saturation: req.Saturation},
			},
		},
	}
	s.deps.AppState.Send(eventbus.SetDeviceState(d))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type overrideRequest struct {
	On bool `json:"on"`
}

func (s *Server) handleToggleOverride(w http.ResponseWriter, r *http.Request) {
	key := devices.Key{IntegrationID: chi.URLParam(r, "integration"), DeviceID: chi.URLParam(r, "device")}
	var req overrideRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.deps.AppState.Send(eventbus.ToggleDeviceOverride(key, req.On))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleForceTriggerRoutine(w http.ResponseWriter, r *http.Request) {
	routineID := chi.URLParam(r, "id")
	s.deps.AppState.Send(eventbus.ForceTriggerRoutine(routineID))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleCustomAction(w http.ResponseWriter, r *http.Request) {
	integrationID := chi.URLParam(r, "id")
	var payload any
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.deps.AppState.Send(eventbus.Custom(integrationID, payload))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type evalExprRequest struct {
	Exprs []expr.ActionExpr `json:"exprs"`
}

// handleEvalExpr exposes Action(EvalExpr) over HTTP: the caller posts a
// list of guarded intents, evaluated against the current snapshot the
// moment the dispatcher processes the event, not at request time.
func (s *Server) handleEvalExpr(w http.ResponseWriter, r *http.Request) {
	var req evalExprRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.deps.AppState.Send(eventbus.EvalExpr(req.Exprs))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleUIAction(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var value any
	if err := decodeBody(r, &value); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.deps.AppState.Send(eventbus.UIAction(key, value))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func decodeBody(r *http.Request, v any) error {
	if r.ContentLength == 0 {
		return nil
	}
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func parseKeys(raw []string) []devices.Key {
	out := make([]devices.Key, 0, len(raw))
	for _, s := range raw {
		if k, ok := parseDeviceKeyString(s); ok {
			out = append(out, k)
		}
	}
	return out
}

// groupKeys carries caller-supplied group ids through the []devices.Key
// parameter devices.Component.targetKeys expects, using DeviceID as the
// group id slot (IntegrationID unused for this purpose).
func groupKeys(ids []string) []devices.Key {
	out := make([]devices.Key, 0, len(ids))
	for _, id := range ids {
		out = append(out, devices.Key{DeviceID: id})
	}
	return out
}

func parseDeviceKeyString(s string) (devices.Key, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return devices.Key{IntegrationID: s[:i], DeviceID: s[i+1:]}, true
		}
	}
	return devices.Key{}, false
}
