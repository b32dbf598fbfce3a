package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wfunc/roundtable/admission"
	"github.com/wfunc/roundtable/dice"
	"github.com/wfunc/roundtable/engine"
	"github.com/wfunc/roundtable/logger"
	"github.com/wfunc/roundtable/services"
	"github.com/wfunc/roundtable/state"
)

func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type actionRequest struct {
	ParticipantID uint   `json:"participant_id"`
	Text          string `json:"text"`
}

type roundRequest struct {
	Force bool `json:"force"`
}

func gameID(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "gameID"), 10, 64)
	if err != nil || id == 0 {
		return 0, services.ErrInvalidArgument
	}
	return uint(id), nil
}

func (s *GameServer) getState(w http.ResponseWriter, r *http.Request) {
	id, err := gameID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	snap, err := s.engine.Snapshot(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *GameServer) postAction(w http.ResponseWriter, r *http.Request) {
	id, err := gameID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, services.ErrInvalidArgument)
		return
	}
	action, err := s.engine.EnqueueAction(r.Context(), id, req.ParticipantID, req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, action)
}

func (s *GameServer) postRound(w http.ResponseWriter, r *http.Request) {
	id, err := gameID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req roundRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, services.ErrInvalidArgument)
			return
		}
	}
	res, err := s.engine.ResolveRound(r.Context(), id, req.Force)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, services.ErrGameExists), errors.Is(err, services.ErrCharacterExists):
		return http.StatusConflict
	case errors.Is(err, engine.ErrNotFound), errors.Is(err, services.ErrNoGame),
		errors.Is(err, services.ErrNoCharacter), errors.Is(err, services.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, admission.ErrRejected), errors.Is(err, state.ErrTransitionNotAllowed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrInvalidArgument), errors.Is(err, dice.ErrInvalidNotation),
		errors.Is(err, errUnknownCommand), errors.Is(err, errChannelFull):
		return http.StatusBadRequest
	case errors.Is(err, errNotIdentified), errors.Is(err, errNoChannel):
		return http.StatusUnauthorized
	case errors.Is(err, errNotDM):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrPersistence):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// userMessage is the text shown to a player for a failed command.
func userMessage(err error) string {
	var rejection *admission.Rejection
	switch {
	case errors.As(err, &rejection):
		return "❌ " + rejection.Reason
	case errors.Is(err, engine.ErrBusy):
		return "⏳ A round is already being resolved. Try again in a moment."
	case errors.Is(err, services.ErrNoCharacter):
		return "❌ You don't have a character yet. Use `/create` to create one."
	case errors.Is(err, services.ErrCharacterExists):
		return "❌ You already have a character."
	case errors.Is(err, services.ErrGameExists):
		return "❌ A game is already running in this channel."
	case errors.Is(err, services.ErrNoGame), errors.Is(err, engine.ErrNotFound):
		return "❌ No active game found in this channel."
	case errors.Is(err, errNotIdentified):
		return "❌ Identify yourself first."
	case errors.Is(err, errNoChannel):
		return "❌ Join a channel first."
	case errors.Is(err, errNotDM):
		return "❌ Only the DM can do that."
	}
	if code := statusFor(err); code < http.StatusInternalServerError {
		return "❌ " + err.Error()
	}
	return "❌ Something went wrong. Please try again."
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Debugf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logger.Log.Errorf("API request failed: %v", err)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
