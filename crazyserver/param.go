package crazyserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mikehamer/crazyclient/crazyflie"
	"github.com/mikehamer/crazyclient/toc"
)

type paramValue struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

type paramSetRequest struct {
	Value *float64 `json:"value"`
}

func (s *Server) paramGet(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	value, err := s.cf.ReadParam(r.Context(), name)
	if err != nil {
		respondError(w, r, paramStatus(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, paramValue{Name: name, Value: value})
}

func (s *Server) paramSet(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var req paramSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == nil {
		respondError(w, r, http.StatusBadRequest, "value is required")
		return
	}

	if err := s.cf.WriteParam(r.Context(), name, *req.Value); err != nil {
		respondError(w, r, paramStatus(err), err.Error())
		return
	}

	value, err := s.cf.ReadParam(r.Context(), name)
	if err != nil {
		respondError(w, r, paramStatus(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, paramValue{Name: name, Value: value})
}

func paramStatus(err error) int {
	switch {
	case errors.Is(err, crazyflie.ErrorParamNotFound):
		return http.StatusNotFound
	case errors.Is(err, crazyflie.ErrorParamReadOnly):
		return http.StatusForbidden
	case errors.Is(err, toc.ErrorValueOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, crazyflie.ErrorNotConnected), errors.Is(err, crazyflie.ErrorTocNotLoaded):
		return http.StatusConflict
	default:
		return http.StatusGatewayTimeout
	}
}
