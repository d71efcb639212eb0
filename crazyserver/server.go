// Package crazyserver exposes a Crazyflie session over HTTP and websocket.
package crazyserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/mikehamer/crazyclient/crazyflie"
	"github.com/mikehamer/crazyclient/crtp"
	"github.com/mikehamer/crazyclient/toc"
)

type Config struct {
	Listen string
	// Static is an optional folder served on /static, with index.html on /.
	Static string
	Logger *zap.Logger
}

type Server struct {
	cf        *crazyflie.Crazyflie
	events    *Events
	commander *Commander
	cfg       Config
	log       *zap.Logger
	router    *mux.Router
}

type errorResponse struct {
	Error string `json:"error"`
}

// New serves cf. events should be the session's notifier and commander its
// bound command source.
func New(cf *crazyflie.Crazyflie, events *Events, commander *Commander, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		cf:        cf,
		events:    events,
		commander: commander,
		cfg:       cfg,
		log:       logger.Named("server"),
		router:    mux.NewRouter(),
	}
	s.initRoutes()
	return s
}

func (s *Server) initRoutes() {
	r := s.router

	r.HandleFunc("/state", s.stateGet).Methods("GET")
	r.HandleFunc("/connect", s.connect).Methods("POST")
	r.HandleFunc("/disconnect", s.disconnect).Methods("POST")
	r.HandleFunc("/commander", s.commanderSet).Methods("PUT")
	r.HandleFunc("/toc/{table:param|log}", s.tocGet).Methods("GET")
	r.HandleFunc("/toc/{table:param|log}", s.tocRefresh).Methods("POST")
	r.HandleFunc("/param/{name}", s.paramGet).Methods("GET")
	r.HandleFunc("/param/{name}", s.paramSet).Methods("PUT")
	r.HandleFunc("/stats", s.statsGet).Methods("GET")
	r.HandleFunc("/events", s.events.serveWebsocket).Methods("GET")

	if len(s.cfg.Static) > 0 {
		r.PathPrefix("/static").Handler(http.StripPrefix("/static", http.FileServer(http.Dir(s.cfg.Static))))
		r.Handle("/", http.FileServer(http.Dir(s.cfg.Static)))
		r.Handle("/favicon.ico", http.FileServer(http.Dir(s.cfg.Static)))
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", s.cfg.Listen))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type stateResponse struct {
	State   string             `json:"state"`
	Failure *crazyflie.Failure `json:"failure,omitempty"`
}

func (s *Server) stateResponse() stateResponse {
	resp := stateResponse{State: s.cf.State().String()}
	if f, ok := s.events.LastFailure(); ok {
		resp.Failure = &f
	}
	return resp
}

func (s *Server) stateGet(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.stateResponse())
}

// connect starts an attempt and answers right away; the outcome arrives on
// /events and /state.
func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	s.cf.Connect(nil)
	respondJSON(w, http.StatusAccepted, s.stateResponse())
}

func (s *Server) disconnect(w http.ResponseWriter, r *http.Request) {
	s.cf.Disconnect()
	respondJSON(w, http.StatusAccepted, s.stateResponse())
}

type tocEntry struct {
	ID       uint16 `json:"id"`
	Group    string `json:"group"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	ReadOnly bool   `json:"read_only,omitempty"`
}

type tocResponse struct {
	Table   string     `json:"table"`
	CRC     uint32     `json:"crc"`
	Entries []tocEntry `json:"entries"`
}

func tableOf(r *http.Request) crtp.Port {
	if mux.Vars(r)["table"] == "log" {
		return crtp.PortLog
	}
	return crtp.PortParam
}

func (s *Server) tocGet(w http.ResponseWriter, r *http.Request) {
	port := tableOf(r)
	t, ok := s.cf.Toc(port)
	if !ok {
		respondError(w, r, http.StatusNotFound, port.String()+" table not loaded")
		return
	}
	respondJSON(w, http.StatusOK, newTocResponse(t))
}

// tocRefresh fetches the table again, for example after a timeout.
func (s *Server) tocRefresh(w http.ResponseWriter, r *http.Request) {
	t, err := s.cf.RequestToc(r.Context(), tableOf(r))
	switch {
	case errors.Is(err, crazyflie.ErrorNotConnected):
		respondError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, toc.ErrorTocBusy):
		respondError(w, r, http.StatusConflict, err.Error())
	case err != nil:
		respondError(w, r, http.StatusGatewayTimeout, err.Error())
	default:
		respondJSON(w, http.StatusOK, newTocResponse(t))
	}
}

func newTocResponse(t *toc.Toc) tocResponse {
	resp := tocResponse{
		Table:   t.Port.String(),
		CRC:     t.CRC,
		Entries: make([]tocEntry, 0, t.Len()),
	}
	for _, e := range t.Entries {
		resp.Entries = append(resp.Entries, tocEntry{
			ID:       e.ID,
			Group:    e.Group,
			Name:     e.Name,
			Type:     e.Type.String(),
			ReadOnly: e.ReadOnly,
		})
	}
	return resp
}

type statsResponse struct {
	crazyflie.Stats
	Clients       int    `json:"clients"`
	Notified      uint64 `json:"notified_sends"`
	EventsDropped uint64 `json:"events_dropped"`
}

func (s *Server) statsGet(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, statsResponse{
		Stats:         s.cf.Stats(),
		Clients:       s.events.Clients(),
		Notified:      s.events.sends.Load(),
		EventsDropped: s.events.dropped.Load(),
	})
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, r *http.Request, httpStatus int, msg string) {
	respondJSON(w, httpStatus, errorResponse{Error: msg})
}
