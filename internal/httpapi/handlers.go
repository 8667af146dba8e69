package httpapi

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/DoyleJ11/live-poll/internal/archive"
	"github.com/DoyleJ11/live-poll/internal/auth"
	"github.com/DoyleJ11/live-poll/internal/engine"
	"github.com/DoyleJ11/live-poll/internal/poll"
	"github.com/DoyleJ11/live-poll/internal/types"
)

type Server struct {
	poll     *poll.Poll
	sessions *auth.Registry
	archive  archive.Store
	log      *zap.Logger
}

func NewServer(p *poll.Poll, sessions *auth.Registry, store archive.Store, log *zap.Logger) *Server {
	if store == nil {
		store = archive.NopStore{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{poll: p, sessions: sessions, archive: store, log: log}
}

// GetState handles GET /api/state
func (s *Server) GetState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.poll.Snapshot(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Vote handles POST /api/vote
func (s *Server) Vote(w http.ResponseWriter, r *http.Request) {
	var req types.VoteRequest
	if !decode(w, r, &req) {
		return
	}
	s.exec(w, r, engine.Command{
		Type:      engine.CmdSubmitVote,
		TopicID:   req.TopicID,
		OptionID:  req.OptionID,
		VoterName: req.VoterName,
	}, "vote recorded")
}

// Login handles POST /api/admin/login
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req types.LoginRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := s.sessions.Login(req.Password)
	if err != nil {
		s.log.Info("admin login rejected", zap.String("remote", r.RemoteAddr))
		s.writeErr(w, err)
		return
	}
	s.log.Info("admin logged in", zap.Time("expires_at", sess.ExpiresAt))
	writeJSON(w, http.StatusOK, types.LoginResponse{
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt.UnixMilli(),
	})
}

// SelectTopic handles POST /api/admin/topic
func (s *Server) SelectTopic(w http.ResponseWriter, r *http.Request) {
	var req types.SelectTopicRequest
	if !decode(w, r, &req) {
		return
	}
	topicID := ""
	if req.TopicID != nil {
		topicID = *req.TopicID
	}
	msg := "active topic set"
	if topicID == "" {
		msg = "no active topic"
	}
	s.exec(w, r, engine.Command{Type: engine.CmdSelectTopic, TopicID: topicID}, msg)
}

// Start handles POST /api/admin/start
func (s *Server) Start(w http.ResponseWriter, r *http.Request) {
	events, err := s.poll.Execute(r.Context(), engine.Command{Type: engine.CmdStart})
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if len(events) == 0 {
		ack(w, "poll already started")
		return
	}
	ack(w, "poll started")
}

// Stop handles POST /api/admin/stop
func (s *Server) Stop(w http.ResponseWriter, r *http.Request) {
	s.exec(w, r, engine.Command{Type: engine.CmdStop}, "poll closing")
}

// Reset handles POST /api/admin/reset
func (s *Server) Reset(w http.ResponseWriter, r *http.Request) {
	s.exec(w, r, engine.Command{Type: engine.CmdReset}, "poll reset")
}

// SetVisibility handles POST /api/admin/visibility
func (s *Server) SetVisibility(w http.ResponseWriter, r *http.Request) {
	var req types.VisibilityRequest
	if !decode(w, r, &req) {
		return
	}
	s.exec(w, r, engine.Command{
		Type:       engine.CmdSetVisibility,
		Visibility: engine.Visibility(req.Mode),
	}, "visibility updated")
}

// ListArchive handles GET /api/archive?limit=N
func (s *Server) ListArchive(w http.ResponseWriter, r *http.Request) {
	limit := archive.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "validation", "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	results, err := s.archive.List(r.Context(), limit)
	if err != nil {
		s.log.Error("archive list failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "archive unavailable")
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) exec(w http.ResponseWriter, r *http.Request, cmd engine.Command, msg string) {
	if _, err := s.poll.Execute(r.Context(), cmd); err != nil {
		s.writeErr(w, err)
		return
	}
	ack(w, msg)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
