package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	boardservice "rudefriend/contexts/community-board/board-service"
	httpadapter "rudefriend/contexts/community-board/board-service/adapters/http"
	boarderrors "rudefriend/contexts/community-board/board-service/domain/errors"
	boardhttp "rudefriend/contexts/community-board/board-service/transport/http"
	"rudefriend/internal/platform/metrics"
)

const maxBodyBytes = 64 << 10

type Options struct {
	Addr              string
	TrustProxyHeaders bool
	VoteRatePerSecond float64
	VoteRateBurst     int
	Metrics           *metrics.Recorder
}

type Server struct {
	mux         *http.ServeMux
	handler     http.Handler
	logger      *slog.Logger
	addr        string
	board       boardservice.Module
	trustProxy  bool
	voteLimiter *RateLimiter
	metrics     *metrics.Recorder
	httpServer  *http.Server
}

func New(board boardservice.Module, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}

	s := &Server{
		mux:         http.NewServeMux(),
		logger:      logger,
		addr:        opts.Addr,
		board:       board,
		trustProxy:  opts.TrustProxyHeaders,
		voteLimiter: NewRateLimiter(opts.VoteRatePerSecond, opts.VoteRateBurst),
		metrics:     opts.Metrics,
	}
	s.registerRoutes()
	s.handler = s.mux
	if s.metrics != nil {
		s.handler = s.metrics.InstrumentHandler(s.mux)
	}
	return s
}

// Handler is the full middleware chain served by Start.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}

	s.mux.HandleFunc("POST /api/boards", s.handleCreatePost)
	s.mux.HandleFunc("GET /api/boards", s.handleListPosts)
	s.mux.HandleFunc("GET /api/boards/{board_id}", s.handleGetPost)
	s.mux.HandleFunc("PUT /api/boards/{board_id}", s.handleUpdatePost)
	s.mux.HandleFunc("DELETE /api/boards/{board_id}", s.handleDeletePost)
	s.mux.HandleFunc("POST /api/boards/{board_id}/password-check", s.handleCheckPassword)
	s.mux.HandleFunc("POST /api/boards/{board_id}/votes", s.handleCastVote)
	s.mux.HandleFunc("GET /api/boards/{board_id}/votes", s.handleGetTally)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req boardhttp.PostRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	resp, err := s.board.Handler.CreatePostHandler(r.Context(), s.caller(r), req)
	if err != nil {
		s.writeBoardDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := boardhttp.ListPostsRequest{
		GameType: query.Get("game_type"),
		Tag:      query.Get("tag"),
		Author:   query.Get("author"),
		Search:   query.Get("search"),
	}
	var ok bool
	if req.Page, ok = queryInt(w, query.Get("page"), "page"); !ok {
		return
	}
	if req.Size, ok = queryInt(w, query.Get("size"), "size"); !ok {
		return
	}

	resp, err := s.board.Handler.ListPostsHandler(r.Context(), req)
	if err != nil {
		s.writeBoardDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	resp, err := s.board.Handler.GetPostHandler(r.Context(), r.PathValue("board_id"))
	if err != nil {
		s.writeBoardDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	var req boardhttp.UpdatePostRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	resp, err := s.board.Handler.UpdatePostHandler(r.Context(), s.caller(r), r.PathValue("board_id"), req)
	if err != nil {
		s.writeBoardDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	var req boardhttp.DeletePostRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	if err := s.board.Handler.DeletePostHandler(r.Context(), s.caller(r), r.PathValue("board_id"), req); err != nil {
		s.writeBoardDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCheckPassword(w http.ResponseWriter, r *http.Request) {
	var req boardhttp.PasswordCheckRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	resp, err := s.board.Handler.CheckPasswordHandler(r.Context(), r.PathValue("board_id"), req)
	if err != nil {
		s.writeBoardDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	var req boardhttp.CastVoteRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	caller := s.caller(r)
	boardID := r.PathValue("board_id")
	limiterKey := "member:" + caller.MemberID
	if caller.MemberID == "" {
		limiterKey = "ip:" + caller.ClientIP
	}
	if !s.voteLimiter.Allow(limiterKey) {
		s.logger.Warn("vote rate limit exceeded",
			"event", "board_vote_rate_limited",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"board_id", boardID,
		)
		writeBoardError(w, http.StatusTooManyRequests, "rate_limited", "too many vote requests")
		return
	}

	resp, err := s.board.Handler.CastVoteHandler(r.Context(), caller, boardID, req)
	if err != nil {
		s.writeBoardDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetTally(w http.ResponseWriter, r *http.Request) {
	resp, err := s.board.Handler.GetTallyHandler(r.Context(), r.PathValue("board_id"))
	if err != nil {
		s.writeBoardDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) caller(r *http.Request) httpadapter.Caller {
	return httpadapter.Caller{
		MemberID: strings.TrimSpace(r.Header.Get("X-User-Id")),
		ClientIP: resolveClientIP(r, s.trustProxy),
	}
}

func (s *Server) writeBoardDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, boarderrors.ErrVotingDisabled):
		writeBoardError(w, http.StatusConflict, "voting_disabled", err.Error())
	case errors.Is(err, boarderrors.ErrInvalidOption):
		writeBoardError(w, http.StatusBadRequest, "invalid_option", err.Error())
	case errors.Is(err, boarderrors.ErrUnknownOption):
		writeBoardError(w, http.StatusBadRequest, "unknown_option", err.Error())
	case errors.Is(err, boarderrors.ErrInvalidOptionSet):
		writeBoardError(w, http.StatusBadRequest, "invalid_option_set", err.Error())
	case errors.Is(err, boarderrors.ErrInvalidPostInput),
		errors.Is(err, boarderrors.ErrPasswordRequired),
		errors.Is(err, boarderrors.ErrInvalidVoter):
		writeBoardError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, boarderrors.ErrPostNotFound):
		writeBoardError(w, http.StatusNotFound, "post_not_found", err.Error())
	case errors.Is(err, boarderrors.ErrForbidden):
		writeBoardError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, boarderrors.ErrMemberNotFound):
		writeBoardError(w, http.StatusUnauthorized, "member_not_found", err.Error())
	case errors.Is(err, boarderrors.ErrVoteConflict):
		writeBoardError(w, http.StatusConflict, "vote_conflict", err.Error())
	default:
		s.logger.Error("board request failed",
			"event", "http_board_internal_error",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err.Error(),
		)
		writeBoardError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeBoardError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, boardhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decodeBody writes the 400 itself and reports whether decoding succeeded.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(body).Decode(dst)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}
	writeBoardError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
	return false
}

func queryInt(w http.ResponseWriter, raw string, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		writeBoardError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a non-negative integer")
		return 0, false
	}
	return value, true
}
