package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrWong99/chatsim/internal/observe"
	"github.com/MrWong99/chatsim/internal/phrase"
	"github.com/MrWong99/chatsim/internal/resilience"
	"github.com/MrWong99/chatsim/internal/synth"
)

// maxRequestBody bounds the generate-phrases request body.
const maxRequestBody = 4 << 10

type generateRequest struct {
	Topic    string `json:"topic"`
	GameName string `json:"gameName"`
	Mode     string `json:"mode"`
}

type generateResponse struct {
	Success      bool        `json:"success"`
	GameName     string      `json:"gameName"`
	Phrases      phrase.Set  `json:"phrases"`
	CurrentGames []string    `json:"currentGames"`
	Mode         phrase.Mode `json:"mode"`
	Cached       bool        `json:"cached"`
}

type failureResponse struct {
	Success      bool     `json:"success"`
	Error        string   `json:"error"`
	LimitReached bool     `json:"limitReached,omitempty"`
	RateLimited  bool     `json:"rateLimited,omitempty"`
	CurrentGames []string `json:"currentGames,omitempty"`
	Code         string   `json:"code,omitempty"`
	Reason       string   `json:"reason,omitempty"`
}

type userInfoResponse struct {
	Authenticated  bool     `json:"authenticated"`
	Games          []string `json:"games"`
	RemainingSlots int      `json:"remainingSlots"`
}

// handleGenerate serves POST /api/generate-phrases.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(w, r, failureResponse{Error: "unauthenticated"})
	if !ok {
		return
	}
	ctx := WithUserID(r.Context(), userID)
	log := observe.Logger(ctx)

	var req generateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, failureResponse{Error: "invalid request body"})
		return
	}
	topic := req.Topic
	if strings.TrimSpace(topic) == "" {
		topic = req.GameName
	}
	mode, err := phrase.ParseMode(req.Mode)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, failureResponse{Error: err.Error()})
		return
	}

	if s.limiter != nil {
		if ok, wait := s.limiter.Allow(userID); !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			writeJSON(w, http.StatusTooManyRequests, failureResponse{
				Error:       "too many generation requests, try again later",
				RateLimited: true,
			})
			return
		}
	}

	res, err := s.gen.Generate(ctx, userID, topic, mode)
	if err != nil {
		s.writeGenerateError(ctx, w, err)
		return
	}

	log.Info("phrase set delivered", "topic", res.GameName, "cached", res.Cached, "provider", res.Provider)
	writeJSON(w, http.StatusOK, generateResponse{
		Success:      true,
		GameName:     res.GameName,
		Phrases:      res.Phrases.Normalized(res.Mode.Categories()...),
		CurrentGames: nonNil(res.CurrentGames),
		Mode:         res.Mode,
		Cached:       res.Cached,
	})
}

func (s *Server) writeGenerateError(ctx context.Context, w http.ResponseWriter, err error) {
	log := observe.Logger(ctx)

	var quota *synth.QuotaError
	var rejected *synth.RejectionError
	switch {
	case errors.As(err, &quota):
		writeJSON(w, http.StatusTooManyRequests, failureResponse{
			Error:        err.Error(),
			LimitReached: true,
			CurrentGames: nonNil(quota.CurrentGames),
		})
	case errors.As(err, &rejected):
		writeJSON(w, http.StatusUnprocessableEntity, failureResponse{
			Error:  rejected.Error(),
			Code:   rejected.Code,
			Reason: rejected.Reason,
		})
	case errors.Is(err, synth.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, failureResponse{Error: err.Error()})
	case ctx.Err() != nil:
		log.Debug("client gave up waiting for phrase generation", "err", err)
	case errors.Is(err, synth.ErrMalformedResponse):
		log.Error("phrase generation returned malformed output", "err", err)
		writeJSON(w, http.StatusBadGateway, failureResponse{Error: "phrase generation failed"})
	case errors.Is(err, resilience.ErrAllFailed):
		log.Error("phrase generation failed on every provider", "err", err)
		writeJSON(w, http.StatusBadGateway, failureResponse{Error: "phrase generation failed"})
	default:
		log.Error("phrase generation failed", "err", err)
		writeJSON(w, http.StatusBadGateway, failureResponse{Error: "phrase generation failed"})
	}
}

// handleUserInfo serves GET /api/generate-phrases: the caller's topics and
// remaining slots.
func (s *Server) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(w, r, userInfoResponse{Games: []string{}})
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, userInfoResponse{
		Authenticated:  true,
		Games:          nonNil(s.store.Topics(userID)),
		RemainingSlots: s.store.RemainingSlots(userID),
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
