package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/quickgpt/pkg/archive"
	"github.com/go-go-golems/quickgpt/pkg/relay"
	"github.com/go-go-golems/quickgpt/pkg/settings"
)

// PromptSource lists the configured prompts.
type PromptSource interface {
	Prompts() ([]settings.Prompt, error)
}

// StartRequestBody is the body of POST /api/requests.
type StartRequestBody struct {
	Query      string `json:"query"`
	Prompt     string `json:"prompt,omitempty"`
	PromptName string `json:"promptName,omitempty"`
	Surface    string `json:"surface,omitempty"`
	Model      string `json:"model,omitempty"`
	Verbose    bool   `json:"verbose,omitempty"`
}

type requestIDResponse struct {
	RequestID string `json:"requestId"`
}

type cancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// RequestView is the JSON snapshot of a stored request.
type RequestView struct {
	RequestID   string `json:"requestId"`
	ParentID    string `json:"parentId,omitempty"`
	PromptName  string `json:"promptName"`
	Query       string `json:"query"`
	Model       string `json:"model"`
	Status      string `json:"status"`
	Text        string `json:"text"`
	Error       string `json:"error,omitempty"`
	AbortReason string `json:"abortReason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Str("component", "server").Msg("write json response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func statusFor(err error) int {
	if errors.Is(err, relay.ErrRequestNotFound) || errors.Is(err, relay.ErrNoActiveRequest) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func loadPrompts(src PromptSource) []settings.Prompt {
	if src == nil {
		return settings.NormalizePrompts(nil)
	}
	prompts, err := src.Prompts()
	if err != nil {
		log.Warn().Err(err).Str("component", "server").Msg("load prompts, using default")
		return settings.NormalizePrompts(nil)
	}
	return prompts
}

// resolvePrompt fills a missing prompt from the named prompt or the first configured one.
func resolvePrompt(body StartRequestBody, prompts []settings.Prompt) (string, string) {
	if strings.TrimSpace(body.Prompt) != "" {
		return body.Prompt, body.PromptName
	}
	if p, ok := settings.FindPrompt(prompts, body.PromptName); ok {
		return p.Prompt, p.Name
	}
	if len(prompts) == 0 {
		return settings.DefaultPrompt.Prompt, settings.DefaultPrompt.Name
	}
	return prompts[0].Prompt, prompts[0].Name
}

func NewStartRequestHandler(ctrl *relay.Controller, prompts PromptSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body StartRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		prompt, promptName := resolvePrompt(body, loadPrompts(prompts))
		systemMessage := relay.BriefSystemMessage
		if body.Verbose {
			systemMessage = relay.VerboseSystemMessage
		}
		id, err := ctrl.StartRequest(r.Context(), relay.StartInput{
			Query:         body.Query,
			Prompt:        prompt,
			PromptName:    promptName,
			SystemMessage: systemMessage,
			Params:        relay.Params{Model: strings.TrimSpace(body.Model)},
			Surface:       strings.TrimSpace(body.Surface),
		})
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, requestIDResponse{RequestID: id})
	}
}

func NewDetailHandler(ctrl *relay.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := ctrl.StartDetail(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, requestIDResponse{RequestID: id})
	}
}

func NewCancelHandler(ctrl *relay.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := ctrl.Resolve(chi.URLParam(r, "id"))
		if err != nil {
			writeJSON(w, http.StatusOK, cancelResponse{Cancelled: false})
			return
		}
		writeJSON(w, http.StatusOK, cancelResponse{Cancelled: ctrl.Cancel(id, relay.ReasonByUser)})
	}
}

func NewGetRequestHandler(ctrl *relay.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := ctrl.Resolve(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		req, ok := ctrl.Store().Get(id)
		if !ok {
			writeError(w, http.StatusNotFound, relay.ErrRequestNotFound.Error())
			return
		}
		writeJSON(w, http.StatusOK, newRequestView(req))
	}
}

// NewListRequestsHandler lists every request still held in memory.
func NewListRequestsHandler(ctrl *relay.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqs := ctrl.Store().List()
		views := make([]RequestView, 0, len(reqs))
		for _, req := range reqs {
			views = append(views, newRequestView(req))
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func newRequestView(req relay.Request) RequestView {
	return RequestView{
		RequestID:   req.ID,
		ParentID:    req.ParentID,
		PromptName:  req.PromptName,
		Query:       req.Query,
		Model:       req.Params.Model,
		Status:      string(req.Status),
		Text:        req.Text,
		Error:       req.Error,
		AbortReason: req.AbortReason,
	}
}

func NewPromptsHandler(prompts PromptSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, loadPrompts(prompts))
	}
}

func NewHistoryHandler(a archive.Archive) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a == nil {
			writeJSON(w, http.StatusOK, []archive.Record{})
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		recs, err := a.Recent(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if recs == nil {
			recs = []archive.Record{}
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

func NewWSHandler(hub *Hub, upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug().Err(err).Str("component", "server").Msg("websocket upgrade failed")
			return
		}
		hub.Serve(conn)
	}
}
