package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"

	"github.com/mnemo-lab/mnemosyne/pkg/domain/model"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/types"
	memsvc "github.com/mnemo-lab/mnemosyne/pkg/service/memory"
	"github.com/mnemo-lab/mnemosyne/pkg/usecase"
	"github.com/mnemo-lab/mnemosyne/pkg/utils/errutil"
)

const (
	defaultContextLimit = 20
	defaultRelatedTopK  = 5
)

func respondJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "failed to marshal response"), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data) //nolint:errcheck // header already committed
}

// handleError maps domain errors onto HTTP status codes
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, memsvc.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, usecase.ErrWipeInProgress), errors.Is(err, types.ErrContention):
		status = http.StatusConflict
	case errors.Is(err, types.ErrInvalidCategory), errors.Is(err, types.ErrInvalidVector):
		status = http.StatusBadRequest
	case errors.Is(err, types.ErrConnectionFailed), errors.Is(err, types.ErrNotConnected):
		status = http.StatusServiceUnavailable
	}
	errutil.HandleHTTP(r.Context(), w, err, status)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

type postMessageRequest struct {
	AuthorID    string    `json:"author_id"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
	IsBot       bool      `json:"is_bot,omitempty"`
	Mentions    []string  `json:"mentions,omitempty"`
	Attachments []struct {
		URL         string `json:"url"`
		Description string `json:"description,omitempty"`
	} `json:"attachments,omitempty"`
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	channelID := types.ChannelID(chi.URLParam(r, "channelID"))

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "malformed message body"), http.StatusBadRequest)
		return
	}
	if req.Content == "" && len(req.Attachments) == 0 {
		errutil.HandleHTTP(r.Context(), w, goerr.New("message needs content or attachments"), http.StatusBadRequest)
		return
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}

	msg := &model.Message{
		AuthorID:  req.AuthorID,
		Content:   req.Content,
		Timestamp: req.Timestamp,
		ChannelID: channelID,
		Mentions:  req.Mentions,
		IsBot:     req.IsBot,
	}
	for _, a := range req.Attachments {
		msg.Attachments = append(msg.Attachments, model.Attachment{
			URL:         a.URL,
			Description: a.Description,
		})
	}

	memID, err := s.uc.HandleMessage(r.Context(), msg)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusCreated, map[string]string{"memory_id": memID.String()})
}

func (s *Server) getContext(w http.ResponseWriter, r *http.Request) {
	channelID := types.ChannelID(chi.URLParam(r, "channelID"))
	query := r.URL.Query().Get("query")
	limit := queryInt(r, "limit", defaultContextLimit)
	topK := queryInt(r, "top_k", defaultRelatedTopK)

	cc, err := s.uc.BuildContext(r.Context(), channelID, query, limit, topK)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, cc)
}

func (s *Server) getRelated(w http.ResponseWriter, r *http.Request) {
	channelID := types.ChannelID(chi.URLParam(r, "channelID"))
	query := r.URL.Query().Get("query")
	if query == "" {
		errutil.HandleHTTP(r.Context(), w, goerr.New("query parameter is required"), http.StatusBadRequest)
		return
	}
	topK := queryInt(r, "top_k", defaultRelatedTopK)

	hits, err := s.uc.RelatedMemories(r.Context(), channelID, query, topK)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]any{"related": hits})
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	channelID := types.ChannelID(chi.URLParam(r, "channelID"))

	count, err := s.uc.MessageCount(r.Context(), channelID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]any{
		"channel":  channelID.String(),
		"messages": count,
		"buffered": s.uc.ShortTerm().Len(channelID),
	})
}

func (s *Server) wipeChannel(w http.ResponseWriter, r *http.Request) {
	channelID := types.ChannelID(chi.URLParam(r, "channelID"))

	deleted, err := s.uc.WipeChannel(r.Context(), channelID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]int{"deleted": deleted})
}

func (s *Server) wipeAll(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.uc.WipeAll(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]int{"deleted": deleted})
}

type memoryResponse struct {
	ID        string            `json:"id"`
	Category  string            `json:"category"`
	Content   json.RawMessage   `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func toMemoryResponse(m *model.Memory) memoryResponse {
	return memoryResponse{
		ID:        m.ID.String(),
		Category:  m.Category.String(),
		Content:   json.RawMessage(m.Content.Encode()),
		Metadata:  m.Metadata,
		CreatedAt: m.CreatedAt,
	}
}

func toMemoryResponses(memories []*model.Memory) []memoryResponse {
	out := make([]memoryResponse, len(memories))
	for i, m := range memories {
		out[i] = toMemoryResponse(m)
	}
	return out
}

func (s *Server) listMemories(w http.ResponseWriter, r *http.Request) {
	category := types.Category(chi.URLParam(r, "category"))
	if err := category.Validate(); err != nil {
		errutil.HandleHTTP(r.Context(), w, err, http.StatusBadRequest)
		return
	}

	memories, err := s.uc.Memories().List(r.Context(), category)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]any{"memories": toMemoryResponses(memories)})
}

func (s *Server) searchMemories(w http.ResponseWriter, r *http.Request) {
	category := types.Category(chi.URLParam(r, "category"))
	if err := category.Validate(); err != nil {
		errutil.HandleHTTP(r.Context(), w, err, http.StatusBadRequest)
		return
	}

	term := r.URL.Query().Get("q")
	filters := map[string]string{}
	for k, vs := range r.URL.Query() {
		if k == "q" || len(vs) == 0 {
			continue
		}
		filters[k] = vs[0]
	}

	memories, err := s.uc.Memories().Search(r.Context(), category, term, filters)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]any{"memories": toMemoryResponses(memories)})
}

func (s *Server) getMemory(w http.ResponseWriter, r *http.Request) {
	category := types.Category(chi.URLParam(r, "category"))
	id := types.MemoryID(chi.URLParam(r, "memoryID"))

	mem, err := s.uc.Memories().Get(r.Context(), category, id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, toMemoryResponse(mem))
}

func (s *Server) deleteMemory(w http.ResponseWriter, r *http.Request) {
	category := types.Category(chi.URLParam(r, "category"))
	id := types.MemoryID(chi.URLParam(r, "memoryID"))

	if err := s.uc.Memories().Delete(r.Context(), category, id); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
