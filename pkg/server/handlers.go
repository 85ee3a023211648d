package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/campuskeep/campuskeep/pkg/api"
	"github.com/campuskeep/campuskeep/pkg/auth"
	"github.com/campuskeep/campuskeep/pkg/claims"
	"github.com/campuskeep/campuskeep/pkg/forum"
	"github.com/campuskeep/campuskeep/pkg/identity"
	"github.com/campuskeep/campuskeep/pkg/policy"
	"github.com/campuskeep/campuskeep/pkg/store"
)

// writeDomainError translates domain errors into problem details. Unmatched
// errors become 500 with the cause logged, never echoed.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var denied *policy.DeniedError
	var claimVal *claims.ValidationError
	var forumVal *forum.ValidationError
	switch {
	case errors.As(err, &denied):
		api.WriteDeny(w, r, denied)
	case errors.As(err, &claimVal), errors.As(err, &forumVal):
		api.WriteBadRequest(w, err.Error())
	case errors.Is(err, claims.ErrInvalidTransition):
		api.WriteConflict(w, err.Error())
	case errors.Is(err, store.ErrConflict):
		api.WriteConflict(w, "claim was decided concurrently; re-read and retry")
	case errors.Is(err, store.ErrNotFound):
		api.WriteNotFound(w, "resource not found")
	case errors.Is(err, identity.ErrUnauthenticated):
		api.WriteUnauthorized(w, "")
	default:
		api.WriteInternal(w, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeBody reads a bounded JSON object body. A false return means the
// error response has already been written.
func decodeBody(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		api.WriteBadRequest(w, "Invalid request body")
		return nil, false
	}
	return body, true
}

func subject(w http.ResponseWriter, r *http.Request) (policy.Subject, bool) {
	s, err := auth.GetSubject(r.Context())
	if err != nil {
		api.WriteInternal(w, err)
		return policy.Subject{}, false
	}
	return s, true
}

func str(body map[string]any, key string) string {
	s, _ := body[key].(string)
	return s
}

func knownStatus(s string) bool {
	switch claims.Status(s) {
	case "", claims.StatusPending, claims.StatusApproved, claims.StatusRejected, claims.StatusCompleted:
		return true
	}
	return false
}

// handleClaims serves POST /claims and GET /claims?status=.
func (s *Server) handleClaims(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		subj, ok := subject(w, r)
		if !ok {
			return
		}
		body, ok := decodeBody(w, r)
		if !ok {
			return
		}
		if err := s.validator.ValidateClaimSubmission(body); err != nil {
			api.WriteBadRequest(w, err.Error())
			return
		}
		claim, err := s.lifecycle.Submit(r.Context(), subj, str(body, "item_id"), str(body, "proof_description"))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, claim)

	case http.MethodGet:
		subj, ok := subject(w, r)
		if !ok {
			return
		}
		status := r.URL.Query().Get("status")
		if !knownStatus(status) {
			api.WriteBadRequest(w, "unknown status filter")
			return
		}
		list, err := s.lifecycle.List(r.Context(), subj, claims.Status(status))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		if list == nil {
			list = []*claims.Claim{}
		}
		writeJSON(w, http.StatusOK, list)

	default:
		api.WriteMethodNotAllowed(w)
	}
}

// handleClaimByID serves GET /claims/{id} and POST /claims/{id}/decide.
func (s *Server) handleClaimByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/claims/")
	if id, found := strings.CutSuffix(rest, "/decide"); found {
		s.handleDecide(w, r, id)
		return
	}
	if strings.Contains(rest, "/") || rest == "" {
		api.WriteNotFound(w, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w)
		return
	}
	subj, ok := subject(w, r)
	if !ok {
		return
	}
	claim, err := s.lifecycle.Get(r.Context(), subj, rest)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, claim)
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		api.WriteMethodNotAllowed(w)
		return
	}
	subj, ok := subject(w, r)
	if !ok {
		return
	}
	body, ok := decodeBody(w, r)
	if !ok {
		return
	}
	if err := s.validator.ValidateClaimDecision(body); err != nil {
		api.WriteBadRequest(w, err.Error())
		return
	}
	claim, err := s.lifecycle.Decide(r.Context(), subj, id, claims.Event(str(body, "action")), str(body, "admin_notes"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, claim)
}

// handlePosts serves POST /forum/posts.
func (s *Server) handlePosts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.WriteMethodNotAllowed(w)
		return
	}
	subj, ok := subject(w, r)
	if !ok {
		return
	}
	body, ok := decodeBody(w, r)
	if !ok {
		return
	}
	if err := s.validator.ValidatePost(body); err != nil {
		api.WriteBadRequest(w, err.Error())
		return
	}
	post, err := s.guard.CreatePost(r.Context(), subj, str(body, "body"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

// postView is the read payload: a post with its comments inline.
type postView struct {
	*forum.Post
	Comments []*forum.Comment `json:"comments"`
}

// handlePostByID serves GET and DELETE on /forum/posts/{id}, plus
// POST /forum/posts/{id}/comments.
func (s *Server) handlePostByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/forum/posts/")
	if id, found := strings.CutSuffix(rest, "/comments"); found {
		s.handleCreateComment(w, r, id)
		return
	}
	if strings.Contains(rest, "/") || rest == "" {
		api.WriteNotFound(w, "resource not found")
		return
	}
	subj, ok := subject(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		post, comments, err := s.guard.GetPost(r.Context(), subj, rest)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		if comments == nil {
			comments = []*forum.Comment{}
		}
		writeJSON(w, http.StatusOK, postView{Post: post, Comments: comments})
	case http.MethodDelete:
		if err := s.guard.DeletePost(r.Context(), subj, rest); err != nil {
			writeDomainError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		api.WriteMethodNotAllowed(w)
	}
}

func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request, postID string) {
	if r.Method != http.MethodPost {
		api.WriteMethodNotAllowed(w)
		return
	}
	subj, ok := subject(w, r)
	if !ok {
		return
	}
	body, ok := decodeBody(w, r)
	if !ok {
		return
	}
	if err := s.validator.ValidatePost(body); err != nil {
		api.WriteBadRequest(w, err.Error())
		return
	}
	comment, err := s.guard.CreateComment(r.Context(), subj, postID, str(body, "body"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

// handleCommentByID serves DELETE /forum/comments/{id}.
func (s *Server) handleCommentByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		api.WriteMethodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/forum/comments/")
	if strings.Contains(id, "/") || id == "" {
		api.WriteNotFound(w, "resource not found")
		return
	}
	subj, ok := subject(w, r)
	if !ok {
		return
	}
	if err := s.guard.DeleteComment(r.Context(), subj, id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
