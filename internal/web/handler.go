package web

import (
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/cexll/issuedesk/internal/dto"
	"github.com/cexll/issuedesk/internal/issuecache"
	"github.com/cexll/issuedesk/internal/model"
	"github.com/cexll/issuedesk/internal/tracker"
	"github.com/cexll/issuedesk/internal/transport"
)

//go:embed templates/*
var templatesFS embed.FS

// Handler serves the issue board and its JSON API.
type Handler struct {
	tracker   *tracker.Tracker
	templates *template.Template
}

// NewHandler creates a new web handler
func NewHandler(t *tracker.Tracker) (*Handler, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"statusColor": statusColor,
		"markdown":    renderMarkdown,
	}).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &Handler{
		tracker:   t,
		templates: tmpl,
	}, nil
}

// RegisterRoutes registers the board and API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.Use(withRequestID)

	r.HandleFunc("/", h.handleIssueList).Methods("GET")
	r.HandleFunc("/issue/{id}", h.handleIssueDetail).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/issues", h.handleListIssues).Methods("GET")
	api.HandleFunc("/issues", h.handleCreateIssue).Methods("POST")
	api.HandleFunc("/issues/{id}", h.handleGetIssue).Methods("GET")
	api.HandleFunc("/issues/{id}", h.handlePatchIssue).Methods("PATCH")
	api.HandleFunc("/issues/{id}", h.handleDeleteIssue).Methods("DELETE")
	api.HandleFunc("/issues/{id}/tags", h.handleAddTag).Methods("POST")
	api.HandleFunc("/issues/{id}/tags/{label}", h.handleRemoveTag).Methods("DELETE")
	api.HandleFunc("/issues/{id}/assignee", h.handleAssign).Methods("PUT")
	api.HandleFunc("/issues/{id}/assignee", h.handleUnassign).Methods("DELETE")
	api.HandleFunc("/issues/{id}/comments", h.handleListComments).Methods("GET")
	api.HandleFunc("/issues/{id}/comments", h.handleCreateComment).Methods("POST")
	api.HandleFunc("/issues/{id}/comments/{commentID}", h.handlePatchComment).Methods("PATCH")
	api.HandleFunc("/issues/{id}/comments/{commentID}", h.handleDeleteComment).Methods("DELETE")
	api.HandleFunc("/tags", h.handleListTags).Methods("GET")
	api.HandleFunc("/tags/{id}", h.handlePatchTag).Methods("PATCH")
	api.HandleFunc("/tags/{id}", h.handleDeleteTag).Methods("DELETE")
	api.HandleFunc("/refresh", h.handleRefresh).Methods("POST")
}

func filterFromRequest(r *http.Request) tracker.Filter {
	q := r.URL.Query()
	assignment := tracker.Assignment(q.Get("assigned"))
	switch assignment {
	case tracker.AssignmentAssigned, tracker.AssignmentUnassigned:
	default:
		assignment = tracker.AssignmentAll
	}
	return tracker.Filter{Text: q.Get("q"), Status: q.Get("status"), Assignment: assignment}
}

// handleIssueList renders the board
func (h *Handler) handleIssueList(w http.ResponseWriter, r *http.Request) {
	filter := filterFromRequest(r)
	all := h.tracker.Issues().Issues

	data := struct {
		Filter tracker.Filter
		Issues []model.Issue
		Counts tracker.Counts
		Tags   []model.TagDefinition
	}{
		Filter: filter,
		Issues: filter.Apply(all),
		Counts: tracker.StatusCounts(all),
		Tags:   h.tracker.Tags().Definitions,
	}

	if err := h.templates.ExecuteTemplate(w, "issue_list.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// handleIssueDetail renders one issue
func (h *Handler) handleIssueDetail(w http.ResponseWriter, r *http.Request) {
	issue, err := h.tracker.LoadIssue(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Issue not found", statusFor(err))
		return
	}
	if comments, err := h.tracker.LoadComments(r.Context(), issue.RawID); err != nil {
		log.Printf("[Web] Failed to load comments for %s; showing issue without them: %v", issue.RawID.Display(), err)
	} else {
		issue.Comments = comments
	}

	data := struct {
		Issue model.Issue
	}{
		Issue: issue,
	}

	if err := h.templates.ExecuteTemplate(w, "issue_detail.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) handleListIssues(w http.ResponseWriter, r *http.Request) {
	issues := h.tracker.Query(filterFromRequest(r))
	writeJSON(w, http.StatusOK, issuecache.State{Issues: issues})
}

func (h *Handler) handleGetIssue(w http.ResponseWriter, r *http.Request) {
	issue, err := h.tracker.LoadIssue(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

type createIssueRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	AuthorID    string `json:"authorId"`
}

func (h *Handler) handleCreateIssue(w http.ResponseWriter, r *http.Request) {
	var req createIssueRequest
	if !decode(w, r, &req) {
		return
	}
	issue, err := h.tracker.CreateIssue(r.Context(), transport.NewIssue{
		Title:       req.Title,
		Description: req.Description,
		AuthorID:    req.AuthorID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, issue)
}

type patchIssueRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
}

func (h *Handler) handlePatchIssue(w http.ResponseWriter, r *http.Request) {
	var req patchIssueRequest
	if !decode(w, r, &req) {
		return
	}
	patch := transport.IssuePatch{Title: req.Title, Description: req.Description}
	if req.Status != nil {
		status := dto.NormalizeStatus(*req.Status)
		patch.Status = &status
	}
	issue, err := h.tracker.UpdateIssue(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (h *Handler) handleDeleteIssue(w http.ResponseWriter, r *http.Request) {
	if err := h.tracker.DeleteIssue(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type tagRequest struct {
	Tag   string  `json:"tag"`
	Color *string `json:"color"`
}

func (h *Handler) handleAddTag(w http.ResponseWriter, r *http.Request) {
	var req tagRequest
	if !decode(w, r, &req) {
		return
	}
	input := transport.TagInput{Label: req.Tag}
	if req.Color != nil {
		input.Color = *req.Color
	}
	refs, err := h.tracker.AddTag(r.Context(), mux.Vars(r)["id"], input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, refs)
}

func (h *Handler) handleRemoveTag(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.tracker.RemoveTag(r.Context(), vars["id"], vars["label"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		User string `json:"user"`
	}
	if !decode(w, r, &req) {
		return
	}
	issue, err := h.tracker.Assign(r.Context(), mux.Vars(r)["id"], req.User)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (h *Handler) handleUnassign(w http.ResponseWriter, r *http.Request) {
	issue, err := h.tracker.Unassign(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (h *Handler) handleListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.tracker.LoadComments(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

type commentRequest struct {
	Text     string `json:"text"`
	AuthorID string `json:"authorId"`
}

func (h *Handler) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if !decode(w, r, &req) {
		return
	}
	comment, err := h.tracker.AddComment(r.Context(), mux.Vars(r)["id"], transport.NewComment{
		Text:     req.Text,
		AuthorID: req.AuthorID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func (h *Handler) handlePatchComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if !decode(w, r, &req) {
		return
	}
	vars := mux.Vars(r)
	if err := h.tracker.EditComment(r.Context(), vars["id"], vars["commentID"], req.Text); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.tracker.DeleteComment(r.Context(), vars["id"], vars["commentID"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListTags(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tracker.Tags())
}

func (h *Handler) handlePatchTag(w http.ResponseWriter, r *http.Request) {
	var req tagRequest
	if !decode(w, r, &req) {
		return
	}
	def, err := h.tracker.UpdateTag(r.Context(), mux.Vars(r)["id"], transport.TagPatch{Label: req.Tag, Color: req.Color})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (h *Handler) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	if err := h.tracker.DeleteTag(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRefresh reloads issues and the tag catalog
func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.tracker.Refresh(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	if err := h.tracker.RefreshTags(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Issues int `json:"issues"`
		Tags   int `json:"tags"`
	}{
		Issues: len(h.tracker.Issues().Issues),
		Tags:   len(h.tracker.Tags().Definitions),
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Error parsing request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Web] Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		log.Printf("[Web] Request failed: %v", err)
	}
	http.Error(w, err.Error(), code)
}

// statusFor maps tracker and transport errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, transport.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, transport.ErrMissingID),
		errors.Is(err, transport.ErrEmptyPatch),
		errors.Is(err, transport.ErrTagRequired),
		errors.Is(err, transport.ErrUserRequired),
		errors.Is(err, transport.ErrTextRequired):
		return http.StatusBadRequest
	case errors.Is(err, tracker.ErrRefreshInFlight):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

// Helper functions for templates
func statusColor(status model.Status) string {
	switch status {
	case model.StatusTodo:
		return "#6c757d"
	case model.StatusInProgress:
		return "#0d6efd"
	case model.StatusDone:
		return "#198754"
	default:
		return "#adb5bd"
	}
}
