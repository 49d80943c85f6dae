// Package ghtest provides an in-memory GitHub repository served over
// httptest for go-github based tests.
package ghtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"

	gh "github.com/google/go-github/v66/github"
)

// Repo is the state behind the mock server. Only owner/repo is served.
type Repo struct {
	mu          sync.Mutex
	issues      []*gh.Issue
	labels      []*gh.Label
	milestones  []*gh.Milestone
	comments    map[int][]*gh.IssueComment
	nextLabelID int64
	nextComment int64
	nextNumber  int
	requests    []string
}

// NewMockGitHubClient returns a go-github client backed by a local httptest
// server that implements the issue, label and milestone endpoints:
//   - GET/POST  /repos/owner/repo/issues
//   - GET/PATCH /repos/owner/repo/issues/{number}
//   - POST      /repos/owner/repo/issues/{number}/labels
//   - DELETE    /repos/owner/repo/issues/{number}/labels/{name}
//   - GET/POST  /repos/owner/repo/labels
//   - PATCH/DELETE /repos/owner/repo/labels/{name}
//   - GET       /repos/owner/repo/milestones/{number}
//   - GET/POST  /repos/owner/repo/issues/{number}/comments
//   - PATCH/DELETE /repos/owner/repo/issues/comments/{id}
//
// The returned cleanup function must be called to close the server.
func NewMockGitHubClient() (*gh.Client, *Repo, func()) {
	repo := &Repo{nextLabelID: 1000, nextComment: 5000, nextNumber: 1, comments: map[int][]*gh.IssueComment{}}

	mux := http.NewServeMux()
	const prefix = "/repos/owner/repo"
	mux.HandleFunc("GET "+prefix+"/issues", repo.listIssues)
	mux.HandleFunc("POST "+prefix+"/issues", repo.createIssue)
	mux.HandleFunc("GET "+prefix+"/issues/{number}", repo.getIssue)
	mux.HandleFunc("PATCH "+prefix+"/issues/{number}", repo.editIssue)
	mux.HandleFunc("POST "+prefix+"/issues/{number}/labels", repo.addIssueLabels)
	mux.HandleFunc("DELETE "+prefix+"/issues/{number}/labels/{name}", repo.removeIssueLabel)
	mux.HandleFunc("GET "+prefix+"/labels", repo.listLabels)
	mux.HandleFunc("POST "+prefix+"/labels", repo.createLabel)
	mux.HandleFunc("PATCH "+prefix+"/labels/{name}", repo.editLabel)
	mux.HandleFunc("DELETE "+prefix+"/labels/{name}", repo.deleteLabel)
	mux.HandleFunc("GET "+prefix+"/milestones/{number}", repo.getMilestone)
	mux.HandleFunc("GET "+prefix+"/issues/{number}/comments", repo.listComments)
	mux.HandleFunc("POST "+prefix+"/issues/{number}/comments", repo.createComment)
	mux.HandleFunc("PATCH "+prefix+"/issues/comments/{id}", repo.editComment)
	mux.HandleFunc("DELETE "+prefix+"/issues/comments/{id}", repo.deleteComment)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		repo.mu.Lock()
		repo.requests = append(repo.requests, r.Method+" "+r.URL.Path)
		repo.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))

	client := gh.NewClient(srv.Client())
	base, _ := url.Parse(srv.URL + "/")
	client.BaseURL = base
	client.UploadURL = base

	cleanup := func() { srv.Close() }
	return client, repo, cleanup
}

// AddIssue stores issue, assigning the next number when it has none.
func (r *Repo) AddIssue(issue *gh.Issue) *gh.Issue {
	r.mu.Lock()
	defer r.mu.Unlock()
	if issue.Number == nil {
		issue.Number = gh.Int(r.nextNumber)
	}
	if issue.GetNumber() >= r.nextNumber {
		r.nextNumber = issue.GetNumber() + 1
	}
	if issue.State == nil {
		issue.State = gh.String("open")
	}
	r.issues = append(r.issues, issue)
	return issue
}

// AddLabel creates a repository label.
func (r *Repo) AddLabel(name, color string) *gh.Label {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addLabelLocked(name, color)
}

func (r *Repo) addLabelLocked(name, color string) *gh.Label {
	r.nextLabelID++
	label := &gh.Label{ID: gh.Int64(r.nextLabelID), Name: gh.String(name), Color: gh.String(color)}
	r.labels = append(r.labels, label)
	return label
}

// AddMilestone creates a milestone.
func (r *Repo) AddMilestone(number int, title string) *gh.Milestone {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := &gh.Milestone{Number: gh.Int(number), Title: gh.String(title)}
	r.milestones = append(r.milestones, m)
	return m
}

// AddComment stores a comment by login on issue number.
func (r *Repo) AddComment(number int, login, body string) *gh.IssueComment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addCommentLocked(number, login, body)
}

func (r *Repo) addCommentLocked(number int, login, body string) *gh.IssueComment {
	r.nextComment++
	c := &gh.IssueComment{
		ID:   gh.Int64(r.nextComment),
		Body: gh.String(body),
		User: &gh.User{Login: gh.String(login)},
	}
	r.comments[number] = append(r.comments[number], c)
	return c
}

// Comments returns the bodies of the comments on issue number.
func (r *Repo) Comments(number int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.comments[number]))
	for _, c := range r.comments[number] {
		out = append(out, c.GetBody())
	}
	return out
}

// Issue returns a copy of the stored issue.
func (r *Repo) Issue(number int) (gh.Issue, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if issue := r.findIssue(number); issue != nil {
		return *issue, true
	}
	return gh.Issue{}, false
}

// Labels returns the repository label names.
func (r *Repo) Labels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.labels))
	for _, l := range r.labels {
		names = append(names, l.GetName())
	}
	return names
}

// Requests returns "METHOD /path" for every request served so far.
func (r *Repo) Requests() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.requests...)
}

func (r *Repo) findIssue(number int) *gh.Issue {
	for _, issue := range r.issues {
		if issue.GetNumber() == number {
			return issue
		}
	}
	return nil
}

func (r *Repo) findLabel(name string) *gh.Label {
	for _, l := range r.labels {
		if strings.EqualFold(l.GetName(), name) {
			return l
		}
	}
	return nil
}

func (r *Repo) findMilestone(number int) *gh.Milestone {
	for _, m := range r.milestones {
		if m.GetNumber() == number {
			return m
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func (r *Repo) issueFromPath(w http.ResponseWriter, req *http.Request) *gh.Issue {
	n, err := strconv.Atoi(req.PathValue("number"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Not Found")
		return nil
	}
	issue := r.findIssue(n)
	if issue == nil {
		writeError(w, http.StatusNotFound, "Not Found")
	}
	return issue
}

func (r *Repo) listIssues(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	milestone := req.URL.Query().Get("milestone")
	out := make([]*gh.Issue, 0, len(r.issues))
	for _, issue := range r.issues {
		if milestone != "" && strconv.Itoa(issue.GetMilestone().GetNumber()) != milestone {
			continue
		}
		out = append(out, issue)
	}
	writeJSON(w, http.StatusOK, out)
}

func (r *Repo) createIssue(w http.ResponseWriter, req *http.Request) {
	var body gh.IssueRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	issue := &gh.Issue{
		Number: gh.Int(r.nextNumber),
		Title:  body.Title,
		Body:   body.Body,
		State:  gh.String("open"),
		User:   &gh.User{Login: gh.String("token-owner")},
	}
	r.nextNumber++
	r.issues = append(r.issues, issue)
	writeJSON(w, http.StatusCreated, issue)
}

func (r *Repo) getIssue(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if issue := r.issueFromPath(w, req); issue != nil {
		writeJSON(w, http.StatusOK, issue)
	}
}

func (r *Repo) editIssue(w http.ResponseWriter, req *http.Request) {
	var body map[string]json.RawMessage
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	issue := r.issueFromPath(w, req)
	if issue == nil {
		return
	}

	for key, value := range body {
		switch key {
		case "title":
			_ = json.Unmarshal(value, &issue.Title)
		case "body":
			_ = json.Unmarshal(value, &issue.Body)
		case "state":
			_ = json.Unmarshal(value, &issue.State)
		case "state_reason":
			_ = json.Unmarshal(value, &issue.StateReason)
		case "labels":
			var names []string
			_ = json.Unmarshal(value, &names)
			issue.Labels = r.resolveLabels(names)
		case "assignees":
			var logins []string
			_ = json.Unmarshal(value, &logins)
			issue.Assignees = nil
			issue.Assignee = nil
			for _, login := range logins {
				issue.Assignees = append(issue.Assignees, &gh.User{Login: gh.String(login)})
			}
			if len(issue.Assignees) > 0 {
				issue.Assignee = issue.Assignees[0]
			}
		case "milestone":
			var number *int
			_ = json.Unmarshal(value, &number)
			if number == nil {
				issue.Milestone = nil
				continue
			}
			m := r.findMilestone(*number)
			if m == nil {
				writeError(w, http.StatusUnprocessableEntity, "Validation Failed")
				return
			}
			issue.Milestone = m
		}
	}
	writeJSON(w, http.StatusOK, issue)
}

// resolveLabels maps names to labels, creating missing ones as GitHub does.
func (r *Repo) resolveLabels(names []string) []*gh.Label {
	out := make([]*gh.Label, 0, len(names))
	for _, name := range names {
		label := r.findLabel(name)
		if label == nil {
			label = r.addLabelLocked(name, "ededed")
		}
		out = append(out, label)
	}
	return out
}

func (r *Repo) addIssueLabels(w http.ResponseWriter, req *http.Request) {
	var names []string
	if err := json.NewDecoder(req.Body).Decode(&names); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	issue := r.issueFromPath(w, req)
	if issue == nil {
		return
	}
	for _, label := range r.resolveLabels(names) {
		present := false
		for _, existing := range issue.Labels {
			if existing.GetID() == label.GetID() {
				present = true
				break
			}
		}
		if !present {
			issue.Labels = append(issue.Labels, label)
		}
	}
	writeJSON(w, http.StatusOK, issue.Labels)
}

func (r *Repo) removeIssueLabel(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	issue := r.issueFromPath(w, req)
	if issue == nil {
		return
	}
	name := req.PathValue("name")
	kept := issue.Labels[:0]
	found := false
	for _, label := range issue.Labels {
		if strings.EqualFold(label.GetName(), name) {
			found = true
			continue
		}
		kept = append(kept, label)
	}
	if !found {
		writeError(w, http.StatusNotFound, "Label does not exist")
		return
	}
	issue.Labels = kept
	writeJSON(w, http.StatusOK, issue.Labels)
}

func (r *Repo) listLabels(w http.ResponseWriter, _ *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	writeJSON(w, http.StatusOK, r.labels)
}

func (r *Repo) createLabel(w http.ResponseWriter, req *http.Request) {
	var body gh.Label
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findLabel(body.GetName()) != nil {
		writeError(w, http.StatusUnprocessableEntity, "Validation Failed")
		return
	}
	writeJSON(w, http.StatusCreated, r.addLabelLocked(body.GetName(), body.GetColor()))
}

func (r *Repo) editLabel(w http.ResponseWriter, req *http.Request) {
	var body gh.Label
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	label := r.findLabel(req.PathValue("name"))
	if label == nil {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	if body.Name != nil {
		label.Name = body.Name
	}
	if body.Color != nil {
		label.Color = body.Color
	}
	writeJSON(w, http.StatusOK, label)
}

func (r *Repo) deleteLabel(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := req.PathValue("name")
	kept := r.labels[:0]
	found := false
	for _, label := range r.labels {
		if strings.EqualFold(label.GetName(), name) {
			found = true
			continue
		}
		kept = append(kept, label)
	}
	if !found {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	r.labels = kept
	for _, issue := range r.issues {
		issueLabels := issue.Labels[:0]
		for _, label := range issue.Labels {
			if !strings.EqualFold(label.GetName(), name) {
				issueLabels = append(issueLabels, label)
			}
		}
		issue.Labels = issueLabels
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Repo) getMilestone(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, _ := strconv.Atoi(req.PathValue("number"))
	m := r.findMilestone(n)
	if m == nil {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (r *Repo) listComments(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	issue := r.issueFromPath(w, req)
	if issue == nil {
		return
	}
	out := r.comments[issue.GetNumber()]
	if out == nil {
		out = []*gh.IssueComment{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (r *Repo) createComment(w http.ResponseWriter, req *http.Request) {
	var body gh.IssueComment
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	issue := r.issueFromPath(w, req)
	if issue == nil {
		return
	}
	writeJSON(w, http.StatusCreated, r.addCommentLocked(issue.GetNumber(), "token-owner", body.GetBody()))
}

// findComment returns the issue number and index of comment id, or -1.
func (r *Repo) findComment(id int64) (int, int) {
	for number, list := range r.comments {
		for i, c := range list {
			if c.GetID() == id {
				return number, i
			}
		}
	}
	return 0, -1
}

func (r *Repo) editComment(w http.ResponseWriter, req *http.Request) {
	var body gh.IssueComment
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id, _ := strconv.ParseInt(req.PathValue("id"), 10, 64)
	number, i := r.findComment(id)
	if i < 0 {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	c := r.comments[number][i]
	c.Body = body.Body
	writeJSON(w, http.StatusOK, c)
}

func (r *Repo) deleteComment(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, _ := strconv.ParseInt(req.PathValue("id"), 10, 64)
	number, i := r.findComment(id)
	if i < 0 {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	list := r.comments[number]
	r.comments[number] = append(list[:i], list[i+1:]...)
	w.WriteHeader(http.StatusNoContent)
}
