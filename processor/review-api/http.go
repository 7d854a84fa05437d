package reviewapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gradeworks/scanreview/review"
)

// maxRequestBodySize limits POST body sizes to prevent DoS.
const maxRequestBodySize = 1 << 20 // 1 MB

// RegisterHTTPHandlers registers all review-api HTTP handlers under the given
// prefix. The prefix should be the path segment without a trailing slash
// (e.g. "api/review"). Handlers are registered as:
//
//	GET  <prefix>/submissions
//	GET  <prefix>/submissions/{id}
//	POST <prefix>/submissions/{id}/reposition
//	POST <prefix>/submissions/{id}/edits
//	POST <prefix>/submissions/{id}/edits/commit
//	POST <prefix>/submissions/{id}/edits/discard
//	POST <prefix>/submissions/{id}/approve
//	GET  <prefix>/stats
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	// Normalise: ensure leading slash and trailing slash.
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}

	mux.HandleFunc(prefix+"submissions", c.handleListSubmissions)
	mux.HandleFunc(prefix+"submissions/", c.handleSubmission)
	mux.HandleFunc(prefix+"stats", c.handleStats)
}

// submissionSummary is the list-view projection of a submission.
type submissionSummary struct {
	ID             string `json:"id"`
	CandidateName  string `json:"candidate_name"`
	RegistrationID string `json:"registration_id"`
	CentreName     string `json:"centre_name,omitempty"`
	PageCount      int    `json:"page_count"`

	SegmentationStatus string `json:"segmentation_status"`
	OCRStatus          string `json:"ocr_status"`
	EvaluationStatus   string `json:"evaluation_status"`

	// Labels are the phase-qualified display forms, e.g. "ocr-approved".
	Labels map[string]string `json:"labels"`
}

func summarize(sub *review.Submission) submissionSummary {
	labels := make(map[string]string, len(review.Phases))
	for _, p := range review.Phases {
		labels[string(p)] = sub.StatusOf(p).Label(p)
	}
	return submissionSummary{
		ID:                 sub.ID,
		CandidateName:      sub.CandidateName,
		RegistrationID:     sub.RegistrationID,
		CentreName:         sub.CentreName,
		PageCount:          len(sub.Pages),
		SegmentationStatus: string(sub.SegmentationStatus),
		OCRStatus:          string(sub.OCRStatus),
		EvaluationStatus:   string(sub.EvaluationStatus),
		Labels:             labels,
	}
}

// handleListSubmissions returns summaries of all tracked submissions ordered
// by registration ID.
func (c *Component) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	subs := c.core.Registry.List()
	summaries := make([]submissionSummary, 0, len(subs))
	for _, sub := range subs {
		summaries = append(summaries, summarize(sub))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"submissions": summaries,
		"count":       len(summaries),
	})
}

// handleStats returns aggregate phase counts over the registry.
func (c *Component) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, c.core.Registry.Stats())
}

// handleSubmission routes /submissions/{id} and its sub-endpoints.
func (c *Component) handleSubmission(w http.ResponseWriter, r *http.Request) {
	id, endpoint := extractIDAndEndpoint(r.URL.Path)
	if id == "" {
		http.Error(w, "Submission ID required", http.StatusBadRequest)
		return
	}

	switch endpoint {
	case "":
		c.handleGetSubmission(w, r, id)
	case "reposition":
		c.handleReposition(w, r, id)
	case "edits":
		c.handleStageEdit(w, r, id)
	case "edits/commit":
		c.handleCommitEdits(w, r, id)
	case "edits/discard":
		c.handleDiscardEdits(w, r, id)
	case "approve":
		c.handleApprove(w, r, id)
	default:
		http.Error(w, "Unknown endpoint", http.StatusNotFound)
	}
}

// handleGetSubmission returns the full submission record. Only committed
// artifact values are returned; staged drafts are flagged but never shown
// here.
func (c *Component) handleGetSubmission(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sub, err := c.core.Registry.Get(id)
	if err != nil {
		c.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"submission": sub,
		"has_drafts": c.core.Artifacts.HasDrafts(id),
	})
}

// repositionRequest moves a page within the submission's page set.
type repositionRequest struct {
	FromPosition int `json:"from_position"`
	ToPosition   int `json:"to_position"`
}

// handleReposition applies a page reorder within a segmentation review.
func (c *Component) handleReposition(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req repositionRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		c.writeError(w, err)
		return
	}

	session, err := c.core.Controller.OpenSession(id, review.PhaseSegmentation)
	if err != nil {
		c.writeError(w, err)
		return
	}
	if err := session.Reposition(req.FromPosition, req.ToPosition); err != nil {
		c.writeError(w, err)
		return
	}
	c.metrics.repositions.Inc()

	sub, err := c.core.Registry.Get(id)
	if err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pages": sub.Pages})
}

// editRequest stages one artifact edit.
type editRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// handleStageEdit stages an artifact edit without touching the committed
// value. Edits are only accepted while the OCR phase is open for review.
func (c *Component) handleStageEdit(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req editRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		c.writeError(w, err)
		return
	}

	sub, err := c.core.Registry.Get(id)
	if err != nil {
		c.writeError(w, err)
		return
	}
	if !sub.OCRStatus.Reviewable() {
		c.writeError(w, &review.IllegalTransitionError{
			Phase: review.PhaseOCR,
			From:  sub.OCRStatus,
			To:    review.StatusApproved,
		})
		return
	}

	if err := c.core.Artifacts.StageEdit(id, review.ArtifactField(req.Field), req.Value); err != nil {
		c.writeError(w, err)
		return
	}
	c.metrics.stagedEdits.Inc()
	writeJSON(w, http.StatusOK, map[string]any{"staged": true, "field": req.Field})
}

// handleCommitEdits commits the staged drafts, replacing the committed
// artifact values and writing the submission through to storage.
func (c *Component) handleCommitEdits(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := c.core.Artifacts.Commit(r.Context(), id); err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"committed": true})
}

// handleDiscardEdits drops any staged drafts, reverting to committed values.
func (c *Component) handleDiscardEdits(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if _, err := c.core.Registry.Get(id); err != nil {
		c.writeError(w, err)
		return
	}
	c.core.Artifacts.Discard(id)
	writeJSON(w, http.StatusOK, map[string]any{"discarded": true})
}

// approveRequest approves one phase of a submission.
type approveRequest struct {
	Phase string `json:"phase"`
}

// handleApprove records human sign-off on a completed phase. Staged edits, if
// any, are committed as part of the approval.
func (c *Component) handleApprove(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req approveRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		c.writeError(w, err)
		return
	}

	phase, err := review.ParsePhase(req.Phase)
	if err != nil {
		c.writeError(w, err)
		return
	}

	session, err := c.core.Controller.OpenSession(id, phase)
	if err != nil {
		c.writeError(w, err)
		return
	}
	if err := session.Approve(r.Context()); err != nil {
		c.writeError(w, err)
		return
	}
	c.metrics.approvals.WithLabelValues(string(phase)).Inc()

	sub, err := c.core.Registry.Get(id)
	if err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"approved": true,
		"phase":    string(phase),
		"status":   sub.StatusOf(phase).Label(phase),
	})
}

// writeError maps review domain errors onto HTTP status codes.
func (c *Component) writeError(w http.ResponseWriter, err error) {
	var (
		verr    *review.ValidationError
		oor     *review.OutOfRangeError
		noop    *review.NoOpError
		illegal *review.IllegalTransitionError
		perr    *review.PersistenceError
	)

	status := http.StatusInternalServerError
	kind := "internal"
	switch {
	case errors.Is(err, review.ErrSubmissionNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.As(err, &verr), errors.As(err, &oor), errors.As(err, &noop):
		status, kind = http.StatusBadRequest, "validation"
	case errors.As(err, &illegal):
		status, kind = http.StatusConflict, "illegal_transition"
	case errors.As(err, &perr):
		status, kind = http.StatusBadGateway, "persistence"
	}

	if status >= http.StatusInternalServerError {
		c.logger.Error("review-api request failed", "error", err)
	}
	c.metrics.reviewErrors.WithLabelValues(kind).Inc()

	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// decodeJSONBody decodes a size-limited JSON request body into dst.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &review.ValidationError{Field: "body", Message: "invalid JSON: " + err.Error()}
	}
	return nil
}

// extractIDAndEndpoint extracts the submission ID and sub-endpoint from a
// path like /api/review/submissions/{id}/approve.
func extractIDAndEndpoint(path string) (id, endpoint string) {
	idx := strings.Index(path, "/submissions/")
	if idx == -1 {
		return "", ""
	}

	remainder := path[idx+len("/submissions/"):]
	parts := strings.SplitN(remainder, "/", 2)
	if len(parts) == 0 {
		return "", ""
	}

	id = parts[0]
	if len(parts) > 1 {
		endpoint = strings.TrimSuffix(parts[1], "/")
	}
	return id, endpoint
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Response is already partially written; nothing useful to do.
		_ = err
	}
}
