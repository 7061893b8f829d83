package httpadapter

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/kirillkom/conference-proceedings/internal/core/domain"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (rt *Router) listSubmissions(w http.ResponseWriter, r *http.Request) {
	conferenceID, err := pathID(r, "conferenceID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	grant, err := organizerGrant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := domain.SubmissionStatus(r.URL.Query().Get("status"))
	listing, err := rt.services.Reader.List(r.Context(), grant, conferenceID, status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (rt *Router) exportSubmissions(w http.ResponseWriter, r *http.Request) {
	conferenceID, err := pathID(r, "conferenceID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	grant, err := organizerGrant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	// Buffered so a failed export still gets a proper error status.
	var buf bytes.Buffer
	if err := rt.services.Reader.Export(r.Context(), grant, conferenceID, &buf); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", attachmentHeader(fmt.Sprintf("submissions_%d.xlsx", conferenceID)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (rt *Router) transition(w http.ResponseWriter, r *http.Request) {
	submissionID, err := pathID(r, "submissionID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	grant, err := organizerGrant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Status  string `json:"status"`
		Comment string `json:"comment"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	status, ok := domain.ParseSubmissionStatus(req.Status)
	if !ok {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "transition", fmt.Errorf("unknown status %q", req.Status)))
		return
	}

	sub, err := rt.services.Lifecycle.Transition(r.Context(), grant, submissionID, status, req.Comment)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordStatusChange(serviceName, string(status))
	}
	writeJSON(w, http.StatusOK, sub)
}

func (rt *Router) commentVersion(w http.ResponseWriter, r *http.Request) {
	submissionID, err := pathID(r, "submissionID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	number, err := pathID(r, "number")
	if err != nil {
		writeError(w, r, err)
		return
	}
	grant, err := organizerGrant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Comment string `json:"comment"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	version, err := rt.services.Lifecycle.CommentVersion(r.Context(), grant, submissionID, int(number), req.Comment)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, version)
}

func (rt *Router) retryConversion(w http.ResponseWriter, r *http.Request) {
	submissionID, err := pathID(r, "submissionID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	grant, err := organizerGrant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sub, err := rt.services.Lifecycle.RetryConversion(r.Context(), grant, submissionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sub)
}

func (rt *Router) compileProceedings(w http.ResponseWriter, r *http.Request) {
	conferenceID, err := pathID(r, "conferenceID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	grant, err := organizerGrant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	regenerate := false
	if raw := r.URL.Query().Get("regenerate"); raw != "" {
		regenerate, err = strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "compile proceedings", errors.New("regenerate must be a boolean")))
			return
		}
	}

	started := time.Now()
	outcome, err := rt.services.Proceedings.Compile(r.Context(), grant, conferenceID, regenerate)
	rt.recordCompile(time.Since(started), outcome, err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if outcome.Status == domain.CompileNothingToCompile {
		writeJSON(w, http.StatusOK, outcome)
		return
	}
	writeJSON(w, http.StatusCreated, outcome)
}

func (rt *Router) recordCompile(duration time.Duration, outcome *domain.CompileOutcome, err error) {
	if rt.metrics == nil {
		return
	}
	pages, skipped := 0, 0
	if outcome != nil {
		skipped = len(outcome.Skipped)
		if outcome.Proceedings != nil {
			pages = outcome.Proceedings.PageCount
		}
	}
	rt.metrics.RecordCompile(serviceName, duration, pages, skipped, err)
}

func (rt *Router) downloadProceedings(w http.ResponseWriter, r *http.Request) {
	conferenceID, err := pathID(r, "conferenceID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	who, err := optionalIdentity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, record, err := rt.services.Proceedings.Open(r.Context(), who, conferenceID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", attachmentHeader(lastSegment(record.File)))
	streamBody(w, r, body)
}
