package httpadapter

import (
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/kirillkom/conference-proceedings/internal/core/domain"
)

// Room for the non-file form fields on top of the manuscript itself.
const multipartOverheadBytes = 1 << 20

func (rt *Router) submit(w http.ResponseWriter, r *http.Request) {
	conferenceID, err := pathID(r, "conferenceID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	author, err := identityFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	upload, closeFile, err := rt.readUpload(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer closeFile()

	meta := domain.SubmissionMetadata{
		Title:    strings.TrimSpace(r.FormValue("title")),
		Authors:  strings.TrimSpace(r.FormValue("authors")),
		Abstract: strings.TrimSpace(r.FormValue("abstract")),
		Keywords: strings.TrimSpace(r.FormValue("keywords")),
	}
	detail, err := rt.services.Intake.Submit(r.Context(), author, conferenceID, meta, upload, r.FormValue("comment"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt.recordUpload("submit", upload)
	writeJSON(w, http.StatusCreated, detail)
}

func (rt *Router) resubmit(w http.ResponseWriter, r *http.Request) {
	submissionID, err := pathID(r, "submissionID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	author, err := identityFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	upload, closeFile, err := rt.readUpload(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer closeFile()

	version, err := rt.services.Intake.Resubmit(r.Context(), author, submissionID, upload, r.FormValue("comment"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt.recordUpload("resubmit", upload)
	writeJSON(w, http.StatusCreated, version)
}

// readUpload parses the multipart body and returns the "file" part as an Upload.
func (rt *Router) readUpload(w http.ResponseWriter, r *http.Request) (domain.Upload, func(), error) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes+multipartOverheadBytes)
	if err := r.ParseMultipartForm(multipartOverheadBytes); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return domain.Upload{}, nil, domain.WrapError(domain.ErrFileTooLarge, "read upload", err)
		}
		return domain.Upload{}, nil, domain.WrapError(domain.ErrInvalidInput, "read upload", errors.New("multipart form is required"))
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
		return domain.Upload{}, nil, domain.WrapError(domain.ErrInvalidInput, "read upload", errors.New("multipart field 'file' is required"))
	}
	cleanup := func() {
		_ = file.Close()
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}
	return domain.Upload{
		Filename: fileName(header),
		Size:     header.Size,
		Body:     file,
	}, cleanup, nil
}

func fileName(header *multipart.FileHeader) string {
	name := header.Filename
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSpace(name)
}

func (rt *Router) recordUpload(kind string, upload domain.Upload) {
	if rt.metrics == nil {
		return
	}
	ext := ""
	if i := strings.LastIndexByte(upload.Filename, '.'); i >= 0 {
		ext = strings.ToLower(upload.Filename[i+1:])
	}
	rt.metrics.RecordUpload(serviceName, kind, ext, upload.Size)
}

func (rt *Router) getSubmission(w http.ResponseWriter, r *http.Request) {
	submissionID, err := pathID(r, "submissionID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	who, err := identityFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	detail, err := rt.services.Reader.Get(r.Context(), who, submissionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (rt *Router) listOwnSubmissions(w http.ResponseWriter, r *http.Request) {
	who, err := identityFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	subs, err := rt.services.Reader.ListOwn(r.Context(), who)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if subs == nil {
		subs = []domain.Submission{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"submissions": subs})
}

// listPublished is open to anonymous readers once results are out.
func (rt *Router) listPublished(w http.ResponseWriter, r *http.Request) {
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
	papers, err := rt.services.Reader.ListPublished(r.Context(), who, conferenceID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if papers == nil {
		papers = []domain.PublishedPaper{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"papers": papers})
}

func (rt *Router) downloadSource(w http.ResponseWriter, r *http.Request) {
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
	who, err := identityFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, version, err := rt.services.Reader.OpenSource(r.Context(), who, submissionID, int(number))
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", contentTypeForSource(version.Extension()))
	w.Header().Set("Content-Disposition", attachmentHeader(version.OriginalFilename))
	streamBody(w, r, body)
}

func (rt *Router) downloadFinal(w http.ResponseWriter, r *http.Request) {
	submissionID, err := pathID(r, "submissionID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	who, err := identityFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, sub, err := rt.services.Reader.OpenFinal(r.Context(), who, submissionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", attachmentHeader(lastSegment(sub.FinalFile)))
	streamBody(w, r, body)
}

func streamBody(w http.ResponseWriter, r *http.Request, body io.Reader) {
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		// Headers are gone; the client sees a truncated body.
		logStreamError(r, err)
	}
}

func lastSegment(key string) string {
	if i := strings.LastIndexByte(key, '/'); i >= 0 {
		return key[i+1:]
	}
	return key
}

func logStreamError(r *http.Request, err error) {
	slog.Warn("http_stream_interrupted",
		"request_id", requestIDFromContext(r.Context()),
		"path", r.URL.Path,
		"error", err.Error(),
	)
}
