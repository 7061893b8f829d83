package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/conference-proceedings/internal/config"
	"github.com/kirillkom/conference-proceedings/internal/core/domain"
)

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.WrapError(domain.ErrUnsupportedFormat, "submit", errors.New(".pdf")), http.StatusUnsupportedMediaType},
		{domain.WrapError(domain.ErrFileTooLarge, "submit", errors.New("11 MB")), http.StatusRequestEntityTooLarge},
		{&http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge},
		{domain.WrapError(domain.ErrDuplicateSubmission, "submit", errors.New("author 5")), http.StatusConflict},
		{domain.WrapError(domain.ErrDeadlinePassed, "submit", errors.New("closed")), http.StatusForbidden},
		{domain.WrapError(domain.ErrNoVersions, "transition", errors.New("none")), http.StatusConflict},
		{domain.WrapError(domain.ErrInvalidInput, "list", errors.New("bad")), http.StatusBadRequest},
		{domain.WrapError(domain.ErrUnauthorized, "get", errors.New("anon")), http.StatusUnauthorized},
		{domain.WrapError(domain.ErrForbidden, "get", errors.New("foreign")), http.StatusForbidden},
		{fmt.Errorf("fetch: %w", domain.WrapError(domain.ErrNotFound, "get", errors.New("id=3"))), http.StatusNotFound},
		{&domain.MissingStoredFileError{SubmissionID: 3, Key: "k"}, http.StatusNotFound},
		{domain.WrapError(domain.ErrConflict, "compile", errors.New("exists")), http.StatusConflict},
		{&domain.ConversionFailedError{Source: "1.docx", ExitCode: 1}, http.StatusBadGateway},
		{domain.WrapError(domain.ErrTemporary, "publish", errors.New("nats down")), http.StatusServiceUnavailable},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := mapErrorToHTTPStatus(tc.err); got != tc.want {
			t.Fatalf("mapErrorToHTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestSubmitMapsUnsupportedFormatTo415(t *testing.T) {
	f := newRouterFixture(config.Config{})
	f.intake.err = domain.WrapError(domain.ErrUnsupportedFormat, "submit", errors.New("extension pdf"))
	body, contentType := multipartUpload(t, "paper.pdf", []byte("%PDF"), map[string]string{"title": "T"})

	req := asAuthor(httptest.NewRequest(http.MethodPost, "/v1/conferences/7/submissions", body), "5")
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, req)

	if res.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", res.Code)
	}
}

func TestGetSubmissionReturns404ForNotFound(t *testing.T) {
	f := newRouterFixture(config.Config{})
	f.reader.err = domain.WrapError(domain.ErrNotFound, "get submission", errors.New("id=404"))

	req := asAuthor(httptest.NewRequest(http.MethodGet, "/v1/submissions/404", nil), "5")
	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	f := newRouterFixture(config.Config{})
	f.reader.err = fmt.Errorf("fetch submission: %w", errBoom)

	req := asAuthor(httptest.NewRequest(http.MethodGet, "/v1/submissions/1", nil), "5")
	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, req)

	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["error"] != "internal error" {
		t.Fatalf("expected generic message, got %q", resp["error"])
	}
}

func TestRetryConversionSurfacesDiagnostics(t *testing.T) {
	f := newRouterFixture(config.Config{})
	f.lifecycle.err = &domain.ConversionFailedError{Source: "2.docx", ExitCode: 1, Diagnostics: "source file could not be loaded"}

	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, asOrganizer(httptest.NewRequest(http.MethodPost, "/v1/submissions/11/conversion", nil)))

	if res.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", res.Code)
	}
	var resp map[string]string
	_ = json.NewDecoder(res.Body).Decode(&resp)
	if resp["diagnostics"] != "source file could not be loaded" {
		t.Fatalf("expected diagnostics in body, got %+v", resp)
	}
}

func TestTransitionRejectsMalformedJSON(t *testing.T) {
	f := newRouterFixture(config.Config{})
	req := asOrganizer(httptest.NewRequest(http.MethodPost, "/v1/submissions/11/status", bytes.NewBufferString(`{"status":`)))
	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}
