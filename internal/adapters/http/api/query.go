package api

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	service "github.com/okian/queryai/internal/app"
)

type questionRequest struct {
	Question string `json:"question"`
}

type queryRequest struct {
	Query string `json:"query"`
}

// handleQuery handles POST /query. The question comes from the JSON body or
// the question query parameter.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	const op = "api.query"
	req := questionRequest{Question: r.URL.Query().Get("question")}
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("missing question")))
		return
	}

	answer, err := s.deps.Query(r.Context(), req.Question)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// handleQueryWithDecision handles POST /query-with-decision.
func (s *Server) handleQueryWithDecision(w http.ResponseWriter, r *http.Request) {
	const op = "api.query_with_decision"
	req := queryRequest{Query: r.URL.Query().Get("query")}
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("missing query")))
		return
	}

	answer, err := s.deps.QueryWithDecision(r.Context(), req.Query)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// handleProcessQuery handles POST /process_query/ with a multipart query
// field and one or more documents.
func (s *Server) handleProcessQuery(w http.ResponseWriter, r *http.Request) {
	const op = "api.process_query"
	files, err := s.parseMultipart(w, r, "documents")
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck // temp files only

	query := r.FormValue("query")
	if strings.TrimSpace(query) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("missing query")))
		return
	}
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("missing documents")))
		return
	}

	uploads := make([]service.Upload, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			s.fail(w, r, WrapKind(op, ErrBadRequest, err))
			return
		}
		defer f.Close() //nolint:errcheck // read-only
		uploads = append(uploads, service.Upload{Name: fh.Filename, Body: f})
	}

	res, err := s.deps.ProcessQuery(r.Context(), query, uploads)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// parseMultipart bounds and parses a multipart body and returns the files
// sent under field.
func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request, field string) ([]*multipart.FileHeader, error) {
	if r.ContentLength > s.maxUpload {
		return nil, NewKind("api.multipart", ErrTooLarge)
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return nil, WrapKind("api.multipart", ErrTooLarge, err)
		}
		return nil, WrapKind("api.multipart", ErrBadRequest, err)
	}
	return r.MultipartForm.File[field], nil
}
