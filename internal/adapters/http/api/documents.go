package api

import (
	"errors"
	"net/http"

	"github.com/okian/queryai/internal/domain/types"
	"github.com/okian/queryai/pkg/logger"
)

type uploadResponse struct {
	Jobs []types.JobRef `json:"jobs"`
}

// handleUploadDocuments handles POST /documents. Each file is extracted
// synchronously and queued for indexing; duplicates are acknowledged without
// a job. The first failing file ends the request and earlier files stay queued.
func (s *Server) handleUploadDocuments(w http.ResponseWriter, r *http.Request) {
	const op = "api.upload_documents"
	files, err := s.parseMultipart(w, r, "files")
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck // temp files only

	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("missing files")))
		return
	}

	jobs := make([]types.JobRef, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			s.fail(w, r, WrapKind(op, ErrBadRequest, err))
			return
		}
		ref, err := s.deps.IngestFile(r.Context(), fh.Filename, f)
		_ = f.Close()
		if err != nil {
			s.logger.Warn(r.Context(), "document rejected",
				logger.String("filename", fh.Filename),
				logger.Int("queued", len(jobs)),
				logger.Error(err),
			)
			s.fail(w, r, Wrap(op, err))
			return
		}
		jobs = append(jobs, ref)
	}
	writeJSON(w, http.StatusAccepted, uploadResponse{Jobs: jobs})
}

// handleGetJob handles GET /documents/jobs/{id}.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_job"
	job, err := s.deps.Job(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, job)
}
