package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/0xmhha/filewatch/pkg/detector"
	"github.com/0xmhha/filewatch/pkg/registry"
	"github.com/0xmhha/filewatch/pkg/resolver"
)

// target is a resolved {proposal, file type} request.
type target struct {
	proposal string
	fileType string
	path     string
}

func (s *Server) resolve(r *http.Request) (target, *apiError) {
	t := target{
		proposal: r.PathValue("proposal"),
		fileType: r.PathValue("fileType"),
	}

	path, err := s.deps.Resolver.Resolve(t.proposal, t.fileType)
	if err != nil {
		switch {
		case errors.Is(err, resolver.ErrUnknownFileType):
			return t, &apiError{Status: http.StatusNotFound, Message: "Unknown file type", Err: err}
		default:
			return t, &apiError{Status: http.StatusBadRequest, Message: "Malformed request", Err: err}
		}
	}
	t.path = path
	return t, nil
}

// clientID identifies a poll client by its remote host. Clients behind the
// same NAT or proxy share an id.
func clientID(r *http.Request) string {
	return hostOnly(r.RemoteAddr)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"response": "OK"})
}

func (s *Server) handleProposals(w http.ResponseWriter, r *http.Request) *apiError {
	proposals, err := s.deps.Resolver.Proposals()
	if err != nil {
		return &apiError{Status: http.StatusInternalServerError, Message: "Failed to list proposals", Err: err}
	}
	writeJSON(w, http.StatusOK, proposalsResponse{Proposals: proposals})
	return nil
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) *apiError {
	t, apiErr := s.resolve(r)
	if apiErr != nil {
		return apiErr
	}

	snap, err := s.deps.Detector.DetectContent(r.Context(), t.path)
	if err != nil {
		return detectError(err)
	}

	writeJSON(w, http.StatusOK, currentResponse{
		Content:      string(snap.Content),
		LastModified: float64(snap.ModTime.UnixNano()) / 1e9,
		Checksum:     snap.Fingerprint,
	})
	return nil
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) *apiError {
	t, apiErr := s.resolve(r)
	if apiErr != nil {
		return apiErr
	}

	if err := s.deps.Registry.Register(r.Context(), t.path, clientID(r)); err != nil {
		return detectError(err)
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Message:  "Watcher started",
		Proposal: t.proposal,
		FileType: t.fileType,
	})
	return nil
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) *apiError {
	t, apiErr := s.resolve(r)
	if apiErr != nil {
		return apiErr
	}

	if _, err := s.deps.Registry.Unregister(r.Context(), t.path); err != nil {
		// The entry is gone even when its native watch failed to stop.
		s.logger.Warn("watcher stop reported an error",
			"path", t.path,
			"error", err)
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Message:  "Watcher stopped",
		Proposal: t.proposal,
		FileType: t.fileType,
	})
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) *apiError {
	t, apiErr := s.resolve(r)
	if apiErr != nil {
		return apiErr
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Status:   s.deps.Registry.Status(r.Context(), t.path),
		Proposal: t.proposal,
		FileType: t.fileType,
	})
	return nil
}

func (s *Server) handleChanged(w http.ResponseWriter, r *http.Request) *apiError {
	t, apiErr := s.resolve(r)
	if apiErr != nil {
		return apiErr
	}

	known := detector.Fingerprint(r.URL.Query().Get("checksum"))
	cmp, err := s.deps.Registry.Compare(r.Context(), t.path, known, clientID(r))
	if err != nil && !errors.Is(err, detector.ErrNotFound) {
		return detectError(err)
	}

	var resp changedResponse
	switch cmp {
	case registry.Changed:
		changed := true
		resp.Changed = &changed
	case registry.Unchanged:
		changed := false
		resp.Changed = &changed
	}

	writeJSON(w, http.StatusOK, resp)
	return nil
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) *apiError {
	t, apiErr := s.resolve(r)
	if apiErr != nil {
		return apiErr
	}
	if s.deps.Journal == nil {
		return &apiError{Status: http.StatusNotFound, Message: "History disabled"}
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return &apiError{Status: http.StatusBadRequest, Message: "Invalid limit", Err: err}
		}
		limit = n
	}

	records, err := s.deps.Journal.List(t.path, limit)
	if err != nil {
		return &apiError{Status: http.StatusInternalServerError, Message: "Failed to read history", Err: err}
	}

	writeJSON(w, http.StatusOK, historyResponse{Path: t.path, Records: records})
	return nil
}

func detectError(err error) *apiError {
	switch {
	case errors.Is(err, detector.ErrNotFound):
		return &apiError{Status: http.StatusNotFound, Message: "File not found", Err: err}
	case errors.Is(err, detector.ErrNotRegular):
		return &apiError{Status: http.StatusBadRequest, Message: "Not a regular file", Err: err}
	case errors.Is(err, detector.ErrFileTooLarge):
		return &apiError{Status: http.StatusRequestEntityTooLarge, Message: "File too large", Err: err}
	case errors.Is(err, registry.ErrClosed):
		return &apiError{Status: http.StatusServiceUnavailable, Message: "Shutting down", Err: err}
	default:
		return &apiError{Status: http.StatusInternalServerError, Message: "Internal error", Err: err}
	}
}
