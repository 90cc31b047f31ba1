package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/clipsim/internal/models"
	"github.com/hyperjump/clipsim/internal/render"
	"github.com/hyperjump/clipsim/internal/storage"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodyBytes     = 1 << 20
)

func (s *Server) handleSimilarity(w http.ResponseWriter, r *http.Request) {
	var req models.SimilarityRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(s.config.MaxItems); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("similarity request", zap.Int("items", len(req.Items)), zap.Bool("save", req.Save))

	report, err := s.service.Compute(r.Context(), req.Items, req.Title)
	if err != nil {
		s.logger.Error("similarity failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if req.Save {
		if s.service.Storage() == nil {
			s.logger.Warn("save requested but report storage is not configured")
		} else {
			if err := s.service.Save(r.Context(), report); err != nil {
				s.logger.Error("saving report failed", zap.Error(err))
				s.respondError(w, http.StatusInternalServerError, err.Error())
				return
			}
			s.respondJSON(w, http.StatusCreated, report)
			return
		}
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	store := s.service.Storage()
	if store == nil {
		s.respondError(w, http.StatusNotImplemented, "report storage not enabled")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		s.respondError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil || limit <= 0 {
		s.respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	limit = min(limit, maxListLimit)

	reports, err := store.ListReports(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("list reports failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := store.CountReports(r.Context())
	if err != nil {
		s.logger.Error("count reports failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if reports == nil {
		reports = []*models.Report{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"reports": reports,
		"total":   total,
		"offset":  offset,
		"limit":   limit,
	})
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, ok := s.lookupReport(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	store := s.service.Storage()
	if store == nil {
		s.respondError(w, http.StatusNotImplemented, "report storage not enabled")
		return
	}
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete report request", zap.String("id", id))
	if err := store.DeleteReport(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrReportNotFound) {
			s.respondError(w, http.StatusNotFound, "report not found")
			return
		}
		s.logger.Error("deletion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleHeatmapPNG(w http.ResponseWriter, r *http.Request) {
	s.respondRendered(w, r, render.FormatPNG, "image/png")
}

func (s *Server) handleHeatmapXLSX(w http.ResponseWriter, r *http.Request) {
	s.respondRendered(w, r, render.FormatXLSX, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
}

func (s *Server) respondRendered(w http.ResponseWriter, r *http.Request, f render.Format, contentType string) {
	report, ok := s.lookupReport(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	err := render.Write(&buf, report, f, render.Options{
		Title:     s.render.Title,
		Precision: s.render.Precision,
		CellSize:  s.render.CellSize,
	})
	if err != nil {
		s.logger.Error("render failed", zap.String("id", report.ID), zap.String("format", string(f)), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) lookupReport(w http.ResponseWriter, r *http.Request) (*models.Report, bool) {
	store := s.service.Storage()
	if store == nil {
		s.respondError(w, http.StatusNotImplemented, "report storage not enabled")
		return nil, false
	}
	id := chi.URLParam(r, "id")
	report, err := store.GetReport(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrReportNotFound) {
			s.respondError(w, http.StatusNotFound, "report not found")
			return nil, false
		}
		s.logger.Error("get report failed", zap.String("id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return report, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"model":      s.service.Model(),
		"dimensions": s.service.Dimensions(),
		"max_items":  s.config.MaxItems,
	}
	if store := s.service.Storage(); store != nil {
		n, err := store.CountReports(r.Context())
		if err != nil {
			s.logger.Error("status: count reports failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp["reports"] = n
		if sized, ok := store.(interface{ SizeBytes() int64 }); ok {
			resp["disk_usage_bytes"] = sized.SizeBytes()
		}
	}
	if s.fetch != nil {
		resp["image_cache"] = s.fetch.Stats()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to encode response"}` + "\n"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
