package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/alligator-inc/alligator-engine/pkg/apperrors"
	"github.com/alligator-inc/alligator-engine/pkg/models"
	"github.com/alligator-inc/alligator-engine/pkg/repositories"
	"github.com/alligator-inc/alligator-engine/pkg/services"
)

// DatasetHandler serves the dataset and table ingress surface.
type DatasetHandler struct {
	ingest    *services.IngestService
	tables    *services.TableService
	datasets  repositories.DatasetRepository
	tableRepo repositories.TableRepository
	logger    *zap.Logger
}

// NewDatasetHandler creates the ingress handler.
func NewDatasetHandler(
	ingest *services.IngestService,
	tables *services.TableService,
	datasets repositories.DatasetRepository,
	tableRepo repositories.TableRepository,
	logger *zap.Logger,
) *DatasetHandler {
	return &DatasetHandler{
		ingest:    ingest,
		tables:    tables,
		datasets:  datasets,
		tableRepo: tableRepo,
		logger:    logger.Named("handlers"),
	}
}

// RegisterRoutes wires the handler onto the mux. Every route sits behind the
// API token.
func (h *DatasetHandler) RegisterRoutes(mux *http.ServeMux, token string) {
	guard := func(fn http.HandlerFunc) http.Handler {
		return RequireToken(token, fn)
	}

	mux.Handle("POST /dataset/createWithArray", guard(h.CreateWithArray))
	mux.Handle("GET /dataset", guard(h.ListDatasets))
	mux.Handle("POST /dataset", guard(h.CreateDataset))
	mux.Handle("GET /dataset/{datasetName}", guard(h.GetDataset))
	mux.Handle("DELETE /dataset/{datasetName}", guard(h.DeleteDataset))
	mux.Handle("GET /dataset/{datasetName}/table", guard(h.ListTables))
	mux.Handle("GET /dataset/{datasetName}/table/{tableName}", guard(h.GetTable))
	mux.Handle("DELETE /dataset/{datasetName}/table/{tableName}", guard(h.DeleteTable))
}

// CreateWithArray accepts an array of tables for bulk annotation and returns
// 202 once the pages are queued.
func (h *DatasetHandler) CreateWithArray(w http.ResponseWriter, r *http.Request) {
	var uploads []services.TableUpload
	if err := json.NewDecoder(r.Body).Decode(&uploads); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "Invalid Json")
		return
	}

	results, err := h.ingest.IngestTables(r.Context(), uploads)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) {
			_ = ErrorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to ingest tables", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "ingestion failed")
		return
	}

	_ = WriteJSON(w, http.StatusAccepted, map[string]any{
		"status": "Ok",
		"tables": results,
	})
}

// CreateDataset creates an empty dataset entry.
func (h *DatasetHandler) CreateDataset(w http.ResponseWriter, r *http.Request) {
	datasetName := r.URL.Query().Get("datasetName")
	if datasetName == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "datasetName is required")
		return
	}

	dataset := &models.Dataset{DatasetName: datasetName, Page: 1}
	if err := h.datasets.Create(r.Context(), dataset); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			_ = ErrorResponse(w, http.StatusBadRequest, "Dataset "+datasetName+" already exist")
			return
		}
		h.logger.Error("failed to create dataset", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "dataset creation failed")
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Created dataset " + datasetName,
	})
}

// ListDatasets returns dataset summaries for one listing page.
func (h *DatasetHandler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParam(r, 1)
	if !ok {
		_ = ErrorResponse(w, http.StatusBadRequest, "Invalid Number of Page")
		return
	}

	datasets, err := h.datasets.List(r.Context(), page)
	if err != nil {
		h.logger.Error("failed to list datasets", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "listing failed")
		return
	}

	out := make([]map[string]any, 0, len(datasets))
	for _, d := range datasets {
		out = append(out, map[string]any{
			"datasetName": d.DatasetName,
			"Ntables":     d.NTables,
			"status":      d.Status,
			"%":           d.Percent,
			"process":     d.Process,
		})
	}
	_ = WriteJSON(w, http.StatusOK, out)
}

// GetDataset returns one dataset summary.
func (h *DatasetHandler) GetDataset(w http.ResponseWriter, r *http.Request) {
	datasetName := r.PathValue("datasetName")

	dataset, err := h.datasets.GetByName(r.Context(), datasetName)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			_ = ErrorResponse(w, http.StatusNotFound, "Dataset not found")
			return
		}
		h.logger.Error("failed to get dataset", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string]any{
		"datasetName": dataset.DatasetName,
		"Ntables":     dataset.NTables,
		"%":           dataset.Percent,
		"status":      dataset.Process,
	})
}

// DeleteDataset removes a dataset and everything derived from it.
func (h *DatasetHandler) DeleteDataset(w http.ResponseWriter, r *http.Request) {
	datasetName := r.PathValue("datasetName")

	if err := h.tables.DeleteDataset(r.Context(), datasetName); err != nil {
		h.logger.Error("failed to delete dataset", zap.Error(err))
		_ = ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string]any{
		"datasetName": datasetName,
		"deleted":     true,
	})
}

// ListTables returns the table summaries of a dataset.
func (h *DatasetHandler) ListTables(w http.ResponseWriter, r *http.Request) {
	datasetName := r.PathValue("datasetName")
	page, ok := pageParam(r, 1)
	if !ok {
		_ = ErrorResponse(w, http.StatusBadRequest, "Invalid Number of Page")
		return
	}

	tables, err := h.tableRepo.ListByDataset(r.Context(), datasetName, page)
	if err != nil {
		h.logger.Error("failed to list tables", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "listing failed")
		return
	}

	out := make([]map[string]any, 0, len(tables))
	for _, t := range tables {
		out = append(out, map[string]any{
			"datasetName": t.DatasetName,
			"tableName":   t.TableName,
			"nrows":       t.NRows,
			"status":      t.Status,
		})
	}
	_ = WriteJSON(w, http.StatusOK, out)
}

// GetTable returns a table with its semantic annotations; without a page
// parameter all pages are merged.
func (h *DatasetHandler) GetTable(w http.ResponseWriter, r *http.Request) {
	datasetName := r.PathValue("datasetName")
	tableName := r.PathValue("tableName")

	var page *int
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			_ = ErrorResponse(w, http.StatusBadRequest, "Invalid Number of Page")
			return
		}
		page = &n
	}

	table, err := h.tables.GetAnnotated(r.Context(), datasetName, tableName, page)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			_ = ErrorResponse(w, http.StatusNotFound, "Table not found")
			return
		}
		h.logger.Error("failed to get table", zap.Error(err))
		_ = ErrorResponse(w, http.StatusNotFound, err.Error())
		return
	}

	_ = WriteJSON(w, http.StatusOK, table)
}

// DeleteTable removes one table and its artifacts.
func (h *DatasetHandler) DeleteTable(w http.ResponseWriter, r *http.Request) {
	datasetName := r.PathValue("datasetName")
	tableName := r.PathValue("tableName")

	if err := h.tables.DeleteTable(r.Context(), datasetName, tableName); err != nil {
		h.logger.Error("failed to delete table", zap.Error(err))
		_ = ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string]any{
		"datasetName": datasetName,
		"tableName":   tableName,
		"deleted":     true,
	})
}

func pageParam(r *http.Request, fallback int) (int, bool) {
	raw := r.URL.Query().Get("page")
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
