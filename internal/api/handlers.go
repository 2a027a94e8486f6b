package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sheetmind/excel-analyst/internal/agent"
	"github.com/sheetmind/excel-analyst/internal/auth"
	"github.com/sheetmind/excel-analyst/internal/index"
	"github.com/sheetmind/excel-analyst/internal/ingest"
	"github.com/sheetmind/excel-analyst/internal/metadata"
	"github.com/sheetmind/excel-analyst/internal/store"
)

type APIHandler struct {
	tabular *store.TabularStore
	index   *index.Manager
	runner  *agent.Runner
	version string
}

func NewAPIHandler(ts *store.TabularStore, im *index.Manager, runner *agent.Runner, version string) *APIHandler {
	return &APIHandler{tabular: ts, index: im, runner: runner, version: version}
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if _, err := auth.ValidateJWT(tokenString); err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": h.version,
	})
}

type LoginRequest struct {
	ClientID string `json:"client_id"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.ClientID == "" {
		http.Error(w, "client_id is required", http.StatusBadRequest)
		return
	}

	token, err := auth.GenerateJWT(req.ClientID)
	if err != nil {
		log.Printf("Error generating JWT for client %s: %v", req.ClientID, err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

type UploadResponse struct {
	DatasetID string              `json:"dataset_id"`
	Filename  string              `json:"filename"`
	Sheets    []string            `json:"sheets"`
	Columns   map[string][]string `json:"columns"`
	RowCounts map[string]int      `json:"rows_count"`
	Message   string              `json:"message"`
}

// UploadDatasetHandler ingests a spreadsheet: parse, store, extract
// metadata, build the semantic index. If indexing fails the stored
// dataset is rolled back so the two stores stay in step.
func (h *APIHandler) UploadDatasetHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, ingest.MaxFileSizeBytes)
	if err := r.ParseMultipartForm(ingest.MaxFileSizeBytes); err != nil {
		http.Error(w, "Invalid upload: "+err.Error(), http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Missing 'file' form field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	log.Printf("Uploading file: %s", header.Filename)

	sheets, err := ingest.ParseUpload(header.Filename, file)
	if err != nil {
		log.Printf("Failed to parse upload %s: %v", header.Filename, err)
		http.Error(w, "Failed to process file: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}

	datasetID := uuid.NewString()
	meta := store.DatasetMeta{
		Filename:   header.Filename,
		UploadedAt: time.Now().UTC(),
		RowCounts:  make(map[string]int, len(sheets)),
		Columns:    make(map[string][]string, len(sheets)),
	}
	for _, sh := range sheets {
		meta.Sheets = append(meta.Sheets, sh.Name)
		meta.RowCounts[sh.Name] = len(sh.Rows)
		meta.Columns[sh.Name] = sh.ColumnNames()
	}

	h.tabular.Put(datasetID, sheets, meta)

	fragments := metadata.Extract(sheets, datasetID)
	if err := h.index.CreateStore(r.Context(), datasetID, fragments); err != nil {
		log.Printf("Failed to index dataset %s, rolling back: %v", datasetID, err)
		if rerr := h.tabular.Remove(datasetID); rerr != nil {
			log.Printf("Rollback of dataset %s failed: %v", datasetID, rerr)
		}
		http.Error(w, "Failed to index dataset: "+err.Error(), http.StatusBadGateway)
		return
	}

	log.Printf("Dataset %s processed successfully with %d metadata fragments", datasetID, len(fragments))
	writeJSON(w, http.StatusCreated, UploadResponse{
		DatasetID: datasetID,
		Filename:  header.Filename,
		Sheets:    meta.Sheets,
		Columns:   meta.Columns,
		RowCounts: meta.RowCounts,
		Message:   "File uploaded and processed successfully",
	})
}

type DatasetListResponse struct {
	Datasets []store.DatasetMeta `json:"datasets"`
	Total    int                 `json:"total"`
}

func (h *APIHandler) ListDatasetsHandler(w http.ResponseWriter, r *http.Request) {
	datasets := h.tabular.List()
	writeJSON(w, http.StatusOK, DatasetListResponse{Datasets: datasets, Total: len(datasets)})
}

func (h *APIHandler) GetDatasetHandler(w http.ResponseWriter, r *http.Request) {
	datasetID := chi.URLParam(r, "datasetID")
	meta, err := h.tabular.Meta(datasetID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, fmt.Sprintf("Dataset %s not found", datasetID), http.StatusNotFound)
			return
		}
		log.Printf("Error getting dataset %s: %v", datasetID, err)
		http.Error(w, "Failed to get dataset info", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

type DeleteResponse struct {
	DatasetID string `json:"dataset_id"`
	Message   string `json:"message"`
}

// DeleteDatasetHandler removes the dataset from both the tabular store
// and the semantic index. Both deletes are attempted; an individual
// failure is logged but does not fail the overall delete.
func (h *APIHandler) DeleteDatasetHandler(w http.ResponseWriter, r *http.Request) {
	datasetID := chi.URLParam(r, "datasetID")
	if !h.tabular.Exists(datasetID) && !h.index.Exists(datasetID) {
		http.Error(w, fmt.Sprintf("Dataset %s not found", datasetID), http.StatusNotFound)
		return
	}

	if err := h.tabular.Remove(datasetID); err != nil {
		log.Printf("Failed to remove dataset %s from tabular store: %v", datasetID, err)
	}
	if err := h.index.DeleteStore(datasetID); err != nil {
		log.Printf("Failed to delete index store for dataset %s: %v", datasetID, err)
	}

	writeJSON(w, http.StatusOK, DeleteResponse{
		DatasetID: datasetID,
		Message:   "Dataset deleted",
	})
}

type QueryRequest struct {
	DatasetID string `json:"dataset_id"`
	SheetName string `json:"sheet_name,omitempty"`
	Query     string `json:"query"`
}

func (h *APIHandler) QueryHandler(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.DatasetID == "" || strings.TrimSpace(req.Query) == "" {
		http.Error(w, "dataset_id and query are required", http.StatusBadRequest)
		return
	}

	result, err := h.runner.Run(r.Context(), req.DatasetID, req.SheetName, req.Query)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		log.Printf("Error processing query for dataset %s: %v", req.DatasetID, err)
		http.Error(w, "Failed to process query", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}
