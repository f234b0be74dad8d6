package purchase

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"compras-tracker/internal/scanning"
)

// defaultRecentLimit is how many purchases a bare listing returns
const defaultRecentLimit = 5

// maxUploadSize caps uploads at 50MB to handle high-resolution phone photos
const maxUploadSize = int64(50 << 20)

// uploadResponse pairs the registered purchase with the raw extracted
// fields and a ready-made plain-text summary for the chat collaborator
type uploadResponse struct {
	Purchase *Purchase             `json:"purchase"`
	Fields   scanning.TicketFields `json:"fields"`
	Summary  string                `json:"summary"`
	Warning  string                `json:"warning,omitempty"`
}

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// jsonError writes a JSON error body with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// handleUploadTicket runs the pipeline over an uploaded receipt photo
func (s *Server) handleUploadTicket(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		if err.Error() == "http: request body too large" {
			errorMsg = "File is too large. Maximum size is 50MB."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		jsonError(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer f.Close()

	if header.Size > maxUploadSize {
		jsonError(w, "File is too large. Maximum size is 50MB.", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = contentTypeFromExt(header.Filename)
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))

	p, fields, err := s.service.ProcessTicket(header.Filename, data, contentType)
	switch {
	case errors.Is(err, ErrRecognizerUnavailable):
		jsonError(w, "Photo processing is unavailable; recognizer did not initialize", http.StatusServiceUnavailable)
		return
	case errors.Is(err, scanning.ErrImageDecode):
		slog.Error("Error decoding ticket image", "filename", header.Filename, "error", err)
		jsonError(w, "Could not decode the image. Try a clearer photo.", http.StatusBadRequest)
		return
	case errors.Is(err, scanning.ErrRecognition):
		jsonError(w, "Could not process the ticket. Try a clearer photo.", http.StatusUnprocessableEntity)
		return
	}

	resp := uploadResponse{Purchase: p, Fields: fields}
	if err != nil {
		if !errors.Is(err, ErrPersist) {
			slog.Error("Error processing ticket", "filename", header.Filename, "error", err)
			jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		// Registered in memory but not on disk; report it, don't fail
		resp.Warning = "purchase registered but not persisted"
	}
	resp.Summary = Summary(p, fields)

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleRecentPurchases returns the last purchases in insertion order
func (s *Server) handleRecentPurchases(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			corsError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.service.Recent(limit)); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleGetPurchase returns a single purchase
func (s *Server) handleGetPurchase(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		corsError(w, "Invalid purchase ID", http.StatusBadRequest)
		return
	}
	p, err := s.service.GetPurchase(id)
	if err != nil {
		corsError(w, "Purchase not found", http.StatusNotFound)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(p); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleGetTicketImage returns the stored image for a purchase
func (s *Server) handleGetTicketImage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		corsError(w, "Invalid purchase ID", http.StatusBadRequest)
		return
	}
	data, err := s.service.GetTicketImage(id)
	if err != nil {
		corsError(w, "Image not found", http.StatusNotFound)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Write(data)
}

// handleStats returns aggregate ledger statistics
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.service.Stats()
	if stats == nil {
		corsError(w, "No purchases registered yet", http.StatusNotFound)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// contentTypeFromExt guesses a MIME type from the filename extension
func contentTypeFromExt(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}
