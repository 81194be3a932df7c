package httpserver

import (
	"errors"
	"net/http"
	"path/filepath"
)

const multipartMemory = 8 << 20

// handleUpload forwards a multipart "file" to the deal. The file message
// itself arrives later over the realtime channel.
// @Summary      Upload an attachment
// @Tags         sessions
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        dealID path string true "Deal ID"
// @Param        file formData file true "Attachment"
// @Success      202  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Failure      413  {object}  map[string]string
// @Router       /deals/{dealID}/attachments [post]
func handleUpload(maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "file too large"})
				return
			}
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to parse multipart form"})
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing file"})
			return
		}
		defer file.Close()

		name := filepath.Base(header.Filename)
		if name == "." || name == string(filepath.Separator) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid filename"})
			return
		}

		if err := sessionFrom(r).Upload(r.Context(), name, file); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"file_name": name})
	}
}
