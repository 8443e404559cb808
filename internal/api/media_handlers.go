package api

import (
	"errors"
	"net/http"

	"storyforge.app/story-forge/internal/core"
	"storyforge.app/story-forge/internal/objectstore"
)

func (h *APIHandler) UploadImageHandler(w http.ResponseWriter, r *http.Request) {
	data, header, ok, err := formFile(w, r, "file", core.MaxImageSize)
	if errors.Is(err, errFileTooLarge) {
		writeError(w, http.StatusBadRequest, core.ImageTooLargeMessage, "", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid upload", err.Error(), nil)
		return
	}
	if !ok {
		writeError(w, http.StatusBadRequest, "No file provided", "", nil)
		return
	}

	res, err := h.media.Upload(r.Context(), core.UploadInput{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
		PostID:      r.FormValue("postId"),
		Folder:      r.FormValue("folder"),
	})
	if err != nil {
		h.fail(w, r, err, "Failed to upload image", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"imageUrl": res.ImageURL,
		"filePath": res.FilePath,
		"fileName": res.FileName,
		"fileSize": res.FileSize,
		"fileType": res.FileType,
		"postId":   res.PostID,
	})
}

func (h *APIHandler) ListImagesHandler(w http.ResponseWriter, r *http.Request) {
	files, err := h.media.List(r.Context(), r.URL.Query().Get("folder"))
	if err != nil {
		h.fail(w, r, err, "Failed to list images", map[string]any{"files": []objectstore.Object{}, "count": 0})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "files": files, "count": len(files)})
}

func (h *APIHandler) DeleteImageHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if err := h.media.Delete(r.Context(), path); err != nil {
		h.fail(w, r, err, "Failed to delete image", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"message":     "File deleted successfully",
		"deletedPath": path,
	})
}
