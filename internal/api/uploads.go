package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

const (
	maxMultipartMemory = 32 << 20

	// maxAudioSize matches the transcription vendor's upload limit.
	maxAudioSize = 25 << 20

	// formOverhead covers boundaries and the small text fields sent next to a file.
	formOverhead = 1 << 20
)

var errFileTooLarge = errors.New("uploaded file exceeds the size limit")

// formFile reads one uploaded file of at most limit bytes. A missing field
// yields ok == false. Oversized uploads are rejected before the file is read.
func formFile(w http.ResponseWriter, r *http.Request, field string, limit int64) (data []byte, header *multipart.FileHeader, ok bool, err error) {
	if r.ContentLength > limit+formOverhead {
		return nil, nil, false, errFileTooLarge
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+formOverhead)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, false, errFileTooLarge
		}
		return nil, nil, false, fmt.Errorf("invalid multipart form: %w", err)
	}
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, err
	}
	defer file.Close()
	if header.Size > limit {
		return nil, nil, false, errFileTooLarge
	}
	data, err = io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, nil, false, err
	}
	return data, header, true, nil
}

func audioUploadFailed(w http.ResponseWriter, err error) {
	if errors.Is(err, errFileTooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("Audio file too large. Maximum size is %dMB.", maxAudioSize>>20), "", nil)
		return
	}
	writeError(w, http.StatusBadRequest, "Invalid audio upload", err.Error(), nil)
}
