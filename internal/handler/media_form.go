package handler

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/civic-report-api/internal/service"
	appErrors "github.com/noah-isme/civic-report-api/pkg/errors"
	"github.com/noah-isme/civic-report-api/pkg/storage"
)

const (
	photosField = "photos"
	videosField = "videos"
	sniffLength = 512
)

// mediaForm holds the opened file parts of a report submission until the service is done with them.
type mediaForm struct {
	media service.ReportMedia
	open  []multipart.File
}

func (f *mediaForm) Close() {
	for _, file := range f.open {
		_ = file.Close()
	}
	f.open = nil
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// readMediaForm opens the photos and videos parts in submission order. Non-multipart requests carry no media.
func readMediaForm(c *gin.Context) (*mediaForm, error) {
	form := &mediaForm{}
	if !isMultipart(c) {
		return form, nil
	}
	multipartForm, err := c.MultipartForm()
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid multipart payload")
	}

	fields := []struct {
		name string
		dest *[]storage.MediaFile
	}{
		{name: photosField, dest: &form.media.Photos},
		{name: videosField, dest: &form.media.Videos},
	}
	for _, field := range fields {
		for _, header := range multipartForm.File[field.name] {
			file, src, err := openMediaPart(header)
			if err != nil {
				form.Close()
				return nil, err
			}
			form.open = append(form.open, src)
			*field.dest = append(*field.dest, file)
		}
	}
	return form, nil
}

func openMediaPart(header *multipart.FileHeader) (storage.MediaFile, multipart.File, error) {
	src, err := header.Open()
	if err != nil {
		return storage.MediaFile{}, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open "+header.Filename)
	}
	contentType := normalizeContentType(header.Header.Get("Content-Type"))
	if contentType == "" || contentType == "application/octet-stream" {
		sniffed, err := sniffContentType(src)
		if err != nil {
			_ = src.Close()
			return storage.MediaFile{}, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read "+header.Filename)
		}
		contentType = sniffed
	}
	return storage.MediaFile{
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Content:     src,
	}, src, nil
}

// sniffContentType inspects the leading bytes of the part and rewinds it.
func sniffContentType(src multipart.File) (string, error) {
	buf := make([]byte, sniffLength)
	n, err := io.ReadFull(src, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", err
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return normalizeContentType(http.DetectContentType(buf[:n])), nil
}

func normalizeContentType(raw string) string {
	if raw == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return mediaType
}

// submittedFields lists the body keys of a JSON or form request, sorted.
func submittedFields(c *gin.Context, raw []byte) ([]string, error) {
	var keys []string
	if isMultipart(c) {
		form, err := c.MultipartForm()
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid multipart payload")
		}
		for key := range form.Value {
			keys = append(keys, key)
		}
	} else if len(raw) > 0 {
		var body map[string]json.RawMessage
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid update payload")
		}
		for key := range body {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
