package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MediaPathPrefix is the URL prefix local uploads are served from.
const MediaPathPrefix = "/media"

// MediaFile is one submitted photo or video ready for upload.
type MediaFile struct {
	Filename    string
	ContentType string
	Size        int64
	Content     io.Reader
}

// mediaExtensions maps every accepted media type to the extension files are stored with.
var mediaExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/jpg":       ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"video/mp4":       ".mp4",
	"video/quicktime": ".mov",
	"video/x-msvideo": ".avi",
	"video/webm":      ".webm",
}

// Extension returns the stored extension for the file's content type, or "" when the type is not a
// known media type. The submitted filename never influences it.
func (f MediaFile) Extension() string {
	mediaType, _, err := mime.ParseMediaType(f.ContentType)
	if err != nil {
		return ""
	}
	return mediaExtensions[strings.ToLower(mediaType)]
}

// LocalUploader stores media on disk and returns URLs served by the media static route.
type LocalUploader struct {
	store   *LocalStorage
	baseURL string
}

// NewLocalUploader builds an uploader writing into store and addressing files under baseURL.
func NewLocalUploader(store *LocalStorage, baseURL string) *LocalUploader {
	return &LocalUploader{store: store, baseURL: strings.TrimRight(baseURL, "/")}
}

// Upload writes the file under folder with a random name and returns its public URL.
func (u *LocalUploader) Upload(ctx context.Context, file MediaFile, folder string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if file.Content == nil {
		return "", fmt.Errorf("media %q has no content", file.Filename)
	}
	name := path.Join(folder, uuid.NewString()+file.Extension())
	rel, err := u.store.SaveStream(name, file.Content)
	if err != nil {
		return "", err
	}
	return u.baseURL + MediaPathPrefix + "/" + filepath.ToSlash(rel), nil
}
