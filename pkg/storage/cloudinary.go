package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"

	"github.com/noah-isme/civic-report-api/pkg/config"
)

// CloudinaryUploader pushes media to Cloudinary and returns the secure delivery URL.
type CloudinaryUploader struct {
	cld        *cloudinary.Cloudinary
	rootFolder string
}

// NewCloudinaryUploader validates credentials and builds the client.
func NewCloudinaryUploader(cfg config.CloudinaryConfig) (*CloudinaryUploader, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary configuration is missing")
	}
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("initialise cloudinary: %w", err)
	}
	return &CloudinaryUploader{cld: cld, rootFolder: strings.Trim(cfg.Folder, "/")}, nil
}

// Upload sends the file to Cloudinary under rootFolder/folder.
func (u *CloudinaryUploader) Upload(ctx context.Context, file MediaFile, folder string) (string, error) {
	if file.Content == nil {
		return "", fmt.Errorf("media %q has no content", file.Filename)
	}
	result, err := u.cld.Upload.Upload(ctx, file.Content, uploader.UploadParams{
		PublicID:     uuid.NewString(),
		Folder:       path.Join(u.rootFolder, folder),
		ResourceType: resourceType(file.ContentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload to cloudinary: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("upload to cloudinary: %s", result.Error.Message)
	}
	return result.SecureURL, nil
}

func resourceType(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return "image"
	case strings.HasPrefix(contentType, "video/"):
		return "video"
	default:
		return "auto"
	}
}
