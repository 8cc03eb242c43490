package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/civic-report-api/pkg/config"
)

func TestNewCloudinaryUploaderRequiresCredentials(t *testing.T) {
	_, err := NewCloudinaryUploader(config.CloudinaryConfig{CloudName: "demo"})
	assert.Error(t, err)

	uploader, err := NewCloudinaryUploader(config.CloudinaryConfig{CloudName: "demo", APIKey: "key", APISecret: "secret", Folder: "/reports/"})
	require.NoError(t, err)
	assert.Equal(t, "reports", uploader.rootFolder)
}

func TestResourceType(t *testing.T) {
	assert.Equal(t, "image", resourceType("image/png"))
	assert.Equal(t, "video", resourceType("video/mp4"))
	assert.Equal(t, "auto", resourceType(""))
}
