package mediasrv

import (
	"context"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/terravest/estatecore/internal/service"
)

type mediaService struct {
	client *cloudinary.Cloudinary
}

// Upload implements service.MediaService. Contract and change-request
// documents land under per-aggregate folders.
func (m *mediaService) Upload(ctx context.Context, file *multipart.FileHeader, folder string) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer src.Close()

	uploadResult, err := m.client.Upload.Upload(ctx, src, uploader.UploadParams{
		Folder:    folder,
		PublicID:  generatePublicID(file.Filename),
		Overwrite: func(b bool) *bool { return &b }(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to Cloudinary: %w", err)
	}

	return uploadResult.SecureURL, nil
}

func NewMediaService(client *cloudinary.Cloudinary) service.MediaService {
	return &mediaService{
		client: client,
	}
}

// generatePublicID derives a unique public ID from the original filename.
func generatePublicID(filename string) string {
	base := filename[:len(filename)-len(filepath.Ext(filename))]
	return fmt.Sprintf("%s_%d", base, time.Now().Unix())
}
