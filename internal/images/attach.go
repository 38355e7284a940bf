package images

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vrsandeep/catalog-importer/internal/blob"
	"github.com/vrsandeep/catalog-importer/internal/models"
	"github.com/vrsandeep/catalog-importer/internal/util"
)

// MediaStore records attached media.
type MediaStore interface {
	AddMedia(ctx context.Context, m *models.Media) (int64, error)
}

// Attacher copies resolved images into media storage and records them
// against a product. The source file is never modified.
type Attacher struct {
	Blob  blob.Storage
	Store MediaStore
	Log   *logrus.Entry
}

// Attach stores the file under media/<product>/<uuid>-<name>. A thumbnail
// failure is logged and does not prevent the attachment.
func (a *Attacher) Attach(ctx context.Context, productID int64, img *Resolved) (*models.Media, error) {
	data, err := os.ReadFile(img.Path)
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", img.Name, err)
	}

	key := blob.Join("media", fmt.Sprint(productID), uuid.NewString()+"-"+util.SanitizeFileName(img.Name))
	if err := a.Blob.Put(ctx, key, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("store image %s: %w", img.Name, err)
	}

	media := &models.Media{ProductID: productID, FileName: img.Name, StorageKey: key}
	if thumb, err := Thumbnail(data); err != nil {
		if a.Log != nil {
			a.Log.WithError(err).WithField("file", img.Name).Debug("No thumbnail for image")
		}
	} else {
		media.Thumbnail = thumb
	}

	if _, err := a.Store.AddMedia(ctx, media); err != nil {
		if derr := a.Blob.Delete(ctx, key); derr != nil && a.Log != nil {
			a.Log.WithError(derr).WithField("key", key).Warn("Could not delete orphaned media blob")
		}
		return nil, err
	}
	return media, nil
}
