package ingest

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/hyperjump/libris/internal/blob"
	"github.com/hyperjump/libris/internal/cover"
	liberrors "github.com/hyperjump/libris/internal/errors"
)

// uploads tracks blobs written for one request so they can be removed if the
// request does not end with a new book.
type uploads struct {
	blobs blob.Store
	file  *blob.Object
	cover *blob.Object
}

func (c *Coordinator) upload(ctx context.Context, bookSlug string, pdf []byte, coverImg *cover.Image, log *zap.Logger) (*uploads, error) {
	up := &uploads{blobs: c.blobs}

	file, err := c.blobs.Put(ctx, "books/"+bookSlug+".pdf", pdf, "application/pdf")
	if err != nil {
		return nil, liberrors.Upload("failed to upload PDF", err)
	}
	up.file = file

	img, err := c.blobs.Put(ctx, "covers/"+bookSlug+coverImg.Ext, coverImg.Data, coverImg.ContentType)
	if err != nil {
		up.discard(log)
		return nil, liberrors.Upload("failed to upload cover image", err)
	}
	up.cover = img
	return up, nil
}

// discard deletes every uploaded blob, best effort.
func (u *uploads) discard(log *zap.Logger) {
	ctx := context.Background()
	for _, obj := range []*blob.Object{u.file, u.cover} {
		if obj == nil {
			continue
		}
		if err := u.blobs.Delete(ctx, obj.Key); err != nil && !errors.Is(err, blob.ErrNotFound) {
			log.Warn("failed to delete orphaned blob", zap.String("key", obj.Key), zap.Error(err))
		}
	}
}
