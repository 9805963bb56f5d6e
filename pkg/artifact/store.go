// Package artifact persists files produced or consumed by agent
// invocations: images and attachments written locally, to S3 or to GCS.
package artifact

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Store saves a named artifact and returns where it was written: a file
// path, an https URL or a gs:// URI depending on the implementation.
type Store interface {
	Save(ctx context.Context, name, mimeType string, data []byte) (string, error)
}

// Loader reads back an artifact by name or key.
type Loader interface {
	Load(ctx context.Context, name string) ([]byte, error)
}

// Item is one artifact handed to SaveAll.
type Item struct {
	Name     string
	MIMEType string
	Data     []byte
}

// maxParallelSaves bounds concurrent uploads in SaveAll.
const maxParallelSaves = 4

// SaveAll saves items concurrently and returns their locations in input
// order. The first failure cancels the remaining saves.
func SaveAll(ctx context.Context, s Store, items []Item) ([]string, error) {
	locs := make([]string, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelSaves)
	for i, it := range items {
		g.Go(func() error {
			loc, err := s.Save(gctx, it.Name, it.MIMEType, it.Data)
			if err != nil {
				return fmt.Errorf("save %q: %w", it.Name, err)
			}
			locs[i] = loc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return locs, nil
}

// ContentType returns mimeType when set, otherwise a type guessed from the
// file extension. Unknown extensions fall back to image/png, matching how
// chat attachments are uploaded.
func ContentType(name, mimeType string) string {
	if mimeType != "" {
		return mimeType
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png", "":
		return "image/png"
	}
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "image/png"
}
