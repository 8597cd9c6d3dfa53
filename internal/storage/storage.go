package storage

import (
	"io"
)

// ImageInfo describes an item image stored on behalf of the catalog.
type ImageInfo struct {
	Name        string
	ContentType string
	Size        int64
}

type Storage interface {
	SaveImage(name string, r io.Reader) (ImageInfo, error)
	OpenImage(name string) (io.ReadSeekCloser, ImageInfo, error)
	DeleteImage(name string) error
}
