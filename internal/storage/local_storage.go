package storage

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

var ErrInvalidPath = errors.New("invalid path")

type LocalStorage struct {
	basePath string
}

func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// SaveImage writes r under name, replacing any previous file. Names are the
// image references stored on items, so they are kept verbatim.
func (ls *LocalStorage) SaveImage(name string, r io.Reader) (ImageInfo, error) {
	fullPath, err := ls.resolve(name)
	if err != nil {
		return ImageInfo{}, err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return ImageInfo{}, fmt.Errorf("failed to create image directory: %w", err)
	}

	dst, err := os.Create(fullPath)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	n, err := io.Copy(dst, r)
	if err != nil {
		os.Remove(fullPath)
		return ImageInfo{}, fmt.Errorf("failed to save file: %w", err)
	}

	return ImageInfo{Name: name, ContentType: contentType(name), Size: n}, nil
}

// ImportDir copies the named files from srcDir into the store.
func (ls *LocalStorage) ImportDir(srcDir string, names []string) error {
	for _, name := range names {
		if err := ls.importOne(srcDir, name); err != nil {
			return err
		}
	}
	return nil
}

func (ls *LocalStorage) importOne(srcDir, name string) error {
	cleanName := filepath.Clean(name)
	if strings.Contains(cleanName, "..") {
		return fmt.Errorf("%s: %w", name, ErrInvalidPath)
	}
	src, err := os.Open(filepath.Join(srcDir, cleanName))
	if err != nil {
		return fmt.Errorf("failed to open source image: %w", err)
	}
	defer src.Close()

	if _, err := ls.SaveImage(name, src); err != nil {
		return err
	}
	return nil
}

func (ls *LocalStorage) OpenImage(name string) (io.ReadSeekCloser, ImageInfo, error) {
	fullPath, err := ls.resolve(name)
	if err != nil {
		return nil, ImageInfo{}, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		return nil, ImageInfo{}, fmt.Errorf("failed to open file: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, ImageInfo{}, fmt.Errorf("failed to stat file: %w", err)
	}

	return file, ImageInfo{Name: name, ContentType: contentType(name), Size: stat.Size()}, nil
}

func (ls *LocalStorage) DeleteImage(name string) error {
	fullPath, err := ls.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Clear removes every stored image, keeping the base directory.
func (ls *LocalStorage) Clear() error {
	entries, err := os.ReadDir(ls.basePath)
	if err != nil {
		return fmt.Errorf("failed to read storage directory: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(ls.basePath, e.Name())); err != nil {
			return fmt.Errorf("failed to remove %s: %w", e.Name(), err)
		}
	}
	return nil
}

func (ls *LocalStorage) resolve(name string) (string, error) {
	cleanPath := filepath.Clean(name)
	if name == "" || strings.Contains(cleanPath, "..") || filepath.IsAbs(cleanPath) {
		return "", fmt.Errorf("%q: %w", name, ErrInvalidPath)
	}
	return filepath.Join(ls.basePath, cleanPath), nil
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
