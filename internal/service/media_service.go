package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// MediaExtensions are the video containers offered for streaming.
var MediaExtensions = []string{".mp4", ".avi", ".mkv"}

// ErrMediaDirUnavailable is returned when the media directory cannot be read.
var ErrMediaDirUnavailable = errors.New("media directory not available")

// MediaFile is a streamable video under the media directory.
type MediaFile struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// MediaService lists video files for headless pickers.
type MediaService struct {
	dir string
}

// NewMediaService creates a media service rooted at dir.
func NewMediaService(dir string) *MediaService {
	return &MediaService{dir: dir}
}

// Dir returns the media root.
func (s *MediaService) Dir() string {
	return s.dir
}

// List walks the media directory and returns video files sorted by path.
// Hidden files and directories are skipped.
func (s *MediaService) List(ctx context.Context) ([]MediaFile, error) {
	root, err := filepath.Abs(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMediaDirUnavailable, err)
	}

	var files []MediaFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !IsMediaFile(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, MediaFile{
			Name:    d.Name(),
			Path:    path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrMediaDirUnavailable, err)
	}

	slices.SortFunc(files, func(a, b MediaFile) int { return strings.Compare(a.Path, b.Path) })
	return files, nil
}

// IsMediaFile reports whether name has a streamable extension.
func IsMediaFile(name string) bool {
	return slices.Contains(MediaExtensions, strings.ToLower(filepath.Ext(name)))
}
