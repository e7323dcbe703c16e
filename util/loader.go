// Package util - Loads image files for batch runs.
package util

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-anomaly/images"
)

// ImageFile is an encoded image read from disk.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Image holds the encoded bytes and format.
	Image images.Image
	// Frame is the trailing number in the file name, or -1 when it has none.
	Frame int
}

// Key returns the file name without its extension, used as the results store key.
func (f ImageFile) Key() string {
	base := filepath.Base(f.Path)
	return base[:len(base)-len(filepath.Ext(base))]
}

var frameNumber = regexp.MustCompile(`(\d+)$`)

func frameOf(path string) int {
	m := frameNumber.FindString(ImageFile{Path: path}.Key())
	if m == "" {
		return -1
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return -1
	}
	return n
}

// LoadImageFile reads one image file.
func LoadImageFile(path string) (ImageFile, error) {
	format, ok := images.FormatFromPath(path)
	if !ok {
		return ImageFile{}, errors.Errorf("unsupported image file %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ImageFile{}, errors.Wrapf(err, "read %s", path)
	}
	return ImageFile{
		Path:  path,
		Image: images.Image{Format: format, Data: data},
		Frame: frameOf(path),
	}, nil
}

// LoadImageFiles reads path as a single image file, or every supported image file directly
// inside it when it is a directory.
//
// Arguments:
//   - path: A file or directory path.
//
// Returns:
//   - []ImageFile: Files ordered by frame number, then by name. Files without a frame number
//     sort after numbered ones.
//   - error: An error if the path cannot be read or contains no images.
func LoadImageFiles(path string) ([]ImageFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	if !info.IsDir() {
		f, err := LoadImageFile(path)
		if err != nil {
			return nil, err
		}
		return []ImageFile{f}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read dir %s", path)
	}

	var files []ImageFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := images.FormatFromPath(e.Name()); !ok {
			continue
		}
		f, err := LoadImageFile(filepath.Join(path, e.Name()))
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no image files in %s", path)
	}

	sort.SliceStable(files, func(i, j int) bool {
		a, b := files[i], files[j]
		if (a.Frame < 0) != (b.Frame < 0) {
			return a.Frame >= 0
		}
		if a.Frame != b.Frame {
			return a.Frame < b.Frame
		}
		return a.Path < b.Path
	})
	return files, nil
}
