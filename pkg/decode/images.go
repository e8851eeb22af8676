package decode

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"videoslicer/internal/models"
)

// ImageSequence decodes a directory of numbered JPEG or PNG frames.
// Files are ordered by the number embedded in their name.
type ImageSequence struct {
	FlipVertical bool
}

// Decode loads frames [frameOffset, frameOffset+frameCount) of dir
func (d *ImageSequence) Decode(dir string, format models.PixelFormat, frameOffset, frameCount int) (*models.Frames, error) {
	files, err := listFrames(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no JPEG or PNG images in %s", ErrNoFrames, dir)
	}
	if frameOffset < 0 || frameOffset >= len(files) {
		return nil, fmt.Errorf("%w: offset %d, %d frames", ErrFrameRange, frameOffset, len(files))
	}

	r := Range{Offset: frameOffset, Count: frameCount}
	stack := &Stack{Format: format, FlipVertical: d.FlipVertical}
	for i, name := range files {
		if r.Done(i) {
			break
		}
		if !r.Contains(i) {
			continue
		}
		img, err := loadImage(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to load frame %s: %w", name, err)
		}
		if err := stack.Add(img); err != nil {
			return nil, err
		}
	}

	logger.Debug("image sequence decoded", "dir", dir, "frames", stack.Depth())
	return stack.Frames()
}

func listFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, e.Name())
		}
	}

	sort.SliceStable(files, func(i, j int) bool {
		ni, nj := extractNumber(files[i]), extractNumber(files[j])
		if ni != nj {
			return ni < nj
		}
		return files[i] < files[j]
	})
	return files, nil
}

// extractNumber returns the digits of a file name read as one number, or 0
func extractNumber(filename string) int {
	var digits strings.Builder
	for _, c := range filepath.Base(filename) {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	return n
}

func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, err
	}
	return img, nil
}
