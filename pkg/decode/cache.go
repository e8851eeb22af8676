package decode

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	xxhash "github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"

	"videoslicer/internal/models"
	"videoslicer/pkg/volume"
)

// Decoder is the frame decoder contract consumed by volume.Grid.Load
type Decoder = volume.Decoder

const (
	cacheMagic   = "VSLC"
	cacheVersion = 1
	cacheExt     = ".vslc"
	// magic, version, format, 3 dims, checksum
	cacheHeaderSize = 4 + 1 + 1 + 3*4 + 8
)

var errCacheCorrupt = errors.New("corrupt cache entry")

// Cache stores decoded volumes in Dir as zstd-compressed files and serves
// repeated requests for the same source and frame range from there.
// Entries are keyed on the request and on the source's size and modification
// time, so an edited source is decoded again.
type Cache struct {
	Dir  string
	Next Decoder
}

// Decode returns the cached volume for the request or decodes it with Next
func (c *Cache) Decode(path string, format models.PixelFormat, frameOffset, frameCount int) (*models.Frames, error) {
	key, err := cacheKey(path, format, frameOffset, frameCount)
	if err != nil {
		return nil, err
	}
	entry := filepath.Join(c.Dir, key+cacheExt)

	frames, err := readCacheEntry(entry)
	switch {
	case err == nil:
		logger.Debug("decode cache hit", "path", path, "entry", entry)
		return frames, nil
	case errors.Is(err, os.ErrNotExist):
		logger.Debug("decode cache miss", "path", path)
	default:
		logger.Warn("ignoring unreadable cache entry", "entry", entry, "err", err)
	}

	frames, err = c.Next.Decode(path, format, frameOffset, frameCount)
	if err != nil {
		return nil, err
	}
	if err := writeCacheEntry(entry, frames); err != nil {
		logger.Warn("failed to write cache entry", "entry", entry, "err", err)
	}
	return frames, nil
}

func cacheKey(path string, format models.PixelFormat, frameOffset, frameCount int) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	d := xxhash.New()
	d.WriteString(abs)
	var buf [8 * 5]byte
	binary.LittleEndian.PutUint64(buf[0:], uint64(format))
	binary.LittleEndian.PutUint64(buf[8:], uint64(int64(frameOffset)))
	binary.LittleEndian.PutUint64(buf[16:], uint64(int64(frameCount)))
	binary.LittleEndian.PutUint64(buf[24:], uint64(info.Size()))
	binary.LittleEndian.PutUint64(buf[32:], uint64(info.ModTime().UnixNano()))
	d.Write(buf[:])

	var sum [8]byte
	binary.BigEndian.PutUint64(sum[:], d.Sum64())
	return hex.EncodeToString(sum[:]), nil
}

func writeCacheEntry(entry string, frames *models.Frames) error {
	if err := os.MkdirAll(filepath.Dir(entry), 0755); err != nil {
		return err
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	payload := enc.EncodeAll(frames.Data, nil)
	enc.Close()

	var buf bytes.Buffer
	buf.Grow(cacheHeaderSize + len(payload))
	buf.WriteString(cacheMagic)
	buf.WriteByte(cacheVersion)
	buf.WriteByte(byte(frames.Format))
	binary.Write(&buf, binary.LittleEndian, uint32(frames.Dims.Width))
	binary.Write(&buf, binary.LittleEndian, uint32(frames.Dims.Height))
	binary.Write(&buf, binary.LittleEndian, uint32(frames.Dims.Depth))
	binary.Write(&buf, binary.LittleEndian, xxhash.Sum64(frames.Data))
	buf.Write(payload)

	tmp, err := os.CreateTemp(filepath.Dir(entry), "entry-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), entry)
}

func readCacheEntry(entry string) (*models.Frames, error) {
	data, err := os.ReadFile(entry)
	if err != nil {
		return nil, err
	}
	if len(data) < cacheHeaderSize || string(data[:4]) != cacheMagic {
		return nil, fmt.Errorf("%w: bad header", errCacheCorrupt)
	}
	if data[4] != cacheVersion {
		return nil, fmt.Errorf("%w: version %d", errCacheCorrupt, data[4])
	}

	frames := &models.Frames{
		Format: models.PixelFormat(data[5]),
		Dims: models.Dims{
			Width:  int(binary.LittleEndian.Uint32(data[6:])),
			Height: int(binary.LittleEndian.Uint32(data[10:])),
			Depth:  int(binary.LittleEndian.Uint32(data[14:])),
		},
	}
	checksum := binary.LittleEndian.Uint64(data[18:])

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	frames.Data, err = dec.DecodeAll(data[cacheHeaderSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errCacheCorrupt, err)
	}
	if xxhash.Sum64(frames.Data) != checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", errCacheCorrupt)
	}
	if err := frames.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", errCacheCorrupt, err)
	}
	return frames, nil
}
