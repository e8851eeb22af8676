// Package ffmpeg decodes video files into voxel volumes through libav (cgo).
package ffmpeg

import (
	"fmt"

	"github.com/cogentcore/reisen"

	"videoslicer/internal/models"
	"videoslicer/pkg/decode"
)

// Video decodes the first video stream of a media file
type Video struct {
	FlipVertical bool
}

// Decode reads frames [frameOffset, frameOffset+frameCount) of the first
// video stream. A negative frameCount reads to the end of the stream.
func (d *Video) Decode(path string, format models.PixelFormat, frameOffset, frameCount int) (*models.Frames, error) {
	media, err := reisen.NewMedia(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open media: %w", err)
	}
	defer media.Close()

	streams := media.VideoStreams()
	if len(streams) == 0 {
		return nil, fmt.Errorf("%w: %s has no video stream", decode.ErrNoFrames, path)
	}
	if err := media.OpenDecode(); err != nil {
		return nil, fmt.Errorf("failed to start decoding: %w", err)
	}
	defer media.CloseDecode()

	stream := streams[0]
	if err := stream.Open(); err != nil {
		return nil, fmt.Errorf("failed to open video stream: %w", err)
	}
	defer stream.Close()

	r := decode.Range{Offset: frameOffset, Count: frameCount}
	stack := &decode.Stack{Format: format, FlipVertical: d.FlipVertical}
	index := 0
	for !r.Done(index) {
		packet, gotPacket, err := media.ReadPacket()
		if err != nil {
			return nil, fmt.Errorf("failed to read packet: %w", err)
		}
		if !gotPacket {
			break
		}
		if packet.Type() != reisen.StreamVideo || packet.StreamIndex() != stream.Index() {
			continue
		}

		frame, gotFrame, err := stream.ReadVideoFrame()
		if err != nil {
			return nil, fmt.Errorf("failed to decode frame %d: %w", index, err)
		}
		if !gotFrame || frame == nil {
			continue
		}

		if r.Contains(index) {
			if err := stack.Add(frame.Image()); err != nil {
				return nil, err
			}
		}
		index++
	}

	if stack.Depth() == 0 && index > 0 {
		return nil, fmt.Errorf("%w: offset %d, %d frames", decode.ErrFrameRange, frameOffset, index)
	}
	return stack.Frames()
}
