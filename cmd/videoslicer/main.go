package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"videoslicer/internal/models"
	"videoslicer/pkg/config"
	"videoslicer/pkg/decode"
	"videoslicer/pkg/decode/ffmpeg"
	"videoslicer/pkg/export"
	"videoslicer/pkg/slicing"
	"videoslicer/pkg/visualization"
	"videoslicer/pkg/volume"
)

// statsSamples bounds the number of voxels read for intensity statistics
const statsSamples = 1 << 20

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "videoslicer.yaml", "YAML configuration file")
	initConfig := flag.Bool("init-config", false, "Write a default configuration file to -config and exit")
	inputPath := flag.String("input", "", "Video file or directory of numbered frames")
	source := flag.String("source", "", "Input source: video or images")
	pixelFormat := flag.String("format", "", "Pixel format: gray, rgb or rgba")
	frameOffset := flag.Int("offset", 0, "First frame to load")
	frameCount := flag.Int("count", -1, "Number of frames to load (-1 for all)")
	cacheDir := flag.String("cache", "", "Directory for cached decoded volumes")
	gltfPath := flag.String("gltf", "", "Output glTF binary (.glb) file")
	stlPath := flag.String("stl", "", "Output STL file")
	imagesDir := flag.String("images", "", "Directory to save slice images")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags given explicitly override the file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			cfg.Input.Path = *inputPath
		case "source":
			cfg.Input.Source = *source
		case "format":
			cfg.Input.PixelFormat = *pixelFormat
		case "offset":
			cfg.Input.FrameOffset = *frameOffset
		case "count":
			cfg.Input.FrameCount = *frameCount
		case "cache":
			cfg.Input.CacheDir = *cacheDir
		case "gltf":
			cfg.Output.GLTF = *gltfPath
		case "stl":
			cfg.Output.STL = *stlPath
		case "images":
			cfg.Output.ImagesDir = *imagesDir
		case "verbose":
			cfg.Output.Verbose = *verbose
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.Input.Path == "" {
		flag.Usage()
		os.Exit(1)
	}

	setupLogging(cfg.Output.Verbose)

	fmt.Println("================================")
	fmt.Println("VIDEO VOLUME SLICER")
	fmt.Println("================================")

	// Decode the frames into the volume grid
	grid := volume.NewGrid()
	fmt.Printf("Loading %s (%s, %s)...\n", cfg.Input.Path, cfg.Input.Source, cfg.Input.PixelFormat)
	startTime := time.Now()
	if err := grid.Load(newDecoder(cfg), cfg.Input.Path, cfg.Format(), cfg.Input.FrameOffset, cfg.Input.FrameCount); err != nil {
		log.Fatalf("Load failed: %v", err)
	}
	d := grid.Dims()
	ext := grid.Extent()
	fmt.Printf("Loaded %s voxels in %.2f seconds\n", d, time.Since(startTime).Seconds())
	fmt.Printf("World extent: %.3f x %.3f x %.3f\n", ext.X, ext.Y, ext.Z)

	if stats, err := grid.Stats(statsSamples); err == nil {
		for ch, s := range stats {
			fmt.Printf("- channel %d: mean %.1f, stddev %.1f, range [%.0f, %.0f]\n", ch, s.Mean, s.StdDev, s.Min, s.Max)
		}
	}

	set := buildSlices(cfg, grid)

	geom := set.BuildRenderGeometry()
	fmt.Printf("\nRender geometry: %d triangles\n", geom.TriangleCount())

	if geom.IsEmpty() {
		fmt.Println("No visible slices, skipping mesh export")
	}
	if cfg.Output.GLTF != "" && !geom.IsEmpty() {
		if err := export.WriteGLB(cfg.Output.GLTF, geom); err != nil {
			log.Fatalf("Failed to write glTF: %v", err)
		}
		fmt.Printf("glTF saved to: %s\n", cfg.Output.GLTF)
	}
	if cfg.Output.STL != "" && !geom.IsEmpty() {
		if err := export.WriteSTL(cfg.Output.STL, geom); err != nil {
			log.Fatalf("Failed to write STL: %v", err)
		}
		fmt.Printf("STL saved to: %s\n", cfg.Output.STL)
	}

	// Sample slices into images
	if cfg.Output.ImagesDir != "" {
		viewer := visualization.NewViewer(grid)
		if err := viewer.AutoContrast(statsSamples); err != nil {
			log.Printf("Warning: contrast stretch disabled: %v", err)
		}
		n, err := viewer.SaveSlices(set, cfg.Output.ImagesDir, imageResolution(d))
		if err != nil {
			log.Fatalf("Failed to save slice images: %v", err)
		}
		fmt.Printf("%d slice images saved to: %s\n", n, cfg.Output.ImagesDir)
	}
	grid.MarkTextureCurrent()
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	volume.SetLogger(logger)
	slicing.SetLogger(logger)
	decode.SetLogger(logger)
}

func newDecoder(cfg *config.Config) volume.Decoder {
	var dec decode.Decoder
	switch cfg.Input.Source {
	case config.SourceImages:
		dec = &decode.ImageSequence{FlipVertical: cfg.Input.FlipVertical}
	default:
		dec = &ffmpeg.Video{FlipVertical: cfg.Input.FlipVertical}
	}
	if cfg.Input.CacheDir != "" {
		dec = &decode.Cache{Dir: cfg.Input.CacheDir, Next: dec}
	}
	return dec
}

func buildSlices(cfg *config.Config, grid *volume.Grid) *slicing.Set {
	set := slicing.NewSet(grid)
	d := grid.Dims()
	for axis, a := range cfg.Slices.Axis {
		index := a.Index
		if !axisIndexInRange(index, d.Axis(axis)) {
			log.Printf("Warning: axis %d slice %d is outside the volume, centering it", axis, index)
			index = slicing.Unset
		}
		if err := set.SetAxisSlice(axis, index, a.Visible); err != nil {
			log.Fatalf("Invalid axis slice: %v", err)
		}
	}
	set.CenterAxisSlices()

	for i, o := range cfg.Slices.Oblique {
		origin := r3.Vec{X: o.Origin[0], Y: o.Origin[1], Z: o.Origin[2]}
		normal := r3.Vec{X: o.Normal[0], Y: o.Normal[1], Z: o.Normal[2]}
		if _, err := set.AddObliqueColor(origin, normal, o.SliceColor()); err != nil {
			log.Printf("Warning: skipping oblique slice %d: %v", i, err)
		}
	}
	fmt.Printf("Slices: %d oblique of %d configured\n", set.Count(), len(cfg.Slices.Oblique))
	return set
}

// axisIndexInRange reports whether index selects a voxel plane of an axis
// with size voxels, or is Unset
func axisIndexInRange(index, size int) bool {
	return index == slicing.Unset || (index >= 0 && index < size)
}

// imageResolution sizes oblique slice images after the largest volume side
func imageResolution(d models.Dims) int {
	return max(d.Width, d.Height, d.Depth)
}
