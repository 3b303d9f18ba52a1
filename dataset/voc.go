package dataset

import (
	"bufio"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
)

// SegmentationFolder serves VOC-style segmentation pairs from disk. The split
// file lists one sample per line: either a bare id resolved under ImageDir
// and LabelDir, or an explicit "image label" path pair relative to the root.
type SegmentationFolder struct {
	root   string
	images []string
	labels []string
	aug    *Augmenter
}

// FolderConfig locates the split and names the directory layout.
type FolderConfig struct {
	Root      string
	SplitFile string
	ImageDir  string // default "JPEGImages"
	LabelDir  string // default "SegmentationClassAug"
	ImageExt  string // default ".jpg"
	LabelExt  string // default ".png"
}

// NewSegmentationFolder reads the split file and binds the augmenter.
func NewSegmentationFolder(cfg FolderConfig, aug *Augmenter) (*SegmentationFolder, error) {
	if cfg.ImageDir == "" {
		cfg.ImageDir = "JPEGImages"
	}
	if cfg.LabelDir == "" {
		cfg.LabelDir = "SegmentationClassAug"
	}
	if cfg.ImageExt == "" {
		cfg.ImageExt = ".jpg"
	}
	if cfg.LabelExt == "" {
		cfg.LabelExt = ".png"
	}
	if aug == nil {
		return nil, fmt.Errorf("an augmenter is required")
	}

	f, err := os.Open(cfg.SplitFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open split file: %v", err)
	}
	defer f.Close()

	d := &SegmentationFolder{root: cfg.Root, aug: aug}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		switch len(fields) {
		case 1:
			id := fields[0]
			d.images = append(d.images, filepath.Join(cfg.Root, cfg.ImageDir, id+cfg.ImageExt))
			d.labels = append(d.labels, filepath.Join(cfg.Root, cfg.LabelDir, id+cfg.LabelExt))
		case 2:
			d.images = append(d.images, filepath.Join(cfg.Root, strings.TrimPrefix(fields[0], "/")))
			d.labels = append(d.labels, filepath.Join(cfg.Root, strings.TrimPrefix(fields[1], "/")))
		default:
			return nil, fmt.Errorf("malformed split line %q", line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read split file: %v", err)
	}
	if len(d.images) == 0 {
		return nil, fmt.Errorf("split file %s lists no samples", cfg.SplitFile)
	}
	return d, nil
}

func (d *SegmentationFolder) Len() int {
	return len(d.images)
}

func (d *SegmentationFolder) Get(i int) (*Sample, error) {
	if i < 0 || i >= len(d.images) {
		return nil, fmt.Errorf("sample index %d out of range [0, %d)", i, len(d.images))
	}

	img, err := decodeImage(d.images[i])
	if err != nil {
		return nil, fmt.Errorf("failed to load image %s: %v", d.images[i], err)
	}
	labelImg, err := decodeImage(d.labels[i])
	if err != nil {
		return nil, fmt.Errorf("failed to load label %s: %v", d.labels[i], err)
	}

	ib, lb := img.Bounds(), labelImg.Bounds()
	if ib.Dx() != lb.Dx() || ib.Dy() != lb.Dy() {
		return nil, fmt.Errorf("image %s is %dx%d but label is %dx%d",
			d.images[i], ib.Dy(), ib.Dx(), lb.Dy(), lb.Dx())
	}

	label := decodeLabel(labelImg)
	return d.aug.Apply(img, label, ib.Dy(), ib.Dx())
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

// decodeLabel extracts class ids from a label image. Paletted PNGs carry the
// id as the palette index; grayscale and other encodings carry it in the
// first channel.
func decodeLabel(img image.Image) []int32 {
	bounds := img.Bounds()
	h, w := bounds.Dy(), bounds.Dx()
	out := make([]int32, h*w)

	switch m := img.(type) {
	case *image.Paletted:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out[y*w+x] = int32(m.ColorIndexAt(bounds.Min.X+x, bounds.Min.Y+y))
			}
		}
	case *image.Gray:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out[y*w+x] = int32(m.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
			}
		}
	default:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r, _, _, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
				out[y*w+x] = int32(r >> 8)
			}
		}
	}
	return out
}
