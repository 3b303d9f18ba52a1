package dataset

import (
	"fmt"
	"image"
	"math/rand"

	"github.com/anthonynsimon/bild/transform"

	"github.com/abhay-venkatesh/deeplab-go/tensor"
)

// Augmenter turns a decoded image and its label map into fixed-size training
// tensors. Images are resampled bilinearly and mean-subtracted; label maps
// are resampled with nearest neighbor so class ids never blend.
//
// With WarpImage set, both are warped directly to CropSize x CropSize.
// Otherwise a scale is drawn from Scales, the pair is resized by it, padded
// with the mean color and the ignore label where short of the crop, and a
// random CropSize window is taken. RandomFlip mirrors the pair horizontally
// half the time.
type Augmenter struct {
	CropSize    int
	Scales      []float64
	RandomFlip  bool
	WarpImage   bool
	Mean        [3]float32
	IgnoreLabel int32

	rng *rand.Rand
}

// NewAugmenter validates the geometry settings. A nil-seeded augmenter is
// deterministic only when Scales has at most one entry and RandomFlip is off.
func NewAugmenter(cropSize int, scales []float64, randomFlip, warpImage bool, mean [3]float32, ignoreLabel int32, seed int64) (*Augmenter, error) {
	if cropSize <= 0 {
		return nil, fmt.Errorf("crop size must be positive, got %d", cropSize)
	}
	for _, s := range scales {
		if s <= 0 {
			return nil, fmt.Errorf("augmentation scales must be positive, got %f", s)
		}
	}
	return &Augmenter{
		CropSize:    cropSize,
		Scales:      scales,
		RandomFlip:  randomFlip,
		WarpImage:   warpImage,
		Mean:        mean,
		IgnoreLabel: ignoreLabel,
		rng:         rand.New(rand.NewSource(seed)),
	}, nil
}

// Apply produces one sample from an image and a label map of the same size.
func (a *Augmenter) Apply(img image.Image, label []int32, h, w int) (*Sample, error) {
	if len(label) != h*w {
		return nil, fmt.Errorf("label has %d elements for a %dx%d map", len(label), h, w)
	}
	bounds := img.Bounds()
	if bounds.Dy() != h || bounds.Dx() != w {
		return nil, fmt.Errorf("image is %dx%d but label map is %dx%d",
			bounds.Dy(), bounds.Dx(), h, w)
	}

	size := a.CropSize
	if a.WarpImage {
		img = transform.Resize(img, size, size, transform.Linear)
		var err error
		label, err = resizeLabel(label, h, w, size, size)
		if err != nil {
			return nil, err
		}
		h, w = size, size
	} else {
		scale := 1.0
		if len(a.Scales) > 0 {
			scale = a.Scales[a.rng.Intn(len(a.Scales))]
		}
		sh := scaledDim(h, scale)
		sw := scaledDim(w, scale)
		if sh != h || sw != w {
			img = transform.Resize(img, sw, sh, transform.Linear)
			var err error
			label, err = resizeLabel(label, h, w, sh, sw)
			if err != nil {
				return nil, err
			}
			h, w = sh, sw
		}
	}

	pixels, labels := a.extract(img, label, h, w)
	if !a.WarpImage && (h != size || w != size) {
		pixels, labels, h, w = a.padAndCrop(pixels, labels, h, w)
	}
	if a.RandomFlip && a.rng.Intn(2) == 1 {
		flipHorizontal(pixels, labels, h, w)
	}

	imgT, err := tensor.NewTensor([]int{3, h, w}, tensor.Float32, tensor.CPU, pixels)
	if err != nil {
		return nil, err
	}
	lblT, err := tensor.NewTensor([]int{h, w}, tensor.Int32, tensor.CPU, labels)
	if err != nil {
		return nil, err
	}
	return &Sample{Image: imgT, Label: lblT}, nil
}

// extract converts the image into mean-subtracted CHW floats.
func (a *Augmenter) extract(img image.Image, label []int32, h, w int) ([]float32, []int32) {
	pixels := make([]float32, 3*h*w)
	bounds := img.Bounds()
	plane := h * w
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			i := y*w + x
			pixels[i] = float32(r>>8) - a.Mean[0]
			pixels[plane+i] = float32(g>>8) - a.Mean[1]
			pixels[2*plane+i] = float32(b>>8) - a.Mean[2]
		}
	}
	return pixels, label
}

// padAndCrop pads short sides with the mean color and the ignore label, then
// takes a random CropSize window.
func (a *Augmenter) padAndCrop(pixels []float32, labels []int32, h, w int) ([]float32, []int32, int, int) {
	size := a.CropSize
	ph, pw := h, w
	if ph < size {
		ph = size
	}
	if pw < size {
		pw = size
	}
	if ph != h || pw != w {
		// Padded pixels are zero after mean subtraction, so only the labels
		// need explicit filling.
		padded := make([]float32, 3*ph*pw)
		paddedLabels := make([]int32, ph*pw)
		for i := range paddedLabels {
			paddedLabels[i] = a.IgnoreLabel
		}
		for c := 0; c < 3; c++ {
			for y := 0; y < h; y++ {
				copy(padded[c*ph*pw+y*pw:], pixels[c*h*w+y*w:c*h*w+(y+1)*w])
			}
		}
		for y := 0; y < h; y++ {
			copy(paddedLabels[y*pw:], labels[y*w:(y+1)*w])
		}
		pixels, labels, h, w = padded, paddedLabels, ph, pw
	}

	offY := a.rng.Intn(h - size + 1)
	offX := a.rng.Intn(w - size + 1)
	cropped := make([]float32, 3*size*size)
	croppedLabels := make([]int32, size*size)
	for c := 0; c < 3; c++ {
		for y := 0; y < size; y++ {
			src := c*h*w + (offY+y)*w + offX
			copy(cropped[c*size*size+y*size:], pixels[src:src+size])
		}
	}
	for y := 0; y < size; y++ {
		src := (offY+y)*w + offX
		copy(croppedLabels[y*size:], labels[src:src+size])
	}
	return cropped, croppedLabels, size, size
}

func flipHorizontal(pixels []float32, labels []int32, h, w int) {
	for c := 0; c < 3; c++ {
		plane := pixels[c*h*w : (c+1)*h*w]
		for y := 0; y < h; y++ {
			row := plane[y*w : (y+1)*w]
			for x := 0; x < w/2; x++ {
				row[x], row[w-1-x] = row[w-1-x], row[x]
			}
		}
	}
	for y := 0; y < h; y++ {
		row := labels[y*w : (y+1)*w]
		for x := 0; x < w/2; x++ {
			row[x], row[w-1-x] = row[w-1-x], row[x]
		}
	}
}

func resizeLabel(label []int32, h, w, outH, outW int) ([]int32, error) {
	t, err := tensor.NewTensor([]int{1, h, w}, tensor.Int32, tensor.CPU, label)
	if err != nil {
		return nil, err
	}
	resized, err := tensor.ResizeNearest(t, outH, outW)
	if err != nil {
		return nil, err
	}
	return resized.Int32Data()
}

func scaledDim(size int, scale float64) int {
	s := int(float64(size)*scale + 0.5)
	if s < 1 {
		s = 1
	}
	return s
}
