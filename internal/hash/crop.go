package hash

import (
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"
)

// CropOptions configures CropResistantHash
type CropOptions struct {
	SegmentThreshold int     // luma level separating bright from dark regions
	MinSegmentSize   int     // regions with fewer pixels are dropped
	WorkingSize      int     // segmentation runs on a WorkingSize square
	LimitSegments    int     // keep only the N largest regions, 0 keeps all
	BlurSigma        float64 // gaussian blur applied before segmentation
}

// CropOption configures CropOptions
type CropOption func(*CropOptions)

// WithSegmentThreshold sets the bright/dark luma cut-off
func WithSegmentThreshold(v int) CropOption {
	return func(o *CropOptions) {
		o.SegmentThreshold = v
	}
}

// WithMinSegmentSize sets the smallest region kept
func WithMinSegmentSize(n int) CropOption {
	return func(o *CropOptions) {
		if n > 0 {
			o.MinSegmentSize = n
		}
	}
}

// WithLimitSegments keeps only the n largest regions
func WithLimitSegments(n int) CropOption {
	return func(o *CropOptions) {
		if n >= 0 {
			o.LimitSegments = n
		}
	}
}

// WithWorkingSize sets the segmentation resolution
func WithWorkingSize(n int) CropOption {
	return func(o *CropOptions) {
		if n > 0 {
			o.WorkingSize = n
		}
	}
}

// DefaultCropOptions returns the stock segmentation parameters
func DefaultCropOptions() CropOptions {
	return CropOptions{
		SegmentThreshold: 128,
		MinSegmentSize:   300,
		WorkingSize:      600,
		BlurSigma:        2,
	}
}

// region is a connected set of working-image pixels with its bounding box
type region struct {
	size                   int
	minX, minY, maxX, maxY int
}

// CropResistantHash segments the image into bright and dark regions and
// hashes the crop of the original image under each region
func CropResistantHash(img image.Image, hasher Hasher, opts ...CropOption) (MultiHash, error) {
	if img == nil || img.Bounds().Empty() {
		return MultiHash{}, fmt.Errorf("empty image: %w", ErrInvalidParameter)
	}
	o := DefaultCropOptions()
	for _, opt := range opts {
		opt(&o)
	}

	ws := o.WorkingSize
	work := imaging.Resize(img, ws, ws, imaging.Lanczos)
	gray := Luma(imaging.Blur(Luma(work), o.BlurSigma))
	gray = MedianFilter(gray)

	regions := findSegments(gray, uint8(clamp(o.SegmentThreshold, 0, 255)), o.MinSegmentSize)
	if len(regions) == 0 {
		regions = []region{{size: ws * ws, minX: 0, minY: 0, maxX: ws - 1, maxY: ws - 1}}
	}
	if o.LimitSegments > 0 && len(regions) > o.LimitSegments {
		sort.SliceStable(regions, func(i, j int) bool {
			return regions[i].size > regions[j].size
		})
		regions = regions[:o.LimitSegments]
	}

	b := img.Bounds()
	scaleW := float64(b.Dx()) / float64(ws)
	scaleH := float64(b.Dy()) / float64(ws)

	members := make([]Hash, 0, len(regions))
	for _, r := range regions {
		x0 := int(float64(r.minX) * scaleW)
		y0 := int(float64(r.minY) * scaleH)
		x1 := int(math.Ceil(float64(r.maxX+1) * scaleW))
		y1 := int(math.Ceil(float64(r.maxY+1) * scaleH))
		if x1 <= x0 {
			x1 = x0 + 1
		}
		if y1 <= y0 {
			y1 = y0 + 1
		}
		rect := image.Rect(b.Min.X+x0, b.Min.Y+y0, b.Min.X+x1, b.Min.Y+y1).Intersect(b)
		h, err := hasher.Hash(imaging.Crop(img, rect))
		if err != nil {
			return MultiHash{}, fmt.Errorf("failed to hash segment %v: %w", rect, err)
		}
		members = append(members, h)
	}
	return MultiHash{members: members}, nil
}

// findSegments flood-fills 4-connected regions above threshold first, then
// the regions at or below it. Pixels outside the image count as visited.
func findSegments(gray *image.Gray, threshold uint8, minSize int) []region {
	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	visited := make([]bool, w*h)
	bright := func(i int) bool {
		return gray.Pix[(i/w)*gray.Stride+i%w] > threshold
	}

	var out []region
	stack := make([]int, 0, 1024)
	for _, wantBright := range []bool{true, false} {
		for start := 0; start < w*h; start++ {
			if visited[start] || bright(start) != wantBright {
				continue
			}
			r := region{minX: w, minY: h, maxX: -1, maxY: -1}
			visited[start] = true
			stack = append(stack[:0], start)
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				x, y := p%w, p/w
				r.size++
				r.minX, r.maxX = min(r.minX, x), max(r.maxX, x)
				r.minY, r.maxY = min(r.minY, y), max(r.maxY, y)

				for _, n := range [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}} {
					nx, ny := n[0], n[1]
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					q := ny*w + nx
					if visited[q] || bright(q) != wantBright {
						continue
					}
					visited[q] = true
					stack = append(stack, q)
				}
			}
			if r.size >= minSize {
				out = append(out, r)
			}
		}
	}
	return out
}
