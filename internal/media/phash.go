package media

import (
	"fmt"
	"image"
	_ "image/jpeg"
	"os"
)

// DCTPerceptualHasher computes a 64-bit average-hash over a 8x8 grayscale
// downsample of the input image: resize to 8x8, take the mean luma, and set
// one bit per pixel for "brighter than mean". Hamming distance over the
// resulting hash is a standard, well-documented approximation of
// perceptual similarity.
//
// No image-hashing library appears anywhere in the retrieval pack, so this
// is implemented directly on the standard library's image/jpeg decoder
// rather than pulling in an unexercised third-party dependency for a single
// small function.
type DCTPerceptualHasher struct{}

// NewDCTPerceptualHasher returns a stateless perceptual hasher.
func NewDCTPerceptualHasher() *DCTPerceptualHasher {
	return &DCTPerceptualHasher{}
}

const hashSize = 8 // 8x8 -> 64 bits

func (h *DCTPerceptualHasher) Hash(imagePath string) (string, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return "", fmt.Errorf("phash: failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("phash: failed to decode image: %w", err)
	}

	grid := downsampleGray(img, hashSize, hashSize)

	var sum int
	for _, v := range grid {
		sum += int(v)
	}
	mean := sum / len(grid)

	var hash uint64
	for i, v := range grid {
		if int(v) >= mean {
			hash |= 1 << uint(i)
		}
	}
	return fmt.Sprintf("%016x", hash), nil
}

// downsampleGray nearest-neighbor resizes img to w x h and converts to
// grayscale luma, avoiding a dependency on golang.org/x/image/draw for a
// single small resize.
func downsampleGray(img image.Image, w, h int) []uint8 {
	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	out := make([]uint8, 0, w*h)
	for y := 0; y < h; y++ {
		srcY := bounds.Min.Y + y*srcH/h
		for x := 0; x < w; x++ {
			srcX := bounds.Min.X + x*srcW/w
			r, g, b, _ := img.At(srcX, srcY).RGBA()
			luma := (299*r + 587*g + 114*b) / 1000
			out = append(out, uint8(luma>>8))
		}
	}
	return out
}

// HammingDistance64 returns the number of differing bits between two hex
// hashes produced by Hash. Returns -1 if either string fails to parse.
func HammingDistance64(a, b string) int {
	va, err := parseHex64(a)
	if err != nil {
		return -1
	}
	vb, err := parseHex64(b)
	if err != nil {
		return -1
	}
	x := va ^ vb
	count := 0
	for x != 0 {
		count++
		x &= x - 1
	}
	return count
}

func parseHex64(s string) (uint64, error) {
	var v uint64
	_, err := fmt.Sscanf(s, "%016x", &v)
	return v, err
}
