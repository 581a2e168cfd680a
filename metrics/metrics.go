// Package metrics computes reconstruction-quality figures (RMSE, PSNR,
// ROI-restricted PSNR) used to evaluate codec output. It operates on
// already-decoded image.Gray16 buffers; it does not read files or plot
// anything, matching the original metrics.py/roi_metrics.py collaborator.
package metrics

import (
	"image"
	"math"

	"github.com/pkg/errors"
)

// ErrShapeMismatch indicates two images (or an image and an ROI mask)
// don't share the same bounds.
var ErrShapeMismatch = errors.New("metrics: shape mismatch")

// ErrEmptyROI indicates an ROI mask selects no pixels.
var ErrEmptyROI = errors.New("metrics: roi mask is empty")

func sameBounds(a, b image.Rectangle) bool {
	return a.Dx() == b.Dx() && a.Dy() == b.Dy()
}

// RMSE computes the root-mean-square error between two Gray16 images of
// matching dimensions.
func RMSE(x, y *image.Gray16) (float64, error) {
	bx, by := x.Bounds(), y.Bounds()
	if !sameBounds(bx, by) {
		return 0, ErrShapeMismatch
	}
	var sum float64
	n := float64(bx.Dx() * bx.Dy())
	for v := 0; v < bx.Dy(); v++ {
		for u := 0; u < bx.Dx(); u++ {
			xv := float64(x.Gray16At(bx.Min.X+u, bx.Min.Y+v).Y)
			yv := float64(y.Gray16At(by.Min.X+u, by.Min.Y+v).Y)
			d := xv - yv
			sum += d * d
		}
	}
	return math.Sqrt(sum / n), nil
}

// PSNR computes the peak signal-to-noise ratio between two Gray16 images
// at the given bit depth, in dB. Returns +Inf for identical images.
func PSNR(x, y *image.Gray16, bitDepth int) (float64, error) {
	bx, by := x.Bounds(), y.Bounds()
	if !sameBounds(bx, by) {
		return 0, ErrShapeMismatch
	}
	var sum float64
	n := float64(bx.Dx() * bx.Dy())
	for v := 0; v < bx.Dy(); v++ {
		for u := 0; u < bx.Dx(); u++ {
			xv := float64(x.Gray16At(bx.Min.X+u, bx.Min.Y+v).Y)
			yv := float64(y.Gray16At(by.Min.X+u, by.Min.Y+v).Y)
			d := xv - yv
			sum += d * d
		}
	}
	mse := sum / n
	if mse == 0 {
		return math.Inf(1), nil
	}
	maxv := float64(uint64(1)<<uint(bitDepth) - 1)
	return 20*math.Log10(maxv) - 10*math.Log10(mse), nil
}

// ROIPSNR computes PSNR restricted to pixels where mask is true. mask must
// have the same dimensions as x and y.
func ROIPSNR(x, y *image.Gray16, mask [][]bool, bitDepth int) (float64, error) {
	bx, by := x.Bounds(), y.Bounds()
	if !sameBounds(bx, by) {
		return 0, ErrShapeMismatch
	}
	if len(mask) != bx.Dy() {
		return 0, ErrShapeMismatch
	}
	var sum float64
	var count float64
	for v := 0; v < bx.Dy(); v++ {
		if len(mask[v]) != bx.Dx() {
			return 0, ErrShapeMismatch
		}
		for u := 0; u < bx.Dx(); u++ {
			if !mask[v][u] {
				continue
			}
			xv := float64(x.Gray16At(bx.Min.X+u, bx.Min.Y+v).Y)
			yv := float64(y.Gray16At(by.Min.X+u, by.Min.Y+v).Y)
			d := xv - yv
			sum += d * d
			count++
		}
	}
	if count == 0 {
		return 0, ErrEmptyROI
	}
	mse := sum / count
	if mse == 0 {
		return math.Inf(1), nil
	}
	maxv := float64(uint64(1)<<uint(bitDepth) - 1)
	return 20*math.Log10(maxv) - 10*math.Log10(mse), nil
}
