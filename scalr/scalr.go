// Package scalr implements the synchronous image-scaling routine consumed by
// the asynchronous façade. It mirrors the classic resize semantics: a scaling
// Method picking the interpolation/quality trade-off, a resize Mode picking
// how target dimensions are honored, and an ordered chain of post-processing
// Ops applied after scaling.
//
// Everything here is plain, blocking, CPU-bound work. Concurrency limiting
// belongs to the façade, not to this package.
package scalr

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
)

// Method defines the scaling implementation used to balance speed against
// result quality.
type Method int

const (
	// MethodAuto picks a method from the target size: small thumbnails get
	// high quality, large targets get speed.
	MethodAuto Method = iota

	// MethodSpeed scales as fast as possible (nearest neighbor).
	MethodSpeed

	// MethodBalanced trades a little quality for a lot of speed.
	MethodBalanced

	// MethodQuality produces a good-looking result at moderate cost.
	MethodQuality

	// MethodUltraQuality is the slowest, best-looking scaling.
	MethodUltraQuality
)

// Mode defines how the target dimensions are applied to the source image.
type Mode int

const (
	// ModeAuto honors the image's orientation: primary dimension is width
	// for landscape/square images and height for portraits. Aspect ratio is
	// always preserved.
	ModeAuto Mode = iota

	// ModeFitExact scales to exactly the given dimensions, ignoring the
	// source aspect ratio.
	ModeFitExact

	// ModeFitToWidth honors the target width; height follows the ratio.
	ModeFitToWidth

	// ModeFitToHeight honors the target height; width follows the ratio.
	ModeFitToHeight
)

// Target sizes at or below these thresholds bump MethodAuto up a quality
// level: small results show artifacts much more than large ones.
const (
	thresholdQualityBalanced = 800
	thresholdBalancedSpeed   = 1600
)

// ArgumentError reports an invalid argument to Resize. It is the deferred
// failure callers observe through a handle when they submit bad input.
type ArgumentError struct {
	Reason string
}

func (e *ArgumentError) Error() string {
	return "scalr: " + e.Reason
}

// ErrNilSource is returned when the source image is nil.
var ErrNilSource = &ArgumentError{Reason: "source image must not be nil"}

// Resize scales src to the given target dimensions using the given method
// and mode, then applies ops in order. It returns an *ArgumentError for a
// nil source, non-positive dimensions, or an unknown method or mode.
func Resize(src image.Image, method Method, mode Mode, targetWidth, targetHeight int, ops ...Op) (image.Image, error) {
	if src == nil {
		return nil, ErrNilSource
	}
	if targetWidth <= 0 {
		return nil, &ArgumentError{Reason: fmt.Sprintf("targetWidth must be > 0, got %d", targetWidth)}
	}
	if targetHeight <= 0 {
		return nil, &ArgumentError{Reason: fmt.Sprintf("targetHeight must be > 0, got %d", targetHeight)}
	}
	if method < MethodAuto || method > MethodUltraQuality {
		return nil, &ArgumentError{Reason: fmt.Sprintf("unknown method %d", method)}
	}
	if mode < ModeAuto || mode > ModeFitToHeight {
		return nil, &ArgumentError{Reason: fmt.Sprintf("unknown mode %d", mode)}
	}

	bounds := src.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW == 0 || srcH == 0 {
		return nil, &ArgumentError{Reason: "source image has no pixels"}
	}

	dstW, dstH := fitDimensions(mode, srcW, srcH, targetWidth, targetHeight)

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	interpolator(method, dstW, dstH).Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)

	var out image.Image = dst
	for _, op := range ops {
		var err error
		if out, err = op(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// fitDimensions resolves the final dimensions per Mode, preserving the source
// aspect ratio in every mode but ModeFitExact.
func fitDimensions(mode Mode, srcW, srcH, targetWidth, targetHeight int) (int, int) {
	if mode == ModeAuto {
		if srcW >= srcH {
			mode = ModeFitToWidth
		} else {
			mode = ModeFitToHeight
		}
	}

	ratio := float64(srcH) / float64(srcW)
	switch mode {
	case ModeFitToWidth:
		return targetWidth, atLeastOne(math.Round(float64(targetWidth) * ratio))
	case ModeFitToHeight:
		return atLeastOne(math.Round(float64(targetHeight) / ratio)), targetHeight
	default: // ModeFitExact
		return targetWidth, targetHeight
	}
}

func atLeastOne(v float64) int {
	if v < 1 {
		return 1
	}
	return int(v)
}

// interpolator maps a Method to its x/image/draw scaler. MethodAuto resolves
// by the larger target dimension against the quality thresholds.
func interpolator(method Method, dstW, dstH int) draw.Scaler {
	if method == MethodAuto {
		length := dstW
		if dstH > length {
			length = dstH
		}
		switch {
		case length <= thresholdQualityBalanced:
			method = MethodQuality
		case length <= thresholdBalancedSpeed:
			method = MethodBalanced
		default:
			method = MethodSpeed
		}
	}

	switch method {
	case MethodSpeed:
		return draw.NearestNeighbor
	case MethodBalanced:
		return draw.ApproxBiLinear
	case MethodUltraQuality:
		return draw.CatmullRom
	default:
		return draw.BiLinear
	}
}
