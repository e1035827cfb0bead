package asyncscalr

import (
	"fmt"
	"image"
	"os"
	"strconv"
	"sync"

	"github.com/thebuzzmedia/imgscalr-go/core"
)

// ThreadCountEnv is the environment variable read once by the package-level
// default façade to size its worker pools.
const ThreadCountEnv = "IMGSCALR_ASYNC_THREAD_COUNT"

// DefaultThreadCount is the worker count used when ThreadCountEnv is unset.
// Scaling is CPU-bound; two workers is a deliberately conservative default
// for hosts that also run other work.
const DefaultThreadCount = 2

// threadCountFromEnv reads and validates the configured thread count.
// A malformed or non-positive value is a configuration error, not a fallback
// to the default: running with silently wrong sizing hides real
// misconfiguration.
func threadCountFromEnv() (int, error) {
	raw := os.Getenv(ThreadCountEnv)
	if raw == "" {
		return DefaultThreadCount, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid thread count %q: %w", ThreadCountEnv, raw, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be > 0, got %d", ThreadCountEnv, n)
	}
	return n, nil
}

// facade lazily builds one Async instance from environment configuration.
// A configuration failure is sticky: it surfaces once at initialization and
// every later use returns the same error, never a per-call variant.
type facade struct {
	once sync.Once
	a    *Async
	err  error
}

func (f *facade) instance() (*Async, error) {
	f.once.Do(func() {
		workers, err := threadCountFromEnv()
		if err != nil {
			f.err = fmt.Errorf("asyncscalr: %w", err)
			return
		}
		f.a, f.err = New(WithWorkers(workers))
	})
	return f.a, f.err
}

var std facade

// Default returns the process-wide façade, built on first use from
// ThreadCountEnv. An invalid configuration makes the default façade
// permanently unusable and is reported by every call.
func Default() (*Async, error) {
	return std.instance()
}

// Resize submits a scale operation through the process-wide façade.
func Resize(src image.Image, o ResizeOptions) (*core.Handle, error) {
	a, err := Default()
	if err != nil {
		return nil, err
	}
	return a.Resize(src, o)
}

// GetPool returns the process-wide façade's current pool reference.
func GetPool() (core.Pool, error) {
	a, err := Default()
	if err != nil {
		return nil, err
	}
	return a.Pool(), nil
}

// SetPool substitutes the process-wide façade's pool.
func SetPool(p core.Pool) error {
	a, err := Default()
	if err != nil {
		return err
	}
	a.SetPool(p)
	return nil
}
