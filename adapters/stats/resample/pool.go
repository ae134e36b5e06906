package resample

import (
	"context"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"

	"photonlag/internal/errors"
	"photonlag/ports"
)

// Trial computes one resampled statistic. buf is scratch space owned by the
// calling chunk and reused across its trials.
type Trial func(rng *rand.Rand, buf []float64) float64

// Pool runs resampling trials in fixed-size chunks. Each chunk draws from
// its own stream keyed by chunk index, so results depend on the seed and
// the trial count only, never on the number of workers.
type Pool struct {
	rng       ports.RNGPort
	workers   int
	chunkSize int
}

// NewPool creates a pool. workers <= 0 uses GOMAXPROCS.
func NewPool(rng ports.RNGPort, workers, chunkSize int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if chunkSize <= 0 {
		chunkSize = 256
	}
	return &Pool{rng: rng, workers: workers, chunkSize: chunkSize}
}

// Workers returns the concurrency limit
func (p *Pool) Workers() int { return p.workers }

// Map runs n trials and returns their values indexed by trial. A context
// that ends before every chunk finished yields an INCOMPLETE error and no
// partial values.
func (p *Pool) Map(ctx context.Context, stream string, n, bufLen int, trial Trial) ([]float64, error) {
	if n <= 0 {
		return nil, nil
	}
	out := make([]float64, n)
	chunks := (n + p.chunkSize - 1) / p.chunkSize

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for c := 0; c < chunks; c++ {
		if gctx.Err() != nil {
			break
		}
		c := c
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := p.rng.Stream(stream, c)
			buf := make([]float64, bufLen)
			start := c * p.chunkSize
			end := start + p.chunkSize
			if end > n {
				end = n
			}
			for i := start; i < end; i++ {
				out[i] = trial(rng, buf)
			}
			return nil
		})
	}
	err := g.Wait()
	if ctx.Err() != nil {
		return nil, errors.Incomplete("resampling", ctx.Err())
	}
	if err != nil {
		return nil, errors.Wrap(err, "resampling failed")
	}
	return out, nil
}
