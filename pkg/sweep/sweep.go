package sweep

import (
	"context"
	"fmt"
	"math"

	"github.com/pkg/errors"

	"github.com/runningwild/diskmark/pkg/analyze"
	"github.com/runningwild/diskmark/pkg/bench"
	"github.com/runningwild/diskmark/pkg/config"
	"github.com/runningwild/diskmark/pkg/engine"
)

// Step holds the phases measured at one block size.
type Step struct {
	BlockSizeKB int                 `json:"block_size_kb"`
	Records     []*engine.RunRecord `json:"records"`
}

// Bandwidth is the average bandwidth used for knee finding: the WRITE
// phase if it ran, otherwise the READ phase.
func (s Step) Bandwidth() float64 {
	if len(s.Records) == 0 {
		return 0
	}
	return s.Records[0].Avg
}

// Sweeper runs the configured session once per block size to find the
// size past which bandwidth stops scaling.
type Sweeper struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Sweeper {
	return &Sweeper{cfg: cfg}
}

func (s *Sweeper) Run(ctx context.Context, r engine.Reporter) ([]Step, analyze.Point, error) {
	sizes := s.cfg.SweepBlockSizesKB
	if len(sizes) == 0 {
		return nil, analyze.Point{}, errors.Wrap(engine.ErrInvalidConfiguration, "no block sizes to sweep")
	}

	var steps []Step
	var points []analyze.Point
	for i, kb := range sizes {
		if ctx.Err() != nil || r.CancellationRequested() {
			break
		}
		cfg := *s.cfg
		cfg.BlockSizeKB = kb

		recs, err := bench.NewSession(&cfg, nil).Run(ctx, r)
		if err != nil {
			return steps, analyze.Point{}, errors.Wrapf(err, "block size %d KB", kb)
		}
		step := Step{BlockSizeKB: kb, Records: recs}
		if len(recs) == 0 || recs[0].State != engine.Completed.String() {
			break
		}
		steps = append(steps, step)

		r.ReportLog(fmt.Sprintf("[%d/%d] block size %d KB -> %.2f MB/s", i+1, len(sizes), kb, step.Bandwidth()))

		// Block sizes are usually geometric, so the curve is fitted on a log scale.
		points = append(points, analyze.Point{
			X:     math.Log2(float64(kb)),
			Y:     step.Bandwidth(),
			Label: kb,
		})
	}

	return steps, analyze.FindKnee(points), nil
}
