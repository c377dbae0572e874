package core

import (
	"context"

	"github.com/yanun0323/errors"

	"hftsim/internal/market"
)

// Replay drives the simulator and the coordinator on the calling goroutine.
// Each admitted order is matched right after the tick that produced it, so
// a fixed seed yields the same run every time. It stops once the simulator
// is done or ctx is cancelled.
func Replay(ctx context.Context, sim *market.Simulator, c *Coordinator) error {
	for !sim.Done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, tick := range sim.Step() {
			for _, order := range c.HandleTick(tick) {
				fill, err := sim.Match(order)
				if err != nil {
					return errors.Wrapf(err, "match order %d", order.ID)
				}
				c.HandleFill(fill)
			}
		}
	}
	return nil
}
