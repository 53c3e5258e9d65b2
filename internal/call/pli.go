package call

import (
	"context"
	"time"
)

// StartPLILoop asks the remote for a keyframe every interval. It returns
// when ctx ends, when resolve yields nil, or on the first failed request.
func StartPLILoop(ctx context.Context, interval time.Duration, resolve func() KeyframeRequester) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	defer log.Debugf("🛑 PLI loop stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r := resolve()
			if r == nil {
				return
			}
			if err := r.RequestKeyframe(); err != nil {
				log.Warnf("⚠️  PLI failed, stopping: %v", err)
				return
			}
		}
	}
}
