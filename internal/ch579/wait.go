package ch579

import (
	"context"
	"fmt"

	"github.com/golang/glog"

	"github.com/bigbag/ch579-flasher/internal/target"
)

// ProgressFunc is called once per status poll during long operations.
type ProgressFunc func()

// WaitReady polls the flash status register until the controller reports
// ready. A transport error aborts the wait immediately.
//
// There is no timeout: a controller that never becomes ready and a link that
// never fails keep WaitReady spinning. Use WaitReadyContext to bound it.
func WaitReady(t target.Target, progress ProgressFunc) error {
	return waitReady(context.Background(), t, progress)
}

// WaitReadyContext is WaitReady that also gives up once ctx is done.
// Transport errors take precedence over cancellation.
func WaitReadyContext(ctx context.Context, t target.Target, progress ProgressFunc) error {
	return waitReady(ctx, t, progress)
}

func waitReady(ctx context.Context, t target.Target, progress ProgressFunc) error {
	polls := 0
	for {
		if err := t.CheckError(); err != nil {
			glog.V(2).Infof("wait ready: transport error after %d polls: %v", polls, err)
			return target.TransportError(err)
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("flash controller busy after %d polls: %w", polls, err)
		}
		status := t.Read16(RegFlashStatus)
		polls++
		if progress != nil {
			progress()
		}
		if uint8(status) == StatusReady {
			// The read itself may have failed and returned garbage.
			if err := t.CheckError(); err != nil {
				return target.TransportError(err)
			}
			glog.V(3).Infof("wait ready: done after %d polls", polls)
			return nil
		}
	}
}
