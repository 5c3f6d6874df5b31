package app

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/notify"
	"github.com/ayusman/mudra/internal/sensor"
)

// TickInterval is how often Run advances the countdown between frames.
const TickInterval = 100 * time.Millisecond

// Feed processes one frame. See FeedContext.
func (s *Session) Feed(frame gesture.Frame) (gesture.Result, error) {
	return s.FeedContext(context.Background(), frame)
}

// FeedContext processes one frame:
//  1. The frame is offered to the live buffer, which may reject or decimate it.
//     While capturing, an overflowing buffer is committed.
//  2. When idle, the buffer is recognized against the library, bounded by the
//     recognizer's frame budget. An attempt that runs out of time is skipped.
//  3. On a match the buffer is cleared, so the same motion does not trigger
//     twice, and a match event is emitted.
func (s *Session) FeedContext(ctx context.Context, frame gesture.Frame) (gesture.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.buffer.Append(frame); err != nil {
		return gesture.Unknown, err
	}

	if s.buffer.State() != capture.Idle || s.buffer.Len() == 0 {
		return gesture.Unknown, nil
	}

	rctx := ctx
	if s.budget > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, s.budget)
		defer cancel()
	}

	res, err := s.recognizer.RecognizeContext(rctx, s.buffer.Snapshot())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			logging.FromContext(ctx).Debugw("recognition skipped, frame budget exceeded", "budget", s.budget)
			return gesture.Unknown, nil
		}
		return gesture.Unknown, err
	}
	if !res.Matched() {
		return res, nil
	}

	s.buffer.Clear()
	s.last = res
	s.emit(notify.Event{Kind: notify.KindMatch, Gesture: res.Name, Distance: res.Distance})

	return res, nil
}

// Run feeds frames from src until it is exhausted or ctx is done. Rejected
// frames are logged and skipped. A ticker advances the countdown while no
// frames arrive.
func (s *Session) Run(ctx context.Context, src sensor.Source) error {
	logger := logging.FromContext(ctx)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan gesture.Frame)
	errc := make(chan error, 1)
	go func() {
		for {
			frame, err := src.Next(ctx)
			if err != nil {
				errc <- err
				return
			}
			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			s.Tick()

		case frame := <-frames:
			res, err := s.FeedContext(ctx, frame)
			if err != nil {
				logger.Warnw("frame rejected", "error", err)
				continue
			}
			if res.Matched() {
				logger.Infow("gesture recognized", "name", res.Name, "distance", res.Distance)
			}

		case err := <-errc:
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}
