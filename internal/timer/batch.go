package timer

import (
	"fmt"
	"time"
)

// Batch groups cancels and one-shot registrations so the loop applies them in
// a single step: no job can fire between the first and the last operation.
type Batch struct {
	e   *Engine
	ops []op
}

func (e *Engine) Batch() *Batch {
	return &Batch{e: e}
}

func (b *Batch) ScheduleAt(at time.Time, fn Func) (Handle, error) {
	if fn == nil {
		return 0, fmt.Errorf("%w: callback must not be nil", ErrInvalidInput)
	}
	h := b.e.newHandle()
	b.ops = append(b.ops, func(s *state) {
		s.push(&job{handle: h, at: at, fn: fn})
	})
	return h, nil
}

func (b *Batch) Cancel(h Handle) {
	b.ops = append(b.ops, func(s *state) { s.remove(h) })
}

// Commit hands the batch to the engine. An empty batch is a no-op.
func (b *Batch) Commit() {
	if len(b.ops) == 0 {
		return
	}
	ops := b.ops
	b.ops = nil
	b.e.submit(func(s *state) {
		for _, o := range ops {
			o(s)
		}
	})
}
