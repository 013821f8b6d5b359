package timer

import "container/heap"

// jobHeap is a min-heap on (at, seq); seq keeps ties in registration order.
type jobHeap []*job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *jobHeap) Push(x any) {
	j := x.(*job)
	j.index = len(*h)
	*h = append(*h, j)
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	j.index = -1
	*h = old[:n-1]
	return j
}

// state is owned by the engine loop; nothing else touches it.
type state struct {
	h    jobHeap
	jobs map[Handle]*job
	seq  uint64
}

func newState() *state {
	return &state{jobs: make(map[Handle]*job)}
}

func (s *state) push(j *job) {
	s.seq++
	j.seq = s.seq
	s.jobs[j.handle] = j
	heap.Push(&s.h, j)
}

// remove drops the job for h. It reports false for unknown handles.
func (s *state) remove(h Handle) bool {
	j, ok := s.jobs[h]
	if !ok {
		return false
	}
	delete(s.jobs, h)
	if j.index >= 0 {
		heap.Remove(&s.h, j.index)
	}
	return true
}

func (s *state) peek() *job {
	if len(s.h) == 0 {
		return nil
	}
	return s.h[0]
}

func (s *state) pop() *job {
	return heap.Pop(&s.h).(*job)
}
