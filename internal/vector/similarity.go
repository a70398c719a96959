package vector

import "container/heap"

// InnerProduct returns the inner product of two vectors (for normalized vectors equals cosine similarity).
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

type scored struct {
	ordinal int
	score   float64
}

// better orders by descending score, then ascending insertion ordinal.
func better(a, b scored) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	return a.ordinal < b.ordinal
}

// topK keeps the k best candidates; its root is the worst kept candidate.
type topK []scored

func (h topK) Len() int            { return len(h) }
func (h topK) Less(i, j int) bool  { return better(h[j], h[i]) }
func (h topK) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *topK) Push(x interface{}) { *h = append(*h, x.(scored)) }
func (h *topK) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func (h *topK) offer(c scored, k int) {
	if h.Len() < k {
		heap.Push(h, c)
		return
	}
	if better(c, (*h)[0]) {
		(*h)[0] = c
		heap.Fix(h, 0)
	}
}

// sorted drains the heap best-first.
func (h *topK) sorted() []scored {
	out := make([]scored, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(scored)
	}
	return out
}
