package tensor

import (
	"runtime"
	"sync"
)

// minParallelRows is the smallest row count worth splitting across workers.
const minParallelRows = 64

type rowTask struct {
	fn     func(rs, re int)
	rs, re int
	done   chan struct{}
}

type rowPool struct {
	size      int
	tasks     chan rowTask
	doneSlots chan chan struct{}
}

var (
	rowWorkPool *rowPool
	rowPoolOnce sync.Once
)

func getRowPool() *rowPool {
	rowPoolOnce.Do(func() {
		rowWorkPool = newRowPool(runtime.GOMAXPROCS(0))
	})
	return rowWorkPool
}

func newRowPool(size int) *rowPool {
	if size < 1 {
		size = 1
	}
	p := &rowPool{
		size:      size,
		tasks:     make(chan rowTask, size*2),
		doneSlots: make(chan chan struct{}, size),
	}
	for i := 0; i < size; i++ {
		p.doneSlots <- make(chan struct{}, size)
	}
	for i := 0; i < size; i++ {
		go func() {
			for task := range p.tasks {
				task.fn(task.rs, task.re)
				task.done <- struct{}{}
			}
		}()
	}
	return p
}

// ParallelRows calls fn over disjoint [rs, re) ranges covering [0, n) and
// returns once every range is done. Small n runs inline on the caller.
func ParallelRows(n int, fn func(rs, re int)) {
	if n <= 0 {
		return
	}
	if n < minParallelRows {
		fn(0, n)
		return
	}
	getRowPool().run(n, fn)
}

func (p *rowPool) run(n int, fn func(rs, re int)) {
	workers := min(p.size, n)
	if workers <= 1 {
		fn(0, n)
		return
	}

	chunk := (n + workers - 1) / workers
	done := <-p.doneSlots

	active := 0
	for i := 0; i < workers; i++ {
		rs := i * chunk
		re := min(rs+chunk, n)
		if rs >= re {
			break
		}
		active++
		p.tasks <- rowTask{fn: fn, rs: rs, re: re, done: done}
	}
	for i := 0; i < active; i++ {
		<-done
	}
	p.doneSlots <- done
}

// MatVec computes dst = m * x where m is R x C, x has length C and dst has
// length R. Rows are split across the shared worker pool.
func MatVec(dst []float32, m *Mat, x []float32) {
	if m.R == 0 || m.C == 0 {
		return
	}
	if len(dst) < m.R || len(x) < m.C {
		panic("matvec shape mismatch")
	}
	ParallelRows(m.R, func(rs, re int) {
		matVecRange(dst, m, x, rs, re)
	})
}

func matVecRange(dst []float32, m *Mat, x []float32, rs, re int) {
	for i := rs; i < re; i++ {
		row := m.Data[i*m.Stride : i*m.Stride+m.C]
		var sum float32
		j := 0
		for ; j+3 < m.C; j += 4 {
			sum += row[j]*x[j] + row[j+1]*x[j+1] + row[j+2]*x[j+2] + row[j+3]*x[j+3]
		}
		for ; j < m.C; j++ {
			sum += row[j] * x[j]
		}
		dst[i] = sum
	}
}
