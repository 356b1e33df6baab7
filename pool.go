package jinx

import "sync"

// floatPool recycles scratch vectors by length.
var floatPool = struct {
	sync.Mutex
	pools map[int]*sync.Pool
}{pools: make(map[int]*sync.Pool)}

func poolFor(n int) *sync.Pool {
	floatPool.Lock()
	defer floatPool.Unlock()
	p, ok := floatPool.pools[n]
	if !ok {
		p = &sync.Pool{New: func() interface{} { return make([]float32, n) }}
		floatPool.pools[n] = p
	}
	return p
}

func borrowFloats(n int) []float32 { return poolFor(n).Get().([]float32) }

func returnFloats(a []float32) { poolFor(len(a)).Put(a) }
