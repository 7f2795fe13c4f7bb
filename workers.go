package neural

import "sync"

// workers process channels beyond the first on their own goroutines.
type workers struct {
	jobs []chan []float32
	done chan struct{}
	quit chan struct{}
	wg   sync.WaitGroup
}

func startWorkers(p *Processor, chans []*channel) *workers {
	w := &workers{
		jobs: make([]chan []float32, len(chans)-1),
		done: make(chan struct{}, len(chans)-1),
		quit: make(chan struct{}),
	}
	for i := range w.jobs {
		w.jobs[i] = make(chan []float32, 1)
		w.wg.Add(1)
		go w.run(p, chans[i+1], w.jobs[i])
	}
	return w
}

func (w *workers) run(p *Processor, ch *channel, jobs <-chan []float32) {
	defer w.wg.Done()
	for {
		select {
		case samples := <-jobs:
			p.processChannel(ch, samples)
			w.done <- struct{}{}
		case <-w.quit:
			return
		}
	}
}

// process runs the first channel on the calling goroutine and waits
// until workers are done with the rest.
func (w *workers) process(p *Processor, block [][]float32) {
	for c := 1; c < len(block); c++ {
		w.jobs[c-1] <- block[c]
	}
	p.processChannel(p.channels[0], block[0])
	for c := 1; c < len(block); c++ {
		<-w.done
	}
}

func (w *workers) stop() {
	close(w.quit)
	w.wg.Wait()
}
