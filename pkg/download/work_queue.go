package download

import "context"

// workQueue takes work items and executes them serially, in strict FIFO order
type workQueue struct {
	queue chan work
	done  chan struct{}
}

type work func(ctx context.Context)

func newWorkQueue(depth int) *workQueue {
	return &workQueue{queue: make(chan work, depth), done: make(chan struct{})}
}

func (q *workQueue) submit(w work) {
	q.queue <- w
}

func (q *workQueue) start(ctx context.Context) {
	go q.run(ctx)
}

// close stops accepting work and blocks until every submitted item has run.
func (q *workQueue) close() {
	close(q.queue)
	<-q.done
}

func (q *workQueue) run(ctx context.Context) {
	defer close(q.done)
	for item := range q.queue {
		item(ctx)
	}
}
