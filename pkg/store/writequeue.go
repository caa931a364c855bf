package store

import (
	"context"
	"log"
	"time"

	"github.com/yourusername/chart-render-service/pkg/model"
)

// writeOpType defines the type of write operation
type writeOpType int

const (
	opCreateRun writeOpType = iota
	opDeleteRunsBefore
)

// writeOp represents a single write operation with its response channel
type writeOp struct {
	opType   writeOpType
	data     interface{}
	response chan writeResult
}

// writeResult contains the result of a write operation
type writeResult struct {
	err error
	n   int64 // Rows affected, for delete operations
}

// writeQueue serializes all database writes through one goroutine.
type writeQueue struct {
	queue  chan writeOp
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newWriteQueue(db *Store) *writeQueue {
	ctx, cancel := context.WithCancel(context.Background())
	wq := &writeQueue{
		queue:  make(chan writeOp, 100),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go wq.processQueue(db)
	return wq
}

func (wq *writeQueue) processQueue(db *Store) {
	defer close(wq.done)

	for {
		select {
		case <-wq.ctx.Done():
			// Drain remaining operations before shutting down
			for {
				select {
				case op := <-wq.queue:
					wq.executeOp(db, op)
				default:
					log.Println("[WRITE QUEUE] Shutdown complete")
					return
				}
			}

		case op := <-wq.queue:
			wq.executeOp(db, op)
		}
	}
}

func (wq *writeQueue) executeOp(db *Store, op writeOp) {
	var result writeResult

	switch op.opType {
	case opCreateRun:
		run := op.data.(*model.RunRecord)
		result.err = db.createRunDirect(run)
		result.n = run.ID

	case opDeleteRunsBefore:
		cutoff := op.data.(time.Time)
		result.n, result.err = db.deleteRunsBeforeDirect(cutoff)
	}

	op.response <- result
}

// enqueue adds a write operation to the queue and waits for the result.
func (wq *writeQueue) enqueue(opType writeOpType, data interface{}) error {
	_, err := wq.enqueueCount(opType, data)
	return err
}

// enqueueCount is enqueue for operations that report an affected-row count.
func (wq *writeQueue) enqueueCount(opType writeOpType, data interface{}) (int64, error) {
	response := make(chan writeResult, 1)
	op := writeOp{opType: opType, data: data, response: response}

	select {
	case wq.queue <- op:
	case <-wq.ctx.Done():
		return 0, wq.ctx.Err()
	}

	select {
	case result := <-response:
		return result.n, result.err
	case <-wq.ctx.Done():
		return 0, wq.ctx.Err()
	}
}

func (wq *writeQueue) shutdown() {
	log.Println("[WRITE QUEUE] Shutting down...")
	wq.cancel()
	<-wq.done
}
