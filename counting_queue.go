package main

import "sync"

const countingQueueDepth = 128

// countingMessage is one inbound counting-channel message waiting for
// evaluation.
type countingMessage struct {
	MessageID string
	ChannelID string
	GuildID   string
	AuthorID  string
	Content   string
}

// countingQueue serializes evaluation of counting messages. A single
// worker goroutine drains the channel, so at most one message is ever
// in flight against CountingState and evaluation order matches arrival
// order. Two messages claiming the same next integer therefore cannot
// both be accepted.
type countingQueue struct {
	tasks     chan countingMessage
	handler   func(countingMessage)
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func newCountingQueue(handler func(countingMessage)) *countingQueue {
	q := &countingQueue{
		tasks:   make(chan countingMessage, countingQueueDepth),
		handler: handler,
	}
	q.wg.Add(1)
	go q.worker()
	return q
}

func (q *countingQueue) worker() {
	defer q.wg.Done()
	for task := range q.tasks {
		func(t countingMessage) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("counting queue handler panic", "message_id", t.MessageID, "error", r)
				}
			}()
			q.handler(t)
		}(task)
	}
}

// enqueue blocks when the backlog is full; there is deliberately no
// timeout, a stalled handler stalls the counting channel until it
// resolves.
func (q *countingQueue) enqueue(m countingMessage) {
	q.tasks <- m
}

// close drains outstanding work and stops the worker.
func (q *countingQueue) close() {
	q.closeOnce.Do(func() {
		close(q.tasks)
	})
	q.wg.Wait()
}
