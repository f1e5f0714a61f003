package logging

import (
	"fmt"
	"os"
	"sync"
)

// AsyncFile provides non-blocking file writing capabilities. Writes are
// queued and flushed by a background goroutine; Stop drains the queue before
// closing the file.
type AsyncFile struct {
	file    *os.File
	queue   chan []byte
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// NewAsyncFile creates a new AsyncFile for non-blocking writes.
func NewAsyncFile(path string) (*AsyncFile, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", path, err)
	}

	af := &AsyncFile{
		file:  file,
		queue: make(chan []byte, 100),
	}
	af.wg.Add(1)
	go af.processQueue()
	return af, nil
}

// Write queues data to be written asynchronously.
func (af *AsyncFile) Write(data []byte) error {
	af.mu.Lock()
	defer af.mu.Unlock()

	if af.stopped {
		return fmt.Errorf("async file is closed")
	}

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	af.queue <- dataCopy
	return nil
}

// Stop drains pending writes and closes the file.
func (af *AsyncFile) Stop() {
	af.mu.Lock()
	if af.stopped {
		af.mu.Unlock()
		return
	}
	af.stopped = true
	af.mu.Unlock()

	close(af.queue)
	af.wg.Wait()
	_ = af.file.Close()
}

func (af *AsyncFile) processQueue() {
	defer af.wg.Done()
	for data := range af.queue {
		_, _ = af.file.Write(data)
	}
}
