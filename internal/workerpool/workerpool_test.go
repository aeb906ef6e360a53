package workerpool_test

import (
	"sync/atomic"
	"testing"

	"go.viam.com/test"

	"go.viam.com/slam-backend/internal/workerpool"
)

func TestPoolRunsAllSubmittedJobs(t *testing.T) {
	p := workerpool.New(4)
	var count int64
	const numJobs = 50
	done := make(chan struct{}, numJobs)
	for i := 0; i < numJobs; i++ {
		p.Submit(func() {
			atomic.AddInt64(&count, 1)
			done <- struct{}{}
		})
	}
	for i := 0; i < numJobs; i++ {
		<-done
	}
	p.Close()
	test.That(t, atomic.LoadInt64(&count), test.ShouldEqual, int64(numJobs))
}
