package workqueue_test

import (
	"testing"

	"go.viam.com/test"

	"go.viam.com/slam-backend/workqueue"
)

func TestFIFOOrder(t *testing.T) {
	q := workqueue.New()
	test.That(t, q.Empty(), test.ShouldBeTrue)

	var order []int
	q.PushBack(workqueue.KindMisc, func() { order = append(order, 1) })
	q.PushBack(workqueue.KindMisc, func() { order = append(order, 2) })
	q.PushBack(workqueue.KindMisc, func() { order = append(order, 3) })

	test.That(t, q.Len(), test.ShouldEqual, 3)

	for !q.Empty() {
		q.PopFront().Run()
	}
	test.That(t, order, test.ShouldResemble, []int{1, 2, 3})
}

func TestPushDuringDrainIsVisibleAfterwards(t *testing.T) {
	q := workqueue.New()
	var order []int
	q.PushBack(workqueue.KindMisc, func() {
		order = append(order, 1)
		q.PushBack(workqueue.KindMisc, func() { order = append(order, 2) })
	})

	for !q.Empty() {
		q.PopFront().Run()
	}
	test.That(t, order, test.ShouldResemble, []int{1, 2})
}
