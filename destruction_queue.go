package streamtex

import "sync"

// DestructionQueue holds resources and descriptors whose destruction is
// deferred until the GPU fence that covers their last use completes.
// Contexts funnel DeferResourceDestruction and DeferDescriptorDestruction
// through one of these.
type DestructionQueue struct {
	mu sync.Mutex

	// currentFence is the fence value the next submission will signal.
	// Entries queued now retire once it completes.
	currentFence uint64

	resources   []pendingResource
	descriptors []pendingDescriptor
}

type pendingResource struct {
	fence    uint64
	resource Releasable
}

type pendingDescriptor struct {
	fence  uint64
	heap   *DescriptorHeap
	handle DescriptorHandle
}

// SetCurrentFence sets the fence value newly deferred entries wait on.
func (q *DestructionQueue) SetCurrentFence(fence uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.currentFence = fence
}

// DeferResourceDestruction queues r for release once the current fence
// completes.
func (q *DestructionQueue) DeferResourceDestruction(r Releasable) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.resources = append(q.resources, pendingResource{fence: q.currentFence, resource: r})
}

// DeferDescriptorDestruction queues handle for return to heap once the
// current fence completes. handle is reset to empty immediately so the
// caller cannot double-free it.
func (q *DestructionQueue) DeferDescriptorDestruction(heap *DescriptorHeap, handle *DescriptorHandle) {
	if handle == nil || handle.IsEmpty() {
		return
	}
	q.mu.Lock()
	q.descriptors = append(q.descriptors, pendingDescriptor{fence: q.currentFence, heap: heap, handle: *handle})
	q.mu.Unlock()
	*handle = DescriptorHandle{}
}

// CollectGarbage releases every entry whose fence is at or below
// completedFence.
func (q *DestructionQueue) CollectGarbage(completedFence uint64) {
	q.mu.Lock()
	var resources []pendingResource
	var descriptors []pendingDescriptor
	keepR := q.resources[:0]
	for _, pr := range q.resources {
		if pr.fence <= completedFence {
			resources = append(resources, pr)
		} else {
			keepR = append(keepR, pr)
		}
	}
	q.resources = keepR
	keepD := q.descriptors[:0]
	for _, pd := range q.descriptors {
		if pd.fence <= completedFence {
			descriptors = append(descriptors, pd)
		} else {
			keepD = append(keepD, pd)
		}
	}
	q.descriptors = keepD
	q.mu.Unlock()

	for _, pr := range resources {
		pr.resource.Release()
	}
	for _, pd := range descriptors {
		handle := pd.handle
		pd.heap.Free(&handle)
	}
}

// Flush releases every pending entry regardless of fence progress.
// Only call when the GPU is known to be idle, such as at shutdown.
func (q *DestructionQueue) Flush() {
	q.CollectGarbage(^uint64(0))
}

// PendingCount reports the number of entries still waiting on a fence.
func (q *DestructionQueue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.resources) + len(q.descriptors)
}
