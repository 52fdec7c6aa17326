package vkfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

type fakeSync struct{}

func (s *fakeSync) ImageAvailableSemaphore(uint32) vk.Semaphore { return vk.NullSemaphore }
func (s *fakeSync) RenderFinishedSemaphore(uint32) vk.Semaphore { return vk.NullSemaphore }
func (s *fakeSync) ComputeFinishedSemaphore(uint32) vk.Semaphore {
	return vk.NullSemaphore
}
func (s *fakeSync) InFlightFence(uint32) vk.Fence { return vk.NullFence }
func (s *fakeSync) ComputeFence(uint32) vk.Fence  { return vk.NullFence }

func TestFrameStateStartsFullyUsed(t *testing.T) {
	m, err := NewFrameStateManager(nil, &fakeSync{})
	require.NoError(t, err)

	for i := uint32(0); i < MaxFramesInFlight; i++ {
		assert.True(t, m.ComputeUsed(i))
		assert.True(t, m.GraphicsUsed(i))
	}
}

func TestFrameStateRequiresSyncProvider(t *testing.T) {
	_, err := NewFrameStateManager(nil, nil)
	assert.Error(t, err)
}

func TestMarkFrameUsageTracksPerSlot(t *testing.T) {
	m, err := NewFrameStateManager(nil, &fakeSync{})
	require.NoError(t, err)

	m.MarkFrameUsage(0, ExecutionResult{ComputeUsed: true, GraphicsUsed: false})
	m.MarkFrameUsage(1, ExecutionResult{ComputeUsed: false, GraphicsUsed: true})

	assert.True(t, m.ComputeUsed(0))
	assert.False(t, m.GraphicsUsed(0))
	assert.False(t, m.ComputeUsed(1))
	assert.True(t, m.GraphicsUsed(1))

	// Frame indices wrap onto the same slots.
	assert.True(t, m.ComputeUsed(MaxFramesInFlight))
	assert.True(t, m.GraphicsUsed(MaxFramesInFlight+1))
}

func TestWaitForFrameUnusedSlotIsImmediate(t *testing.T) {
	m, err := NewFrameStateManager(nil, &fakeSync{})
	require.NoError(t, err)

	// A slot whose last frame submitted nothing has no fences to wait.
	m.MarkFrameUsage(0, ExecutionResult{})
	assert.NoError(t, m.WaitForFrame(0))
}
