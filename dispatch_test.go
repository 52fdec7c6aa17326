package vkfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanDispatchSingle(t *testing.T) {
	// The full entity capacity still fits one dispatch at the default ceiling.
	plan := planDispatch(MaxEntities, MaxWorkgroupsPerChunk, false)
	assert.False(t, plan.refused)
	require.Len(t, plan.chunks, 1)
	assert.Equal(t, uint32(512), plan.chunks[0].groupCount)
	assert.Equal(t, uint32(0), plan.chunks[0].elementOffset)
}

func TestPlanDispatchZeroElements(t *testing.T) {
	plan := planDispatch(0, MaxWorkgroupsPerChunk, false)
	assert.Empty(t, plan.chunks)
	assert.False(t, plan.refused)
}

func TestPlanDispatchRoundsUpPartialWorkgroup(t *testing.T) {
	plan := planDispatch(ThreadsPerWorkgroup+1, MaxWorkgroupsPerChunk, false)
	require.Len(t, plan.chunks, 1)
	assert.Equal(t, uint32(2), plan.chunks[0].groupCount)
}

func TestPlanDispatchChunksCoverEveryWorkgroupOnce(t *testing.T) {
	const elements = 1_000_000
	const ceiling = 512

	plan := planDispatch(elements, ceiling, false)
	require.False(t, plan.refused)
	require.Greater(t, len(plan.chunks), 1)

	wantTotal := uint32((elements + ThreadsPerWorkgroup - 1) / ThreadsPerWorkgroup)
	assert.Equal(t, wantTotal, plan.totalGroups)

	var covered uint32
	var nextOffset uint32
	for _, c := range plan.chunks {
		assert.Equal(t, nextOffset, c.elementOffset, "chunks must be contiguous")
		assert.LessOrEqual(t, c.groupCount, uint32(ceiling))
		assert.Greater(t, c.groupCount, uint32(0))
		covered += c.groupCount
		nextOffset += c.groupCount * ThreadsPerWorkgroup
	}
	assert.Equal(t, wantTotal, covered)
}

func TestPlanDispatchForcedChunkingSplitsSmallWorkload(t *testing.T) {
	plan := planDispatch(4*ThreadsPerWorkgroup, 2, true)
	require.Len(t, plan.chunks, 2)
	assert.Equal(t, uint32(0), plan.chunks[0].elementOffset)
	assert.Equal(t, uint32(2*ThreadsPerWorkgroup), plan.chunks[1].elementOffset)
}

func TestPlanDispatchRefusesOverDeviceLimit(t *testing.T) {
	// A ceiling above the device limit must not let an oversized single
	// dispatch through.
	elements := uint32((MaxDispatchWorkgroups + 1) * ThreadsPerWorkgroup)
	plan := planDispatch(elements, MaxDispatchWorkgroups*2, false)
	assert.True(t, plan.refused)
	assert.Empty(t, plan.chunks)
}

func TestPlanDispatchRefusesOverLimitBeforeChunking(t *testing.T) {
	// The default ceiling would happily split this workload into chunks; the
	// device limit applies to the whole workload, not per chunk.
	elements := uint32((MaxDispatchWorkgroups + 872) * ThreadsPerWorkgroup)

	plan := planDispatch(elements, MaxWorkgroupsPerChunk, false)
	assert.True(t, plan.refused)
	assert.Empty(t, plan.chunks)

	plan = planDispatch(elements, MaxWorkgroupsPerChunk, true)
	assert.True(t, plan.refused)
	assert.Empty(t, plan.chunks)
}

func TestRunDispatchRefusedRecordsNothing(t *testing.T) {
	rec := &fakeRecorder{}
	cmd := fakeCommandBuffer(0)
	plan := dispatchPlan{totalGroups: MaxDispatchWorkgroups + 1, refused: true}

	runDispatch(rec, cmd, computeDispatch{}, plan, "oversized", nil, func(uint32) []byte {
		return make([]byte, 32)
	})
	assert.Empty(t, rec.ops)
}

func TestRunDispatchChunksWithBarriersBetween(t *testing.T) {
	rec := &fakeRecorder{}
	det := newFakeDetector()
	cmd := fakeCommandBuffer(0)

	var offsets []uint32
	plan := planDispatch(3*ThreadsPerWorkgroup, 1, true)
	runDispatch(rec, cmd, computeDispatch{
		pipeline: fakePipeline(1),
		layout:   fakePipelineLayout(2),
		set:      fakeDescriptorSet(3),
	}, plan, "chunked", det, func(offset uint32) []byte {
		offsets = append(offsets, offset)
		return make([]byte, 32)
	})

	assert.Equal(t, 3, rec.count("dispatch"))
	// One barrier between each pair of chunks, none after the last.
	assert.Equal(t, 2, rec.count("barrier"))
	assert.Equal(t, 1, rec.count("bindComputePipeline"))
	assert.Equal(t, []uint32{0, ThreadsPerWorkgroup, 2 * ThreadsPerWorkgroup}, offsets)
	assert.Equal(t, []uint32{1, 1, 1}, det.begins)
	assert.Equal(t, 3, det.ends)
}

func TestEffectiveWorkgroupCeiling(t *testing.T) {
	det := newFakeDetector()

	// Healthy, no recommendation: configured value passes through.
	assert.Equal(t, uint32(MaxWorkgroupsPerChunk), effectiveWorkgroupCeiling(MaxWorkgroupsPerChunk, det))

	// Recommendation lowers the ceiling.
	det.recommendation = RecoveryRecommendation{ShouldReduceWorkload: true, RecommendedMaxWorkgroups: 1024}
	assert.Equal(t, uint32(1024), effectiveWorkgroupCeiling(MaxWorkgroupsPerChunk, det))

	// Unhealthy clamps hard regardless of recommendation.
	det.healthy = false
	det.recommendation = RecoveryRecommendation{}
	assert.Equal(t, uint32(UnhealthyWorkgroupCeiling), effectiveWorkgroupCeiling(MaxWorkgroupsPerChunk, det))

	// Nil detector is a no-op.
	assert.Equal(t, uint32(42), effectiveWorkgroupCeiling(42, nil))
}
