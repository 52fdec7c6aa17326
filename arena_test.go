package vkfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlignUp(t *testing.T) {
	assert.Equal(t, uint64(0), alignUp(0, 256))
	assert.Equal(t, uint64(256), alignUp(1, 256))
	assert.Equal(t, uint64(256), alignUp(256, 256))
	assert.Equal(t, uint64(512), alignUp(257, 256))
}

func TestBlockAllocatorSequential(t *testing.T) {
	p := &blockAllocator{size: 1024}

	a := p.allocate(256, 1)
	require.NotNil(t, a)
	assert.Equal(t, uint64(0), a.Offset)

	b := p.allocate(256, 1)
	require.NotNil(t, b)
	assert.Equal(t, uint64(256), b.Offset)

	c := p.allocate(512, 1)
	require.NotNil(t, c)
	assert.Equal(t, uint64(512), c.Offset)

	assert.Nil(t, p.allocate(1, 1), "arena is full")
}

func TestBlockAllocatorAlignment(t *testing.T) {
	p := &blockAllocator{size: 1024}

	a := p.allocate(10, 1)
	require.NotNil(t, a)

	b := p.allocate(100, 256)
	require.NotNil(t, b)
	assert.Equal(t, uint64(256), b.Offset)
}

func TestBlockAllocatorReusesFreedGap(t *testing.T) {
	p := &blockAllocator{size: 1024}

	a := p.allocate(256, 1)
	b := p.allocate(256, 1)
	c := p.allocate(256, 1)
	require.NotNil(t, a)
	require.NotNil(t, b)
	require.NotNil(t, c)

	p.free(b)
	d := p.allocate(256, 1)
	require.NotNil(t, d)
	assert.Equal(t, uint64(256), d.Offset)
}

func TestBlockAllocatorFreeHeadReusesFront(t *testing.T) {
	p := &blockAllocator{size: 1024}

	a := p.allocate(128, 1)
	b := p.allocate(128, 1)
	require.NotNil(t, a)
	require.NotNil(t, b)

	p.free(a)
	c := p.allocate(64, 1)
	require.NotNil(t, c)
	assert.Equal(t, uint64(0), c.Offset)
}

func TestBlockAllocatorRejectsOversized(t *testing.T) {
	p := &blockAllocator{size: 1024}
	assert.Nil(t, p.allocate(0, 1))
	assert.Nil(t, p.allocate(2048, 1))
}
