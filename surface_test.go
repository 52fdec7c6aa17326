package vkfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSurfaceRequiresCollaborators(t *testing.T) {
	_, err := NewPresentationSurface(nil, nil, &fakeSync{})
	assert.Error(t, err)
	_, err = NewPresentationSurface(nil, &fakeSwapchainTarget{}, nil)
	assert.Error(t, err)
}

func TestSurfaceRefusesAcquireDuringRecreation(t *testing.T) {
	p, err := NewPresentationSurface(nil, &fakeSwapchainTarget{}, &fakeSync{})
	require.NoError(t, err)

	p.BeginRecreation()
	assert.True(t, p.RecreationInProgress())

	res := p.AcquireNextImage(0)
	assert.False(t, res.Success)
	assert.True(t, res.RecreationNeeded)

	p.EndRecreation()
	assert.False(t, p.RecreationInProgress())
}

func TestSurfaceRefusesReentrantAcquire(t *testing.T) {
	p, err := NewPresentationSurface(nil, &fakeSwapchainTarget{}, &fakeSync{})
	require.NoError(t, err)

	p.acquisitionInProgress = true
	res := p.AcquireNextImage(0)
	assert.False(t, res.Success)
	assert.False(t, res.RecreationNeeded)
}
