package vkfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

func TestImportEntityResourcesBindsEveryBuffer(t *testing.T) {
	g, _, _ := newTestGraph()
	reg, err := NewResourceRegistry(&fakeEntities{count: 8})
	require.NoError(t, err)

	require.NoError(t, reg.ImportEntityResources(g))

	movement := reg.MovementData()
	assert.NotEqual(t, InvalidResource, movement.Velocity)
	assert.NotEqual(t, InvalidResource, movement.MovementParams)
	assert.NotEqual(t, InvalidResource, movement.RuntimeState)

	physics := reg.PhysicsData()
	for _, id := range []ResourceId{
		physics.Position, physics.CurrentPosition, physics.TargetPosition,
		physics.ParticleVelocity, physics.ParticleInvMass, physics.BodyData,
		physics.BodyParams, physics.DistanceConstraint, physics.SpatialMap,
		physics.SpatialNext, physics.Velocity, physics.ControlParams,
		physics.RuntimeState,
	} {
		assert.NotEqual(t, InvalidResource, id)
	}

	graphics := reg.GraphicsData()
	assert.NotEqual(t, InvalidResource, graphics.Position)
	assert.NotEqual(t, InvalidResource, graphics.Color)

	// Movement and physics share the velocity buffer by id.
	assert.Equal(t, movement.Velocity, physics.Velocity)
	assert.Equal(t, physics.Position, graphics.Position)
}

func TestImportEntityResourcesIsIdempotent(t *testing.T) {
	g, _, _ := newTestGraph()
	reg, err := NewResourceRegistry(&fakeEntities{count: 8})
	require.NoError(t, err)

	require.NoError(t, reg.ImportEntityResources(g))
	velocity := reg.VelocityId()

	require.NoError(t, reg.ImportEntityResources(g))
	assert.Equal(t, velocity, reg.VelocityId())
}

type nullBufferEntities struct {
	fakeEntities
}

func (e *nullBufferEntities) Buffers() EntityBuffers {
	b := e.fakeEntities.Buffers()
	b.SpatialMap = EntityBuffer{Buffer: vk.NullBuffer}
	return b
}

func TestImportEntityResourcesRejectsNullBuffer(t *testing.T) {
	g, _, _ := newTestGraph()
	reg, err := NewResourceRegistry(&nullBufferEntities{})
	require.NoError(t, err)

	err = reg.ImportEntityResources(g)
	assert.ErrorContains(t, err, "spatial-map")
}
