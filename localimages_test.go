package tephra

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tephra-gpu/tephra/alias"
	"github.com/tephra-gpu/tephra/vk/fake"
)

func newTestImageDevice(t *testing.T) *Device {
	t.Helper()
	return NewDevice(fake.New(), 1, DefaultDeviceConfig)
}

func testImageSetup() ImageSetup {
	return ImageSetup{Kind: Image2D, Width: 64, Height: 64, ArrayLayers: 1, Format: Format(37)}.normalize()
}

// §4.3 — a later job's image with disjoint usage reuses free layer
// capacity left behind in an earlier job's backing of the same class,
// instead of allocating a new one.
func TestLocalImageAllocatorReusesBackingAcrossJobs(t *testing.T) {
	d := newTestImageDevice(t)
	a := newLocalImageAllocator(d, true, false)

	setup := testImageSetup()
	setup.ArrayLayers = 4

	first := &JobLocalImage{setup: setup, usage: alias.UsageRange{First: 0, Last: 0}}
	require.NoError(t, a.allocateForJob([]*JobLocalImage{first}, queueTimestamps{0: 1}))
	require.NotNil(t, first.backing)

	laterSetup := setup
	laterSetup.ArrayLayers = 1
	later := &JobLocalImage{setup: laterSetup, usage: alias.UsageRange{First: 1, Last: 1}}
	require.NoError(t, a.allocateForJob([]*JobLocalImage{later}, queueTimestamps{0: 2}))

	require.NotNil(t, later.backing)
	assert.Same(t, first.backing, later.backing, "disjoint-in-time request must reuse the existing class backing")
}

// §4.3 — 3D images always get their own backing, never aliased.
func TestLocalImageAllocator3DNeverAliases(t *testing.T) {
	d := newTestImageDevice(t)
	a := newLocalImageAllocator(d, true, false)

	setup := ImageSetup{Kind: Image3D, Width: 16, Height: 16, Depth: 4, Format: Format(37)}.normalize()
	r1 := &JobLocalImage{setup: setup, usage: alias.UsageRange{First: 0, Last: 1}}
	r2 := &JobLocalImage{setup: setup, usage: alias.UsageRange{First: 2, Last: 3}}

	require.NoError(t, a.allocateForJob([]*JobLocalImage{r1, r2}, queueTimestamps{0: 1}))

	require.NotNil(t, r1.backing)
	require.NotNil(t, r2.backing)
	assert.NotSame(t, r1.backing, r2.backing)
}

// §4.7 trim — a class's backing is dropped once its last-used timestamp is
// reached, but unrelated classes are untouched.
func TestLocalImageAllocatorTrimIsPerClass(t *testing.T) {
	d := newTestImageDevice(t)
	a := newLocalImageAllocator(d, true, false)

	setupA := testImageSetup()
	setupB := testImageSetup()
	setupB.Width = 128

	reqA := &JobLocalImage{setup: setupA, usage: alias.UsageRange{First: 0, Last: 0}}
	reqB := &JobLocalImage{setup: setupB, usage: alias.UsageRange{First: 0, Last: 0}}
	require.NoError(t, a.allocateForJob([]*JobLocalImage{reqA}, queueTimestamps{0: 1}))
	require.NoError(t, a.allocateForJob([]*JobLocalImage{reqB}, queueTimestamps{0: 9}))

	assert.Equal(t, 2, a.classes.Len())

	a.trim(func(q int) uint64 { return 1 })

	classA, ok := a.classes.ValueByKeyTry(classOf(setupA, false))
	require.True(t, ok)
	assert.Empty(t, classA.backings, "class A's backing was reached and must be dropped")

	classB, ok := a.classes.ValueByKeyTry(classOf(setupB, false))
	require.True(t, ok)
	assert.Len(t, classB.backings, 1, "class B's backing has not been reached yet")
}
