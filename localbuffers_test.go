package tephra

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tephra-gpu/tephra/alias"
	"github.com/tephra-gpu/tephra/vk/fake"
)

func newTestBufferDevice(t *testing.T) *Device {
	t.Helper()
	return NewDevice(fake.New(), 1, DefaultDeviceConfig)
}

// §4.2 — two job-local buffers with disjoint usage ranges share one backing.
func TestLocalBufferAllocatorSharesDisjointUsageRanges(t *testing.T) {
	d := newTestBufferDevice(t)
	a := newLocalBufferAllocator(d, true)

	r1 := &JobLocalBuffer{setup: BufferSetup{Size: 256, Usage: UsageStorage}, usage: alias.UsageRange{First: 0, Last: 1}}
	r2 := &JobLocalBuffer{setup: BufferSetup{Size: 256, Usage: UsageStorage}, usage: alias.UsageRange{First: 2, Last: 3}}

	require.NoError(t, a.allocateForJob([]*JobLocalBuffer{r1, r2}, queueTimestamps{0: 1}))

	require.NotNil(t, r1.backing)
	require.NotNil(t, r2.backing)
	assert.Same(t, r1.backing, r2.backing, "disjoint usage ranges must alias the same backing")
	assert.Len(t, a.backings, 1)
}

// overlapping usage ranges cannot share the same byte range, even when
// they end up packed into the same backing buffer.
func TestLocalBufferAllocatorSeparatesOverlappingUsage(t *testing.T) {
	d := newTestBufferDevice(t)
	a := newLocalBufferAllocator(d, true)

	r1 := &JobLocalBuffer{setup: BufferSetup{Size: 256, Usage: UsageStorage}, usage: alias.UsageRange{First: 0, Last: 3}}
	r2 := &JobLocalBuffer{setup: BufferSetup{Size: 256, Usage: UsageStorage}, usage: alias.UsageRange{First: 1, Last: 2}}

	require.NoError(t, a.allocateForJob([]*JobLocalBuffer{r1, r2}, queueTimestamps{0: 1}))

	require.NotNil(t, r1.backing)
	require.NotNil(t, r2.backing)
	assert.NotEqual(t, r1.backingOffset, r2.backingOffset, "overlapping usage ranges must not share a byte offset")
}

// §4.2 "Trim" — a backing last used at or below the reached threshold is
// destroyed and dropped from the pool.
func TestLocalBufferAllocatorTrimDropsFullyReachedBackings(t *testing.T) {
	d := newTestBufferDevice(t)
	a := newLocalBufferAllocator(d, true)

	r := &JobLocalBuffer{setup: BufferSetup{Size: 256, Usage: UsageStorage}, usage: alias.UsageRange{First: 0, Last: 0}}
	require.NoError(t, a.allocateForJob([]*JobLocalBuffer{r}, queueTimestamps{0: 5}))
	require.Len(t, a.backings, 1)

	a.trim(func(q int) uint64 { return 4 })
	assert.Len(t, a.backings, 1, "threshold not yet reached")

	a.trim(func(q int) uint64 { return 5 })
	assert.Len(t, a.backings, 0, "threshold reached: backing must be dropped")
}

// one-to-one mode (suballocation disabled) never aliases two requests into
// the same backing, even when their usage ranges are disjoint.
func TestLocalBufferAllocatorOneToOneNeverAliases(t *testing.T) {
	d := newTestBufferDevice(t)
	a := newLocalBufferAllocator(d, false)

	r1 := &JobLocalBuffer{setup: BufferSetup{Size: 256, Usage: UsageStorage}, usage: alias.UsageRange{First: 0, Last: 1}}
	r2 := &JobLocalBuffer{setup: BufferSetup{Size: 256, Usage: UsageStorage}, usage: alias.UsageRange{First: 2, Last: 3}}

	require.NoError(t, a.allocateForJob([]*JobLocalBuffer{r1, r2}, queueTimestamps{0: 1}))
	assert.NotSame(t, r1.backing, r2.backing)
	assert.Len(t, a.backings, 2)
}
