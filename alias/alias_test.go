package alias_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tephra-gpu/tephra/alias"
)

// S1 — two non-overlapping allocations share one backing byte range.
func TestAllocatorSharesDisjointUsageRanges(t *testing.T) {
	a := alias.New([]int{1024})

	b1, o1 := a.Allocate(512, alias.UsageRange{First: 0, Last: 2}, 1)
	b2, o2 := a.Allocate(512, alias.UsageRange{First: 3, Last: 5}, 1)
	b3, o3 := a.Allocate(512, alias.UsageRange{First: 0, Last: 5}, 1)

	assert.Equal(t, 0, b1)
	assert.Equal(t, 0, o1)
	assert.Equal(t, 0, b2)
	assert.Equal(t, 0, o2)
	assert.Equal(t, 0, b3)
	assert.Equal(t, 512, o3)
	assert.Equal(t, 1024, a.UsedSize())
}

// S2 — alignment padding.
func TestAllocatorAlignmentPadding(t *testing.T) {
	a := alias.New([]int{1024})

	b1, o1 := a.Allocate(10, alias.UsageRange{First: 0, Last: 1}, 1)
	b2, o2 := a.Allocate(16, alias.UsageRange{First: 0, Last: 1}, 256)

	assert.Equal(t, 0, b1)
	assert.Equal(t, 0, o1)
	assert.Equal(t, 0, b2)
	assert.Equal(t, 256, o2)
	assert.Equal(t, 272, a.UsedSize())
}

// S3 — overflow to a new backing.
func TestAllocatorOverflowSignalsNotFit(t *testing.T) {
	a := alias.New([]int{128})

	b1, o1 := a.Allocate(64, alias.UsageRange{First: 0, Last: 1}, 1)
	b2, _ := a.Allocate(96, alias.UsageRange{First: 0, Last: 1}, 1)

	assert.Equal(t, 0, b1)
	assert.Equal(t, 0, o1)
	assert.Equal(t, alias.NotFit, b2)
}

func TestAllocatorDeterministic(t *testing.T) {
	run := func() []int {
		a := alias.New([]int{256, 256})
		var out []int
		for i := 0; i < 5; i++ {
			bi, off := a.Allocate(32, alias.UsageRange{First: i, Last: i + 1}, 8)
			out = append(out, bi, off)
		}
		return out
	}
	first := run()
	second := run()
	assert.Equal(t, first, second)
}

func TestAllocatorOffsetAlignment(t *testing.T) {
	a := alias.New([]int{4096})
	for i := 0; i < 8; i++ {
		_, off := a.Allocate(37, alias.UsageRange{First: i, Last: i}, 16)
		assert.Equal(t, 0, off%16)
	}
}

func TestAllocatorAddBackingAfterOverflow(t *testing.T) {
	a := alias.New([]int{128})
	a.Allocate(64, alias.UsageRange{First: 0, Last: 1}, 1)
	bi, _ := a.Allocate(96, alias.UsageRange{First: 0, Last: 1}, 1)
	assert.Equal(t, alias.NotFit, bi)

	idx := a.AddBacking(96)
	assert.Equal(t, 1, idx)
	bi2, off2 := a.Allocate(96, alias.UsageRange{First: 0, Last: 1}, 1)
	assert.Equal(t, 1, bi2)
	assert.Equal(t, 0, off2)
}
