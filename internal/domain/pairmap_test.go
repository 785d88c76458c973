package domain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

var (
	tokA = common.HexToAddress("0x000000000000000000000000000000000000000a")
	tokB = common.HexToAddress("0x000000000000000000000000000000000000000b")
	tokC = common.HexToAddress("0x000000000000000000000000000000000000000c")
)

func TestPairMap_SetGet(t *testing.T) {
	p := NewPairMap[float64]()

	_, ok := p.Get(tokA, tokB)
	assert.False(t, ok)

	p.Set(tokA, tokB, 1.5)
	v, ok := p.Get(tokA, tokB)
	assert.True(t, ok)
	assert.Equal(t, 1.5, v)

	// Reverse direction is a different pair
	_, ok = p.Get(tokB, tokA)
	assert.False(t, ok)
}

func TestPairMap_ZeroValueIsSet(t *testing.T) {
	p := NewPairMap[float64]()
	p.Set(tokA, tokB, 0)

	v, ok := p.Get(tokA, tokB)
	assert.True(t, ok)
	assert.Equal(t, 0.0, v)
}

func TestPairMap_Delete(t *testing.T) {
	p := NewPairMap[int]()
	p.Set(tokA, tokB, 1)
	p.Set(tokA, tokC, 2)

	p.Delete(tokA, tokB)
	_, ok := p.Get(tokA, tokB)
	assert.False(t, ok)

	v, ok := p.Get(tokA, tokC)
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	// Deleting an absent pair is a no-op
	p.Delete(tokB, tokC)
	assert.Equal(t, 1, p.Len())
}

func TestPairMap_Len(t *testing.T) {
	p := NewPairMap[int]()
	assert.Equal(t, 0, p.Len())

	p.Set(tokA, tokB, 1)
	p.Set(tokA, tokC, 2)
	p.Set(tokB, tokA, 3)
	assert.Equal(t, 3, p.Len())
}

func TestPairMap_Clone(t *testing.T) {
	p := NewPairMap[float64]()
	p.Set(tokA, tokB, 1.0)
	p.Set(tokB, tokA, 2.0)

	c := p.Clone()
	c.Set(tokA, tokB, 99.0)
	c.Set(tokA, tokC, 3.0)

	v, _ := p.Get(tokA, tokB)
	assert.Equal(t, 1.0, v)
	_, ok := p.Get(tokA, tokC)
	assert.False(t, ok)
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, 3, c.Len())
}

func TestPairMap_ForEach(t *testing.T) {
	p := NewPairMap[int]()
	p.Set(tokA, tokB, 1)
	p.Set(tokB, tokC, 2)

	sum := 0
	p.ForEach(func(_, _ common.Address, v int) { sum += v })
	assert.Equal(t, 3, sum)
}
