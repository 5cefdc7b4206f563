package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c360studio/semharvest/vocabulary"
)

func TestAcceptedByDataset(t *testing.T) {
	overrides := []vocabulary.Mapping{
		{Dataset: "zeta", NativeID: "p1"},
		{Dataset: "alpha", NativeID: "p1"},
		{Dataset: "zeta", NativeID: "p2"},
	}

	names, counts := acceptedByDataset(overrides)

	assert.Equal(t, []string{"alpha", "zeta"}, names)
	assert.Equal(t, 1, counts["alpha"])
	assert.Equal(t, 2, counts["zeta"])

	names, counts = acceptedByDataset(nil)
	assert.Empty(t, names)
	assert.Empty(t, counts)
}
