package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTeardowns(t *testing.T) {
	var order []int
	var teardowns Teardowns
	for i := 0; i < 3; i++ {
		i := i
		teardowns.Add(func() {
			order = append(order, i)
		})
	}
	teardowns.Teardown()
	require.Equal(t, []int{2, 1, 0}, order)
}
