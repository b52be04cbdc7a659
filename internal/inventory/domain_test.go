// internal/inventory/domain_test.go
package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProjectStatus(t *testing.T) {
	tests := []struct {
		name      string
		current   string
		available int
		want      string
	}{
		{"copies free", StatusAvailable, 2, StatusAvailable},
		{"last copy gone", StatusAvailable, 0, StatusOnLoan},
		{"copy comes back", StatusOnLoan, 1, StatusAvailable},
		{"lost stays lost", StatusLost, 3, StatusLost},
		{"damaged stays damaged", StatusDamaged, 0, StatusDamaged},
		{"reserved projects from counter", StatusReserved, 0, StatusOnLoan},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ProjectStatus(tc.current, tc.available))
		})
	}
}

func TestSticky(t *testing.T) {
	assert.True(t, Sticky(StatusLost))
	assert.True(t, Sticky(StatusDamaged))
	assert.False(t, Sticky(StatusAvailable))
	assert.False(t, Sticky(StatusOnLoan))
	assert.False(t, Sticky(StatusReserved))
}
