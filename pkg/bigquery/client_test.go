package bigquery

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
)

func TestIsAlreadyExists(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "409 conflict",
			err:      &googleapi.Error{Code: 409, Message: "Already Exists: Dataset agent_dr_silva"},
			expected: true,
		},
		{
			name:     "wrapped 409",
			err:      errors.WithMessage(&googleapi.Error{Code: 409}, "couldn't create table"),
			expected: true,
		},
		{
			name:     "403 forbidden",
			err:      &googleapi.Error{Code: 403},
			expected: false,
		},
		{
			name:     "plain error",
			err:      errors.New("connection refused"),
			expected: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, IsAlreadyExists(tc.err))
		})
	}
}
