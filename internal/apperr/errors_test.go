package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs_WalksWrappedChain(t *testing.T) {
	root := RateLimited("status 429")
	wrapped := Wrap(root, KindNetwork, "fetch track")
	outer := fmt.Errorf("load primary: %w", wrapped)

	assert.True(t, Is(outer, KindNetwork))
	assert.True(t, Is(outer, KindRateLimited))
	assert.False(t, Is(outer, KindQuotaExceeded))
	assert.False(t, Is(errors.New("plain"), KindNetwork))
	assert.False(t, Is(nil, KindNetwork))
}

func TestError_Format(t *testing.T) {
	err := Wrap(errors.New("disk full"), KindQuotaExceeded, "put translation").
		WithContext("table", "translations").
		WithContext("count", 10)

	assert.Equal(t,
		"[QuotaExceeded] put translation | context: count=10, table=translations | cause: disk full",
		err.Error())
	assert.Equal(t, KindQuotaExceeded, KindOf(fmt.Errorf("x: %w", err)))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindInvalidCueData, "InvalidCueData"},
		{KindNetwork, "Network"},
		{KindRateLimited, "RateLimited"},
		{KindQuotaExceeded, "QuotaExceeded"},
		{KindStaleCompletion, "StaleCompletion"},
		{Kind(99), "Unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.String())
	}
}
