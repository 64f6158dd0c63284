package observability

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShutdownManager_RunsFunctionsInOrder(t *testing.T) {
	sm := NewShutdownManager(Discard(), nil, 0)
	assert.Equal(t, 30*time.Second, sm.shutdownTimeout)

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			order = append(order, i)
			return nil
		})
	}

	assert.NoError(t, sm.Shutdown())
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestShutdownManager_CollectsErrors(t *testing.T) {
	sm := NewShutdownManager(Discard(), &http.Server{}, time.Second)

	var ran int
	sm.RegisterShutdownFunc(func(ctx context.Context) error { ran++; return errors.New("close failed") })
	sm.RegisterShutdownFunc(func(ctx context.Context) error { ran++; return nil })

	err := sm.Shutdown()
	assert.EqualError(t, err, "shutdown completed with 1 errors")
	assert.Equal(t, 2, ran)
}
