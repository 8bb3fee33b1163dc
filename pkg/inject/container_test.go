package inject

import (
	"context"
	"testing"

	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greeter struct{ name string }

func TestNewContainer(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	first, err := NewContainer(logger)
	require.NoError(t, err)
	second, err := NewContainer(logger)
	require.NoError(t, err)
	assert.NotEqual(t, first.GetContainerID(), second.GetContainerID())

	require.NoError(t, ectoinject.RegisterInstance[*greeter](first, &greeter{name: "first"}))
	require.NoError(t, ectoinject.RegisterInstance[*greeter](second, &greeter{name: "second"}))

	for _, tt := range []struct {
		id   string
		want string
	}{
		{first.GetContainerID(), "first"},
		{second.GetContainerID(), "second"},
	} {
		ctx, err := ectoinject.SetActiveContainer(context.Background(), tt.id)
		require.NoError(t, err)
		_, got, err := ectoinject.GetContext[*greeter](ctx)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got.name)
	}
}
