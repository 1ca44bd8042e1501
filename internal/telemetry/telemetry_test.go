package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitInstallsMeterProvider(t *testing.T) {
	mp, shutdown, err := Init(context.Background(), "feedrunner-test")
	require.NoError(t, err)
	require.NotNil(t, mp)
	require.NotNil(t, shutdown)
	require.NoError(t, shutdown(context.Background()))
}
