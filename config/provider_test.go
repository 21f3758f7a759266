package config

import (
	"testing"

	"github.com/samber/do/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvideLoader(t *testing.T) {
	injector := do.New()
	do.Provide(injector, ProvideLoader(ProvideLoaderOptions{
		Defaults: map[string]interface{}{"server": map[string]interface{}{"addr": ":8080"}},
	}))

	loader, err := do.Invoke[*Loader](injector)
	require.NoError(t, err)
	assert.Equal(t, ":8080", loader.GetString("server.addr"))
}
