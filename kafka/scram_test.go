package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xdg-go/scram"
)

func TestSCRAMClient(t *testing.T) {
	for name, gen := range map[string]scram.HashGeneratorFcn{"sha256": sha256Gen, "sha512": sha512Gen} {
		t.Run(name, func(t *testing.T) {
			client := newSCRAMClientGenerator(gen)().(*scramClient)
			require.NoError(t, client.Begin("audit", "secret", ""))
			assert.False(t, client.Done())

			// 第一步生成 client-first-message
			first, err := client.Step("")
			require.NoError(t, err)
			assert.Contains(t, first, "n=audit")
		})
	}
}

func TestHashGenerators(t *testing.T) {
	assert.Equal(t, 32, sha256Gen().Size())
	assert.Equal(t, 64, sha512Gen().Size())
}
