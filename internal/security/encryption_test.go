package security

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealer(t *testing.T) {
	sealer := NewSealer([]byte("test-secret"))
	plaintext := []byte(`{"license_id":"LIC-001","status":"active"}`)

	t.Run("round trip", func(t *testing.T) {
		sealed, err := sealer.Seal(plaintext)
		require.NoError(t, err)
		assert.NotContains(t, string(sealed), "LIC-001")

		opened, err := sealer.Open(sealed)
		require.NoError(t, err)
		assert.Equal(t, plaintext, opened)
	})

	t.Run("distinct envelopes per seal", func(t *testing.T) {
		a, err := sealer.Seal(plaintext)
		require.NoError(t, err)
		b, err := sealer.Seal(plaintext)
		require.NoError(t, err)
		assert.NotEqual(t, a, b, "fresh salt and nonce expected on every seal")
	})

	t.Run("wrong secret fails to open", func(t *testing.T) {
		sealed, err := sealer.Seal(plaintext)
		require.NoError(t, err)

		_, err = NewSealer([]byte("other-secret")).Open(sealed)
		assert.Error(t, err)
	})

	t.Run("flipped ciphertext bit fails authentication", func(t *testing.T) {
		sealed, err := sealer.Seal(plaintext)
		require.NoError(t, err)

		var payload sealedPayload
		require.NoError(t, json.Unmarshal(sealed, &payload))
		payload.Ciphertext[0] ^= 0x01
		corrupted, err := json.Marshal(payload)
		require.NoError(t, err)

		_, err = sealer.Open(corrupted)
		assert.Error(t, err)
	})

	t.Run("malformed envelope rejected", func(t *testing.T) {
		_, err := sealer.Open([]byte("not json at all"))
		assert.Error(t, err)
	})

	t.Run("unsupported version rejected", func(t *testing.T) {
		sealed, err := sealer.Seal(plaintext)
		require.NoError(t, err)

		var payload sealedPayload
		require.NoError(t, json.Unmarshal(sealed, &payload))
		payload.Version = 99
		bumped, err := json.Marshal(payload)
		require.NoError(t, err)

		_, err = sealer.Open(bumped)
		assert.Error(t, err)
	})
}

func TestMachineSealerSecret(t *testing.T) {
	t.Run("binds to machine identity", func(t *testing.T) {
		a := MachineSealerSecret(baseProvider())

		p := baseProvider()
		p.machineID = "machine-bbb"
		b := MachineSealerSecret(p)

		assert.NotEqual(t, a, b)
	})

	t.Run("falls back to shared secret without machine id", func(t *testing.T) {
		p := baseProvider()
		p.machineIDErr = assert.AnError

		secret := MachineSealerSecret(p)
		assert.Contains(t, string(secret), "clinicore-shared")
	})
}
