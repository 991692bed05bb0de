package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "resources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("parses resources", func(t *testing.T) {
		path := writeConfigFile(t, `
resources:
  - name: OLS
    destination-host: www.ebi.ac.uk
    endpoints:
      - /ols
      - /pub/databases/ols
  - name: BIOSAMPLES
    destination-host: www.ebi.ac.uk
    endpoints:
      - /biosamples
`)
		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		require.Len(t, cfg.Resources, 2)
		assert.Equal(t, "OLS", cfg.Resources[0].Name)
		assert.Equal(t, "www.ebi.ac.uk", cfg.Resources[0].DestinationHost)
		assert.Equal(t, []string{"/ols", "/pub/databases/ols"}, cfg.Resources[0].Endpoints)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("no resources", func(t *testing.T) {
		_, err := LoadConfig(writeConfigFile(t, "resources: []\n"))
		assert.Error(t, err)
	})

	t.Run("resource without a name", func(t *testing.T) {
		_, err := LoadConfig(writeConfigFile(t, `
resources:
  - destination-host: www.ebi.ac.uk
    endpoints: ["/x"]
`))
		assert.Error(t, err)
	})

	t.Run("resource without endpoints", func(t *testing.T) {
		_, err := LoadConfig(writeConfigFile(t, `
resources:
  - name: OLS
    destination-host: www.ebi.ac.uk
`))
		assert.Error(t, err)
	})
}
