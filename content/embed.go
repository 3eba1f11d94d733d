// Package content ships the default dua catalog with the binary.
// Deployments can override it with CONTENT_FILE.
package content

import (
	_ "embed"

	"duahabit/internal/catalog"
)

//go:embed catalog.yaml
var catalogYAML []byte

func Default() (*catalog.Pack, error) {
	return catalog.Parse(catalogYAML)
}
