package catalog

import (
	"bytes"
	_ "embed"
)

//go:embed items.yaml
var builtinItems []byte

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	return Parse(bytes.NewReader(builtinItems))
}
