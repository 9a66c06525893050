package attribute

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// catalogueFile is the on-disk shape of an attribute override file.
//
//	attributes:
//	  - name: HEARTBEAT
//	    address: "ns=2;s=heartbeat"
//	    kind: int
//	    group: status
type catalogueFile struct {
	Attributes []Definition `yaml:"attributes"`
}

// LoadFile reads attribute definitions from a YAML file.
//
// The result is not validated; pass it to NewMap, which applies the same
// checks as for the built-in catalogue.
//
// Parameters:
//   - path: Path to the YAML file
//
// Returns:
//   - []Definition: Definitions in file order
//   - error: If the file cannot be read or parsed
func LoadFile(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading attribute file: %w", err)
	}

	var file catalogueFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing attribute file: %w", err)
	}

	return file.Attributes, nil
}

// Load returns the validated map used by the process: the YAML override
// file when path is non-empty, otherwise the built-in LIDAR catalogue.
func Load(path string, namespace int) (*Map, error) {
	defs := LIDAR(namespace)
	if path != "" {
		var err error
		if defs, err = LoadFile(path); err != nil {
			return nil, err
		}
	}
	return NewMap(defs)
}
