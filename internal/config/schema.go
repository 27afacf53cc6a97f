package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/denismitr/lemondb"
)

// SchemaFile lists stores as name -> compact definition, for example
//
//	stores:
//	  things: "id++, name"
//	  color_shape: "[shape+color]"
type SchemaFile struct {
	Stores map[string]string `yaml:"stores"`
}

func LoadSchemaFile(path string) ([]lemondb.StoreSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read schema file %s", path)
	}

	schemas, err := ParseSchemaFile(data)
	if err != nil {
		return nil, errors.Wrapf(err, "schema file %s", path)
	}

	return schemas, nil
}

func ParseSchemaFile(data []byte) ([]lemondb.StoreSchema, error) {
	var f SchemaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "could not parse yaml")
	}

	return lemondb.ParseSchemas(f.Stores)
}
