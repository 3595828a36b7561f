package economy

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/MJE43/arenacore/internal/apperr"
)

//go:embed schema/economy_config.schema.json
var economySchemaJSON string

const economySchemaURL = "https://arenacore.local/schemas/economy_config.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft7
		if err := c.AddResource(economySchemaURL, strings.NewReader(economySchemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add economy schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile(economySchemaURL)
	})
	return schema, schemaErr
}

// ParseRaw checks the shape of an admin payload against the embedded schema
// and decodes it. Values are not trusted yet; pass the result to Sanitize.
func ParseRaw(body []byte) (RawConfig, error) {
	s, err := compiledSchema()
	if err != nil {
		return RawConfig{}, apperr.Wrap(apperr.CodeInternal, "economy schema unavailable", err)
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return RawConfig{}, apperr.Wrap(apperr.CodeValidation, "economy config is not valid JSON", err)
	}
	if err := s.Validate(doc); err != nil {
		return RawConfig{}, apperr.Wrap(apperr.CodeValidation, "economy config does not match schema", err)
	}

	var raw RawConfig
	if err := json.Unmarshal(body, &raw); err != nil {
		return RawConfig{}, apperr.Wrap(apperr.CodeValidation, "decode economy config", err)
	}
	return raw, nil
}
