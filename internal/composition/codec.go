/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package composition

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	gojsonschema "github.com/xeipuuv/gojsonschema"
)

//go:embed record.schema.json
var schemaJSON []byte

// ErrInvalid reports a record that parses as JSON but does not match the record schema.
var ErrInvalid = errors.New("composition: record does not match schema")

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
})

// Schema returns the JSON schema records are validated against.
func Schema() []byte { return append([]byte(nil), schemaJSON...) }

// Validate checks data against the record schema.
func Validate(data []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("composition: load schema: %w", err)
	}
	res, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("composition: validate: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
	}
	return nil
}

// Decode validates and parses a stored record.
func Decode(data []byte) (Record, error) {
	if err := Validate(data); err != nil {
		return Record{}, err
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("composition: decode: %w", err)
	}
	return r, nil
}

// Encode serializes a record. Layers is always written as an array.
func Encode(r Record) ([]byte, error) {
	if r.Layers == nil {
		r.Layers = []Layer{}
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("composition: encode: %w", err)
	}
	return b, nil
}
