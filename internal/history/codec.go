package history

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrHistoryCorrupt is returned when a stored or imported history does not
// have the shape of a turn sequence.
var ErrHistoryCorrupt = errors.New("message history is corrupt")

//go:embed schema.json
var schemaJSON []byte

var historySchema = mustLoadSchema()

func mustLoadSchema() *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("history: invalid embedded schema: %v", err))
	}
	return s
}

// Decode reconstructs the typed turn sequence from its at-rest form.
// An absent, blank, null or empty-string value decodes to an empty, non-nil slice.
func Decode(raw []byte) ([]Turn, error) {
	trimmed := bytes.TrimSpace(raw)
	if isBlank(trimmed) {
		return []Turn{}, nil
	}

	if err := checkStructure(trimmed); err != nil {
		return nil, err
	}

	var turns []Turn
	if err := json.Unmarshal(trimmed, &turns); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHistoryCorrupt, err)
	}
	if err := checkRoles(turns); err != nil {
		return nil, err
	}
	if turns == nil {
		turns = []Turn{}
	}
	return turns, nil
}

// Validate runs every check Decode runs and discards the result.
func Validate(raw []byte) error {
	_, err := Decode(raw)
	return err
}

// Encode serializes turns into their at-rest form. Nil encodes as [].
func Encode(turns []Turn) ([]byte, error) {
	if turns == nil {
		turns = []Turn{}
	}
	data, err := json.Marshal(turns)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message history: %w", err)
	}
	return data, nil
}

func isBlank(raw []byte) bool {
	switch string(raw) {
	case "", "null", `""`:
		return true
	}
	return false
}

func checkStructure(raw []byte) error {
	result, err := historySchema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHistoryCorrupt, err)
	}
	if result.Valid() {
		return nil
	}
	reasons := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		reasons = append(reasons, desc.String())
	}
	return fmt.Errorf("%w: %s", ErrHistoryCorrupt, strings.Join(reasons, "; "))
}

func checkRoles(turns []Turn) error {
	var reasons []string
	for i, t := range turns {
		allowed := allowedKinds[t.Role]
		for j, p := range t.Parts {
			if !allowed[p.Kind] {
				reasons = append(reasons, fmt.Sprintf("turn %d part %d: %q is not allowed in a %s turn", i, j, p.Kind, t.Role))
			}
		}
	}
	if len(reasons) > 0 {
		return fmt.Errorf("%w: %s", ErrHistoryCorrupt, strings.Join(reasons, "; "))
	}
	return nil
}
