// Package utils holds small helpers shared across the pipeline packages.
package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"
)

// Strategy names the parser that finally accepted a payload.
type Strategy string

const (
	StrategyJSON     Strategy = "json"
	StrategyRepaired Strategy = "repaired"
	StrategyHJSON    Strategy = "hjson"
)

// RepairJSON fixes common hand-edit damage: missing quotes around keys,
// single quotes, trailing commas, comments, unclosed arrays or objects.
func RepairJSON(malformed string) (string, error) {
	repaired, err := jsonrepair.RepairJSON(malformed)
	if err != nil {
		return "", fmt.Errorf("json repair failed: %w", err)
	}
	return repaired, nil
}

// HJSONToJSON parses Hjson (comments, unquoted keys and strings, optional
// commas) and re-encodes it as standard JSON. Number literals are copied
// through unchanged.
func HJSONToJSON(data []byte) ([]byte, error) {
	opts := hjson.DefaultDecoderOptions()
	opts.UseJSONNumber = true

	var tree any
	if err := hjson.UnmarshalWithOptions(data, &tree, opts); err != nil {
		return nil, fmt.Errorf("hjson parse failed: %w", err)
	}
	out, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("hjson re-encode failed: %w", err)
	}
	return out, nil
}

// ErrLossyRepair means the JSON repairer rewrote a number the source did not
// contain, e.g. a decimal passed through float32.
var ErrLossyRepair = errors.New("json repair altered numeric values")

// DecodeLenient decodes data into v, trying in order:
//  1. standard JSON
//  2. Hjson (unquoted keys, comments, trailing commas)
//  3. repaired JSON, accepted only when every number survives verbatim
//
// Hjson goes through a JSON round-trip so struct tags stay authoritative.
func DecodeLenient(data []byte, v any) (Strategy, error) {
	strictErr := json.Unmarshal(data, v)
	if strictErr == nil {
		return StrategyJSON, nil
	}

	if converted, err := HJSONToJSON(data); err == nil {
		if err := json.Unmarshal(converted, v); err == nil {
			return StrategyHJSON, nil
		}
	}

	repaired, err := RepairJSON(string(data))
	if err == nil {
		if err = checkNumbers(data, []byte(repaired)); err == nil {
			if err = json.Unmarshal([]byte(repaired), v); err == nil {
				return StrategyRepaired, nil
			}
		}
	}
	if errors.Is(err, ErrLossyRepair) {
		return "", err
	}

	return "", fmt.Errorf("payload is not JSON, Hjson or repairable JSON: %w", strictErr)
}

var numberLiteral = regexp.MustCompile(`-?\d+(?:\.\d+)?(?:[eE][+-]?\d+)?`)

// checkNumbers reports ErrLossyRepair when repaired holds a number whose value
// does not appear as a literal anywhere in src.
func checkNumbers(src, repaired []byte) error {
	seen := make(map[float64]bool)
	for _, lit := range numberLiteral.FindAll(src, -1) {
		if f, err := strconv.ParseFloat(string(lit), 64); err == nil {
			seen[f] = true
		}
	}

	dec := json.NewDecoder(bytes.NewReader(repaired))
	dec.UseNumber()
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("repaired payload unreadable: %w", err)
		}
		n, ok := tok.(json.Number)
		if !ok {
			continue
		}
		f, err := n.Float64()
		if err != nil || !seen[f] {
			return fmt.Errorf("%w: %s", ErrLossyRepair, n)
		}
	}
}
