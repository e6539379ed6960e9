// Package canonical implements the stable, map-order-independent serialization used
// to compute every hash in the coordinator: events, state snapshots, Merkle leaves.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Bytes returns the canonical byte form of v: object keys sorted lexicographically
// at every nesting level, numbers in minimal decimal form, strings minimally
// escaped, booleans and null fixed. v is first round-tripped through encoding/json
// so struct values, maps and slices are all accepted the same way.
func Bytes(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal: %w", err)
	}

	var generic interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonical: decode: %w", err)
	}

	var buf []byte
	buf, err = encode(buf, generic)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Hash returns the lowercase hex SHA-256 digest of Bytes(v).
func Hash(v interface{}) (string, error) {
	b, err := Bytes(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// HashBytes hashes a raw byte string directly (used for concatenated-hash internal
// Merkle nodes and the empty Merkle root).
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func encode(buf []byte, v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return append(buf, "null"...), nil
	case bool:
		if val {
			return append(buf, "true"...), nil
		}
		return append(buf, "false"...), nil
	case json.Number:
		return encodeNumber(buf, val)
	case string:
		return encodeString(buf, val), nil
	case []interface{}:
		buf = append(buf, '[')
		for i, item := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			var err error
			buf, err = encode(buf, item)
			if err != nil {
				return nil, err
			}
		}
		buf = append(buf, ']')
		return buf, nil
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf = append(buf, '{')
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = encodeString(buf, k)
			buf = append(buf, ':')
			var err error
			buf, err = encode(buf, val[k])
			if err != nil {
				return nil, err
			}
		}
		buf = append(buf, '}')
		return buf, nil
	default:
		return nil, fmt.Errorf("canonical: unsupported type %T", v)
	}
}

func encodeNumber(buf []byte, n json.Number) ([]byte, error) {
	if i, err := n.Int64(); err == nil {
		if i == 0 {
			return append(buf, '0'), nil
		}
		return append(buf, strconv.FormatInt(i, 10)...), nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("canonical: bad number %q: %w", n.String(), err)
	}
	if f == 0 {
		return append(buf, '0'), nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("canonical: non-finite number %v", f)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	return append(buf, s...), nil
}

func encodeString(buf []byte, s string) []byte {
	quoted, _ := json.Marshal(s)
	return append(buf, quoted...)
}
