package record

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/ogulcanaydogan/driftgate/internal/errors"
)

// Digest is the sha256 of the canonical JSON form of r. Two records with the
// same content hash the same regardless of field order.
func Digest(r *DecisionRecord) (string, error) {
	canonical, err := CanonicalJSON(r)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// CanonicalJSON encodes v with sorted object keys, no insignificant
// whitespace and numbers in their shortest form.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "marshal for canonicalization")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, errors.Wrap(err, "decode for canonicalization")
	}
	var buf bytes.Buffer
	if err := canonicalize(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func canonicalize(buf *bytes.Buffer, v any) error {
	switch vv := v.(type) {
	case json.Number:
		f, err := strconv.ParseFloat(vv.String(), 64)
		if err != nil {
			return errors.Wrapf(err, "invalid number %q", vv)
		}
		buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	case []any:
		buf.WriteByte('[')
		for i, item := range vv {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := canonicalize(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			if err := canonicalize(buf, vv[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		// nil, bool and string encode the same canonically.
		b, err := json.Marshal(vv)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}
