package pricing

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/smallbiznis/railzway-checkout/internal/pricing/domain"
)

// FeePolicyVersion fingerprints the fee tuple actually applied. Field order
// is fixed: feeMode, feeBps, feeFixed.
func FeePolicyVersion(mode domain.FeeMode, bps, fixed int64) string {
	var buf bytes.Buffer
	buf.WriteString(`{"feeMode":`)
	writeString(&buf, string(mode))
	fmt.Fprintf(&buf, `,"feeBps":%d,"feeFixed":%d}`, bps, fixed)
	return digest(buf.Bytes())
}

// HashSnapshot returns the sha256 of the canonical JSON form of snapshot.
func HashSnapshot(snapshot domain.PricingSnapshot) (string, error) {
	canonical, err := Canonicalize(snapshot)
	if err != nil {
		return "", err
	}
	return digest(canonical), nil
}

// Canonicalize serializes v as JSON with object keys sorted at every depth.
// Array order is preserved.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch value := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if value {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(value.String())
	case string:
		writeString(buf, value)
	case []any:
		buf.WriteByte('[')
		for i, item := range value {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(value))
		for key := range value {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, key := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, key)
			buf.WriteByte(':')
			if err := writeCanonical(buf, value[key]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("canonicalize: unsupported type %T", v)
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	// Encode appends a newline.
	buf.Truncate(buf.Len() - 1)
}

func digest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
