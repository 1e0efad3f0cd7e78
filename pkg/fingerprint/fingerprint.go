package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/zkinzler/dfw-openings/pkg/models"
)

// Generate creates a deterministic fingerprint for a document.
// The fingerprint is a SHA256 hash of the canonicalized JSON.
func Generate(data map[string]any) string {
	hash := sha256.Sum256([]byte(canonicalize(data)))
	return hex.EncodeToString(hash[:])
}

// ForRecord fingerprints the identifying content of a source record.
// Two deliveries of the same filing produce the same fingerprint.
func ForRecord(rec models.SourceRecord) string {
	return Generate(map[string]any{
		"source":      string(rec.Source),
		"event_type":  string(rec.EventType),
		"event_date":  rec.EventDate.String(),
		"raw_name":    strings.TrimSpace(rec.RawName),
		"raw_address": strings.TrimSpace(rec.RawAddress),
	})
}

// canonicalize renders data with sorted keys at every level
func canonicalize(data any) string {
	var b strings.Builder
	writeCanonical(&b, data)
	return b.String()
}

func writeCanonical(b *strings.Builder, data any) {
	switch v := data.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			keyJSON, _ := json.Marshal(k)
			b.Write(keyJSON)
			b.WriteByte(':')
			writeCanonical(b, v[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	default:
		encoded, _ := json.Marshal(v)
		b.Write(encoded)
	}
}
