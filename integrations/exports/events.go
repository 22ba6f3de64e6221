package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"pairvault/integrations/eventlog"
)

// EventsCSV builds a CSV export of indexed events and returns the payload with
// its SHA-256 checksum. Attributes are flattened into sorted key=value pairs.
func EventsCSV(entries []eventlog.Entry) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	if err := writer.Write([]string{"seq", "id", "type", "pair", "emitted_at", "attributes"}); err != nil {
		return nil, "", err
	}
	for _, entry := range entries {
		record := []string{
			fmt.Sprintf("%d", entry.Seq),
			entry.ID.String(),
			entry.Type,
			entry.Attributes["pair"],
			entry.EmittedAt.UTC().Format(time.RFC3339Nano),
			flatten(entry.Attributes),
		}
		if err := writer.Write(record); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	return withChecksum(buffer.Bytes())
}

// EventsJSONL builds a JSON Lines export of indexed events.
func EventsJSONL(entries []eventlog.Entry) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	for _, entry := range entries {
		if err := encoder.Encode(entry); err != nil {
			return nil, "", err
		}
	}
	return withChecksum(buffer.Bytes())
}

func flatten(attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+attrs[k])
	}
	return strings.Join(parts, ";")
}

func withChecksum(data []byte) ([]byte, string, error) {
	sum := sha256.Sum256(data)
	return data, hex.EncodeToString(sum[:]), nil
}
