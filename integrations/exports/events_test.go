package exports

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"pairvault/integrations/eventlog"
)

func sampleEntries() []eventlog.Entry {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []eventlog.Entry{
		{Seq: 1, ID: uuid.New(), Type: "vault.merge", Attributes: map[string]string{"pair": "0x01", "payout": "90", "amount": "100"}, EmittedAt: ts},
		{Seq: 2, ID: uuid.New(), Type: "vault.fees.updated", Attributes: map[string]string{"newBps": "250"}, EmittedAt: ts.Add(time.Minute)},
	}
}

func TestEventsCSV(t *testing.T) {
	data, checksum, err := EventsCSV(sampleEntries())
	if err != nil {
		t.Fatalf("csv export: %v", err)
	}
	sum := sha256.Sum256(data)
	if checksum != hex.EncodeToString(sum[:]) {
		t.Fatalf("checksum mismatch")
	}
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus two rows, got %d", len(rows))
	}
	if rows[1][3] != "0x01" || rows[1][5] != "amount=100;pair=0x01;payout=90" {
		t.Fatalf("unexpected merge row %v", rows[1])
	}
	if rows[2][3] != "" {
		t.Fatalf("fee update has no pair, got %q", rows[2][3])
	}
}

func TestEventsJSONL(t *testing.T) {
	entries := sampleEntries()
	data, _, err := EventsJSONL(entries)
	if err != nil {
		t.Fatalf("jsonl export: %v", err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	var lines int
	for scanner.Scan() {
		var got eventlog.Entry
		if err := json.Unmarshal(scanner.Bytes(), &got); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		if got.ID != entries[lines].ID || got.Type != entries[lines].Type {
			t.Fatalf("line %d mismatch: %+v", lines, got)
		}
		lines++
	}
	if lines != len(entries) {
		t.Fatalf("expected %d lines, got %d", len(entries), lines)
	}
}
