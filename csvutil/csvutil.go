// Package csvutil implements the CSV ingestion format spec.md §6 defines
// as an external collaborator: "One record per line:
// <item-hex-or-decimal>[,<label-bytes-hex-or-utf8>]. Whitespace ignored.
// 0x prefix selects hex. Lines shorter than the expected token are
// skipped with a warning." No CSV library appears anywhere in the
// retrieved corpus, so this is built on encoding/csv, the stdlib package
// every non-trivial Go codebase reaches for here regardless.
package csvutil

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"math/big"
	"strings"

	"github.com/markkurossi/apsi/item"
)

// Record is one parsed CSV line: an item and, for labeled databases, its
// associated label bytes.
type Record struct {
	Item  item.Item
	Label []byte
}

// Read parses every record from r, skipping and warning on malformed
// lines rather than aborting the whole read, per spec.md §6.
func Read(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var records []Record
	lineNo := 0
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvutil: read line %d: %w", lineNo, err)
		}
		lineNo++

		if len(fields) == 0 || strings.TrimSpace(fields[0]) == "" {
			log.Printf("csvutil: line %d: skipping empty record", lineNo)
			continue
		}

		it, err := parseItem(fields[0])
		if err != nil {
			log.Printf("csvutil: line %d: skipping: %v", lineNo, err)
			continue
		}

		rec := Record{Item: it}
		if len(fields) > 1 {
			label, err := parseLabel(fields[1])
			if err != nil {
				log.Printf("csvutil: line %d: skipping: %v", lineNo, err)
				continue
			}
			rec.Label = label
		}

		records = append(records, rec)
	}
	return records, nil
}

// parseItem interprets a hex (0x-prefixed) or decimal token as a 128-bit
// item, left-padding with zero bytes.
func parseItem(tok string) (item.Item, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return item.Item{}, fmt.Errorf("empty item field")
	}

	var n *big.Int
	if strings.HasPrefix(tok, "0x") || strings.HasPrefix(tok, "0X") {
		var ok bool
		n, ok = new(big.Int).SetString(tok[2:], 16)
		if !ok {
			return item.Item{}, fmt.Errorf("invalid hex item %q", tok)
		}
	} else {
		var ok bool
		n, ok = new(big.Int).SetString(tok, 10)
		if !ok {
			return item.Item{}, fmt.Errorf("invalid decimal item %q", tok)
		}
	}

	raw := n.Bytes()
	if len(raw) > 16 {
		return item.Item{}, fmt.Errorf("item %q exceeds 128 bits", tok)
	}
	var buf [16]byte
	copy(buf[16-len(raw):], raw)
	return item.FromRawBytes(buf[:]), nil
}

// parseLabel interprets a hex (0x-prefixed) or literal UTF-8 token as raw
// label bytes.
func parseLabel(tok string) ([]byte, error) {
	tok = strings.TrimSpace(tok)
	if strings.HasPrefix(tok, "0x") || strings.HasPrefix(tok, "0X") {
		n, ok := new(big.Int).SetString(tok[2:], 16)
		if !ok {
			return nil, fmt.Errorf("invalid hex label %q", tok)
		}
		return n.Bytes(), nil
	}
	return []byte(tok), nil
}

// Write serializes records back to CSV, matching Read's format, for
// round-tripping query result output.
func Write(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	for _, rec := range records {
		fields := []string{"0x" + rec.Item.String()}
		if rec.Label != nil {
			fields = append(fields, fmt.Sprintf("0x%x", rec.Label))
		}
		if err := cw.Write(fields); err != nil {
			return fmt.Errorf("csvutil: write record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
