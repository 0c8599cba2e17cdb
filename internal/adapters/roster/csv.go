// Package roster turns scheduling data into the artifacts volunteers share:
// CSV rosters, WhatsApp share links, Slack posts and queued exports.
package roster

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"escala/internal/core"
)

// utf8BOM makes spreadsheet tools detect UTF-8 so accented slot names render.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVContentType is the MIME type of roster exports.
const CSVContentType = "text/csv; charset=utf-8"

// WriteCSV writes the table as CSV, prefixed with a UTF-8 byte order mark.
func WriteCSV(w io.Writer, table core.RosterTable) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(table.Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := cw.WriteAll(table.Rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return nil
}

// EncodeCSV renders the table into memory.
func EncodeCSV(table core.RosterTable) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, table); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
