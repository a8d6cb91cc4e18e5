package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// metaDoc is the decoded shape of db.meta. hashicorp/hcl decodes repeated
// same-named blocks into a slice automatically, so nesting table/column/
// index blocks (identified by a "name" attribute rather than an HCL
// label, to keep decoding simple and unambiguous) round-trips cleanly.
type metaDoc struct {
	NextFileID uint32     `hcl:"next_file_id"`
	Tables     []tableDoc `hcl:"table"`
}

type tableDoc struct {
	Name       string      `hcl:"name"`
	HeapFileID uint32      `hcl:"heap_file_id"`
	RecordSize int         `hcl:"record_size"`
	Columns    []columnDoc `hcl:"column"`
	Indexes    []indexDoc  `hcl:"index"`
}

type columnDoc struct {
	Name    string `hcl:"name"`
	Type    string `hcl:"type"`
	Length  int    `hcl:"length"`
	Offset  int    `hcl:"offset"`
	Indexed bool   `hcl:"indexed"`
}

type indexDoc struct {
	Name      string   `hcl:"name"`
	Columns   []string `hcl:"columns"`
	KeyLength int      `hcl:"key_length"`
	FileID    uint32   `hcl:"file_id"`
}

// encodeDoc hand-formats metaDoc as HCL. hashicorp/hcl v1 is a decode-only
// library (no canonical encoder ships with it), so — the same way the
// teacher hand-builds its JSON with struct tags rather than a generic
// marshaller for its schema files — this writes the textual form directly
// and relies on hcl.Decode (catalog.go's decodeDoc) to read it back.
func encodeDoc(doc metaDoc) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "next_file_id = %d\n\n", doc.NextFileID)
	for _, t := range doc.Tables {
		fmt.Fprintf(&b, "table {\n")
		fmt.Fprintf(&b, "  name = %s\n", quote(t.Name))
		fmt.Fprintf(&b, "  heap_file_id = %d\n", t.HeapFileID)
		fmt.Fprintf(&b, "  record_size = %d\n", t.RecordSize)
		for _, c := range t.Columns {
			fmt.Fprintf(&b, "  column {\n")
			fmt.Fprintf(&b, "    name = %s\n", quote(c.Name))
			fmt.Fprintf(&b, "    type = %s\n", quote(c.Type))
			fmt.Fprintf(&b, "    length = %d\n", c.Length)
			fmt.Fprintf(&b, "    offset = %d\n", c.Offset)
			fmt.Fprintf(&b, "    indexed = %t\n", c.Indexed)
			fmt.Fprintf(&b, "  }\n")
		}
		for _, idx := range t.Indexes {
			fmt.Fprintf(&b, "  index {\n")
			fmt.Fprintf(&b, "    name = %s\n", quote(idx.Name))
			fmt.Fprintf(&b, "    columns = %s\n", quoteList(idx.Columns))
			fmt.Fprintf(&b, "    key_length = %d\n", idx.KeyLength)
			fmt.Fprintf(&b, "    file_id = %d\n", idx.FileID)
			fmt.Fprintf(&b, "  }\n")
		}
		fmt.Fprintf(&b, "}\n\n")
	}
	return []byte(b.String())
}

func quote(s string) string { return strconv.Quote(s) }

func quoteList(ss []string) string {
	parts := make([]string, len(ss))
	for i, s := range ss {
		parts[i] = quote(s)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
