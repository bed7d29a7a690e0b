package mcpserver

// RecordFormatContract describes the record fields and their constraints for
// LLM consumers that create or update records.
const RecordFormatContract = `# Tabula Record Format Contract

A record is one row of the table. The table is persisted as a JSON array of
records under the storage slot ` + "`" + `table-data-v1` + "`" + `.

## Fields

| Field   | Type    | Rules                                                   |
|---------|---------|---------------------------------------------------------|
| id      | string  | Assigned by the server. Unique, never changes.          |
| name    | string  | Required. 1 to 64 characters after trimming whitespace. |
| date    | string  | Required. Calendar date in YYYY-MM-DD form.             |
| value   | integer | Between -1000000000 and 1000000000 inclusive.           |

## Behaviour

1. New records are inserted at the **top** of the table.
2. Updates keep the record's id and position.
3. Search matches the keyword case-insensitively against name, date and the
   plain decimal form of value (no thousands separators).
4. Deleting a record takes a moment; while it is in progress the record is
   still listed but cannot be edited.

## Example

` + "```" + `json
{"id": "6f1c9a52-3f0e-4a8e-9d0b-2b7a3c1e5f10", "name": "Alpha", "date": "2024-01-01", "value": 100}
` + "```" + `
`
