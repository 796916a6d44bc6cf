// Package migrations embeds the SQL schema for issuer keys, status lists,
// hosted assertions and the audit trail. Files are applied in lexical order.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
