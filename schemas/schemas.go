// Package schemas holds the published JSON Schema documents.
package schemas

import "embed"

// DraftWorkType is the schema of one drafted work type element.
const DraftWorkType = "draft_work_type.schema.json"

// Files contains every schema document in this directory.
//
//go:embed *.schema.json
var Files embed.FS
