package log

// Canonical field name constants for structured logging.
const (
	FieldService   = "service"
	FieldVersion   = "version"
	FieldComponent = "component"

	// Archive fields
	FieldNode    = "node"
	FieldGroup   = "group"
	FieldAcq     = "acq"
	FieldFile    = "file"
	FieldPath    = "path"
	FieldTag     = "tag"
	FieldRequest = "request_id"
	FieldInfo    = "info_class"

	FieldCount    = "count"
	FieldDuration = "duration"
)
