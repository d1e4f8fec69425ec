// Package formats maps Google-native document types to the interchange
// formats they are exported as before ingest.
package formats

// Google-native MIME types handled specially by the exporter.
const (
	MimeFolder       = "application/vnd.google-apps.folder"
	MimeSpreadsheet  = "application/vnd.google-apps.spreadsheet"
	MimeDocument     = "application/vnd.google-apps.document"
	MimePresentation = "application/vnd.google-apps.presentation"
	MimeDrawing      = "application/vnd.google-apps.drawing"
)

// Export describes how a Google-native file is converted on download.
type Export struct {
	MimeType  string
	Extension string // without the leading dot
}

// exportTable is fixed at build time. Anything missing is fetched verbatim.
var exportTable = map[string]Export{
	MimeSpreadsheet: {
		MimeType:  "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Extension: "xlsx",
	},
	MimeDocument: {
		MimeType:  "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		Extension: "docx",
	},
	MimePresentation: {
		MimeType:  "application/vnd.openxmlformats-officedocument.presentationml.presentation",
		Extension: "pptx",
	},
	MimeDrawing: {
		MimeType:  "application/pdf",
		Extension: "pdf",
	},
}

// Resolve returns the export format for a source MIME type. ok is false when
// the type has no conversion and the bytes should be fetched as-is.
func Resolve(mimeType string) (Export, bool) {
	e, ok := exportTable[mimeType]

	return e, ok
}

// IsContainer reports whether the MIME type denotes a folder.
func IsContainer(mimeType string) bool {
	return mimeType == MimeFolder
}
