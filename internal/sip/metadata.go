// Package sip builds submission packages for ingest: the descriptive
// metadata document for a Drive file and the XIP zip that wraps a payload.
package sip

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// DefaultMetadataNamespace is used when no namespace is configured.
const DefaultMetadataNamespace = "https://www.googleapis.com/drive/v3/files"

// Descriptive holds the source attributes recorded alongside the payload.
// Zero times and a zero Version are omitted from the document.
type Descriptive struct {
	ID             string
	Name           string
	MimeType       string
	Version        int64
	CreatedTime    time.Time
	ModifiedTime   time.Time
	ViewedByMeTime time.Time
}

type descriptiveXML struct {
	XMLName        xml.Name `xml:"GoogleDriveFile"`
	Namespace      string   `xml:"xmlns,attr"`
	ID             string   `xml:"ID"`
	Name           string   `xml:"Name"`
	MimeType       string   `xml:"MimeType"`
	Version        string   `xml:"Version,omitempty"`
	CreatedTime    string   `xml:"CreatedTime,omitempty"`
	ModifiedTime   string   `xml:"ModifiedTime,omitempty"`
	ViewedByMeTime string   `xml:"ViewedByMeTime,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(time.RFC3339)
}

// MarshalMetadata renders d as an XML document in namespace ns.
func MarshalMetadata(d Descriptive, ns string) ([]byte, error) {
	if ns == "" {
		ns = DefaultMetadataNamespace
	}

	doc := descriptiveXML{
		Namespace:      ns,
		ID:             d.ID,
		Name:           d.Name,
		MimeType:       d.MimeType,
		CreatedTime:    formatTime(d.CreatedTime),
		ModifiedTime:   formatTime(d.ModifiedTime),
		ViewedByMeTime: formatTime(d.ViewedByMeTime),
	}

	if d.Version != 0 {
		doc.Version = strconv.FormatInt(d.Version, 10)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("sip: encoding metadata for %s: %w", d.ID, err)
	}

	buf.WriteByte('\n')

	return buf.Bytes(), nil
}

// WriteMetadata writes the metadata document for d into dir as
// "<id>.metadata.xml" and returns its path.
func WriteMetadata(dir string, d Descriptive, ns string) (string, error) {
	data, err := MarshalMetadata(d, ns)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("sip: creating metadata directory: %w", err)
	}

	path := filepath.Join(dir, d.ID+".metadata.xml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("sip: writing metadata %s: %w", path, err)
	}

	return path, nil
}
