package sip

import (
	"archive/zip"
	"bytes"
	"crypto/sha1" //nolint:gosec // SHA1 is the fixity algorithm the ingest workflow checks.
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const (
	xipNamespace       = "http://preservica.com/XIP/v6.0"
	defaultSecurityTag = "open"
	contentDir         = "content"
	fixityAlgorithm    = "SHA1"
)

// Identifier is an external identifier attached to the asset.
type Identifier struct {
	Type  string
	Value string
}

// Package describes one single-file asset to ingest.
type Package struct {
	PayloadPath string
	Title       string
	SecurityTag string // "open" when empty
	ParentRef   string
	Identifiers []Identifier

	// Metadata is an optional XML fragment embedded in the asset under
	// MetadataSchema.
	Metadata       []byte
	MetadataSchema string
}

// Builder writes XIP packages into a working directory.
type Builder struct {
	dir    string
	logger *slog.Logger
	newID  func() string
	now    func() time.Time
}

// NewBuilder returns a Builder that places packages in dir.
func NewBuilder(dir string, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}

	return &Builder{
		dir:    dir,
		logger: logger,
		newID:  uuid.NewString,
		now:    time.Now,
	}
}

// Build writes "<dir>/<ref>.zip" for p and returns its path. The archive
// holds "<ref>/content/<payload>" and the XIP document "<ref>/metadata.xml".
func (b *Builder) Build(p Package) (string, error) {
	if p.PayloadPath == "" {
		return "", errors.New("sip: package has no payload")
	}

	if p.ParentRef == "" {
		return "", errors.New("sip: package has no parent folder")
	}

	if err := os.MkdirAll(b.dir, 0o700); err != nil {
		return "", fmt.Errorf("sip: creating package directory: %w", err)
	}

	ref := b.newID()
	zipPath := filepath.Join(b.dir, ref+".zip")

	if err := b.writeZip(zipPath, ref, p); err != nil {
		os.Remove(zipPath)
		return "", err
	}

	b.logger.Debug("package built",
		slog.String("path", zipPath),
		slog.String("title", p.Title),
	)

	return zipPath, nil
}

func (b *Builder) writeZip(zipPath, ref string, p Package) error {
	out, err := os.OpenFile(zipPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("sip: creating package: %w", err)
	}

	zw := zip.NewWriter(out)
	fileName := filepath.Base(p.PayloadPath)

	size, digest, err := copyPayload(zw, ref+"/"+contentDir+"/"+fileName, p.PayloadPath)
	if err != nil {
		zw.Close()
		out.Close()

		return err
	}

	doc, err := b.xipDocument(p, fileName, size, digest)
	if err != nil {
		zw.Close()
		out.Close()

		return err
	}

	w, err := zw.Create(ref + "/metadata.xml")
	if err == nil {
		_, err = w.Write(doc)
	}

	if err != nil {
		zw.Close()
		out.Close()

		return fmt.Errorf("sip: writing package manifest: %w", err)
	}

	if err := zw.Close(); err != nil {
		out.Close()
		return fmt.Errorf("sip: finishing package: %w", err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("sip: closing package: %w", err)
	}

	return nil
}

// copyPayload streams the payload into the archive and returns its size
// and SHA1 hex digest.
func copyPayload(zw *zip.Writer, name, path string) (int64, string, error) {
	in, err := os.Open(path)
	if err != nil {
		return 0, "", fmt.Errorf("sip: opening payload: %w", err)
	}
	defer in.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return 0, "", fmt.Errorf("sip: adding payload: %w", err)
	}

	h := sha1.New() //nolint:gosec // fixity, not security

	n, err := io.Copy(io.MultiWriter(w, h), in)
	if err != nil {
		return 0, "", fmt.Errorf("sip: copying payload: %w", err)
	}

	return n, hex.EncodeToString(h.Sum(nil)), nil
}

type xipDoc struct {
	XMLName           xml.Name      `xml:"XIP"`
	Namespace         string        `xml:"xmlns,attr"`
	InformationObject xipObject     `xml:"InformationObject"`
	Representation    xipRep        `xml:"Representation"`
	ContentObject     xipObject     `xml:"ContentObject"`
	Generation        xipGeneration `xml:"Generation"`
	Bitstream         xipBitstream  `xml:"Bitstream"`
	Identifiers       []xipID       `xml:"Identifier"`
	Metadata          *xipMetadata  `xml:"Metadata,omitempty"`
}

type xipObject struct {
	Ref         string `xml:"Ref"`
	Title       string `xml:"Title"`
	Description string `xml:"Description"`
	SecurityTag string `xml:"SecurityTag"`
	Parent      string `xml:"Parent"`
}

type xipRep struct {
	InformationObject string   `xml:"InformationObject"`
	Name              string   `xml:"Name"`
	Type              string   `xml:"Type"`
	ContentObjects    []string `xml:"ContentObjects>ContentObject"`
}

type xipGeneration struct {
	Original      bool     `xml:"original,attr"`
	Active        bool     `xml:"active,attr"`
	ContentObject string   `xml:"ContentObject"`
	EffectiveDate string   `xml:"EffectiveDate"`
	Bitstreams    []string `xml:"Bitstreams>Bitstream"`
}

type xipBitstream struct {
	Filename         string      `xml:"Filename"`
	FileSize         int64       `xml:"FileSize"`
	PhysicalLocation string      `xml:"PhysicalLocation"`
	Fixities         []xipFixity `xml:"Fixities>Fixity"`
}

type xipFixity struct {
	Algorithm string `xml:"FixityAlgorithmRef"`
	Value     string `xml:"FixityValue"`
}

type xipID struct {
	Type   string `xml:"Type"`
	Value  string `xml:"Value"`
	Entity string `xml:"Entity"`
}

type xipMetadata struct {
	SchemaURI string     `xml:"schemaUri,attr"`
	Ref       string     `xml:"Ref"`
	Entity    string     `xml:"Entity"`
	Content   rawContent `xml:"Content"`
}

type rawContent struct {
	Inner []byte `xml:",innerxml"`
}

func (b *Builder) xipDocument(p Package, fileName string, size int64, digest string) ([]byte, error) {
	tag := p.SecurityTag
	if tag == "" {
		tag = defaultSecurityTag
	}

	ioRef, coRef := b.newID(), b.newID()

	doc := xipDoc{
		Namespace: xipNamespace,
		InformationObject: xipObject{
			Ref:         ioRef,
			Title:       p.Title,
			Description: p.Title,
			SecurityTag: tag,
			Parent:      p.ParentRef,
		},
		Representation: xipRep{
			InformationObject: ioRef,
			Name:              "Preservation",
			Type:              "Preservation",
			ContentObjects:    []string{coRef},
		},
		ContentObject: xipObject{
			Ref:         coRef,
			Title:       fileName,
			Description: fileName,
			SecurityTag: tag,
			Parent:      ioRef,
		},
		Generation: xipGeneration{
			Original:      true,
			Active:        true,
			ContentObject: coRef,
			EffectiveDate: b.now().UTC().Format(time.RFC3339),
			Bitstreams:    []string{contentDir + "/" + fileName},
		},
		Bitstream: xipBitstream{
			Filename:         fileName,
			FileSize:         size,
			PhysicalLocation: contentDir,
			Fixities:         []xipFixity{{Algorithm: fixityAlgorithm, Value: digest}},
		},
	}

	for _, id := range p.Identifiers {
		doc.Identifiers = append(doc.Identifiers, xipID{Type: id.Type, Value: id.Value, Entity: ioRef})
	}

	if len(p.Metadata) > 0 {
		doc.Metadata = &xipMetadata{
			SchemaURI: p.MetadataSchema,
			Ref:       b.newID(),
			Entity:    ioRef,
			Content:   rawContent{Inner: stripXMLHeader(p.Metadata)},
		}
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("sip: encoding manifest: %w", err)
	}

	return buf.Bytes(), nil
}

// stripXMLHeader drops a leading <?xml ...?> declaration so the document
// can be embedded.
func stripXMLHeader(b []byte) []byte {
	b = bytes.TrimSpace(b)
	if bytes.HasPrefix(b, []byte("<?xml")) {
		if i := bytes.Index(b, []byte("?>")); i >= 0 {
			b = bytes.TrimSpace(b[i+2:])
		}
	}

	return b
}
