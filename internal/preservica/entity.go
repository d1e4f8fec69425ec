package preservica

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/url"
)

// EntityRef is a reference to an asset or folder in the repository.
type EntityRef struct {
	Ref   string
	Type  string // "IO" (asset) or "SO" (folder)
	Title string
}

// Folder is a structural object that packages are ingested under.
type Folder struct {
	Ref    string
	Title  string
	Parent string
}

// entitiesResponse mirrors the by-identifier XML. Field tags omit the
// namespace so any Entity API version decodes.
type entitiesResponse struct {
	XMLName  xml.Name `xml:"EntitiesResponse"`
	Entities []struct {
		Ref   string `xml:"ref,attr"`
		Type  string `xml:"type,attr"`
		Title string `xml:"title,attr"`
	} `xml:"Entities>Entity"`
}

type entityResponse struct {
	XMLName          xml.Name `xml:"EntityResponse"`
	StructuralObject *struct {
		Ref    string `xml:"Ref"`
		Title  string `xml:"Title"`
		Parent string `xml:"Parent"`
	} `xml:"StructuralObject"`
}

// FindByIdentifier returns every entity carrying an external identifier of
// the given type and value. An empty slice means none exists.
func (c *Client) FindByIdentifier(ctx context.Context, idType, value string) ([]EntityRef, error) {
	q := url.Values{}
	q.Set("type", idType)
	q.Set("value", value)

	resp, err := c.Do(ctx, "/api/entity/entities/by-identifier?"+q.Encode())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var er entitiesResponse
	if err := xml.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("preservica: decoding identifier lookup: %w", err)
	}

	refs := make([]EntityRef, 0, len(er.Entities))
	for _, e := range er.Entities {
		refs = append(refs, EntityRef{Ref: e.Ref, Type: e.Type, Title: e.Title})
	}

	c.logger.Debug("identifier lookup",
		slog.String("type", idType),
		slog.String("value", value),
		slog.Int("matches", len(refs)),
	)

	return refs, nil
}

// Folder fetches a structural object by reference.
func (c *Client) Folder(ctx context.Context, ref string) (*Folder, error) {
	resp, err := c.Do(ctx, "/api/entity/structural-objects/"+url.PathEscape(ref))
	if err != nil {
		return nil, fmt.Errorf("preservica: fetching folder %s: %w", ref, err)
	}
	defer resp.Body.Close()

	var er entityResponse
	if err := xml.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("preservica: decoding folder %s: %w", ref, err)
	}

	if er.StructuralObject == nil {
		return nil, fmt.Errorf("preservica: entity %s is not a folder", ref)
	}

	return &Folder{
		Ref:    er.StructuralObject.Ref,
		Title:  er.StructuralObject.Title,
		Parent: er.StructuralObject.Parent,
	}, nil
}
