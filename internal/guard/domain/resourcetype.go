package domain

import "fmt"

// ResourceType is the host's resource-type tag for an intercepted request.
// Values mirror the tags the browser hook reports.
type ResourceType string

const (
	ResourceTypeMainFrame  ResourceType = "main_frame"
	ResourceTypeSubFrame   ResourceType = "sub_frame"
	ResourceTypeStylesheet ResourceType = "stylesheet"
	ResourceTypeScript     ResourceType = "script"
	ResourceTypeImage      ResourceType = "image"
	ResourceTypeObject     ResourceType = "object"
	ResourceTypeXHR        ResourceType = "xmlhttprequest"
	ResourceTypeOther      ResourceType = "other"
)

// IsFrame reports whether the type is a top-level or sub-frame navigation.
// Frame blocking is a site-level decision, not a per-resource one.
func (t ResourceType) IsFrame() bool {
	return t == ResourceTypeMainFrame || t == ResourceTypeSubFrame
}

// Valid reports whether the tag is one the system knows.
func (t ResourceType) Valid() bool {
	switch t {
	case ResourceTypeMainFrame, ResourceTypeSubFrame, ResourceTypeStylesheet,
		ResourceTypeScript, ResourceTypeImage, ResourceTypeObject,
		ResourceTypeXHR, ResourceTypeOther:
		return true
	}
	return false
}

// ParseResourceType converts a host tag into a ResourceType.
func ParseResourceType(s string) (ResourceType, error) {
	t := ResourceType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unsupported resource type: %q", s)
	}
	return t, nil
}

// TypeCatalogEntry is one row of the static resource-type catalog, seeded
// once at schema creation and read-only thereafter.
type TypeCatalogEntry struct {
	ID   int64
	Name string
	Tag  ResourceType
}

// TypeCatalog enumerates the recordable resource types with their display
// names. Main-frame navigations are recorded as sites, not resources, so
// they carry no catalog entry.
var TypeCatalog = []TypeCatalogEntry{
	{ID: 1, Name: "Image", Tag: ResourceTypeImage},
	{ID: 2, Name: "Plugins", Tag: ResourceTypeObject},
	{ID: 3, Name: "Script", Tag: ResourceTypeScript},
	{ID: 4, Name: "CSS", Tag: ResourceTypeStylesheet},
	{ID: 5, Name: "AJAX", Tag: ResourceTypeXHR},
	{ID: 6, Name: "Subframe", Tag: ResourceTypeSubFrame},
	{ID: 7, Name: "Other", Tag: ResourceTypeOther},
}

// TrackableTypes lists the types a user can toggle tracking for.
var TrackableTypes = []ResourceType{
	ResourceTypeSubFrame,
	ResourceTypeImage,
	ResourceTypeObject,
	ResourceTypeOther,
	ResourceTypeScript,
	ResourceTypeXHR,
}
