package sfmc

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

//go:embed catalog/soap_objects.json catalog/rest_objects.json
var catalogFS embed.FS

// Protocol names the API surface an object lives on.
type Protocol string

const (
	ProtocolSOAP Protocol = "SOAP"
	ProtocolREST Protocol = "REST"
)

// ObjectDescriptor tells the generic fetch/copy operations everything
// they need to know about one object type: which protocol it speaks,
// its wire-level identifier (SOAP object type or REST endpoint path),
// the default properties to request, and which field keys a record to
// its folder.
type ObjectDescriptor struct {
	Name      string   `json:"name"`
	Protocol  Protocol `json:"-"`
	Target    string   `json:"-"`
	Fields    []string `json:"fields"`
	FolderKey string   `json:"folderkey"`

	// REST-only extras, passed through as query parameters.
	Method  string `json:"method,omitempty"`
	OrderBy string `json:"order_by,omitempty"`
	Filter  string `json:"filter,omitempty"`
}

// catalogEntry is the on-disk shape; exactly one of ObjectType and
// Endpoint is set, which also decides the protocol.
type catalogEntry struct {
	ObjectDescriptor
	ObjectType string `json:"objecttype,omitempty"`
	Endpoint   string `json:"endpoint,omitempty"`
}

// Catalog maps logical object names to descriptors. Loaded once, then
// read-only: lookups need no locking.
type Catalog struct {
	objects map[string]*ObjectDescriptor
}

// DefaultCatalog loads the embedded SOAP and REST object mappings.
func DefaultCatalog() *Catalog {
	soap, _ := catalogFS.ReadFile("catalog/soap_objects.json")
	rest, _ := catalogFS.ReadFile("catalog/rest_objects.json")
	cat, err := parseCatalog(soap, rest)
	if err != nil {
		// Embedded files are fixed at build time; a parse failure here is
		// a programming error.
		panic(fmt.Sprintf("sfmc: embedded catalog is invalid: %v", err))
	}
	return cat
}

// LoadCatalogDir reads sfmc_soap_objects.json and sfmc_rest_objects.json
// from dir, replacing the embedded defaults. A missing file leaves that
// protocol's mapping empty.
func LoadCatalogDir(dir string) (*Catalog, error) {
	soap, err := os.ReadFile(filepath.Join(dir, "sfmc_soap_objects.json"))
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read soap catalog: %w", err)
	}
	rest, err := os.ReadFile(filepath.Join(dir, "sfmc_rest_objects.json"))
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read rest catalog: %w", err)
	}
	return parseCatalog(soap, rest)
}

func parseCatalog(soapData, restData []byte) (*Catalog, error) {
	cat := &Catalog{objects: make(map[string]*ObjectDescriptor)}

	if err := cat.addEntries(soapData, ProtocolSOAP); err != nil {
		return nil, fmt.Errorf("soap catalog: %w", err)
	}
	if err := cat.addEntries(restData, ProtocolREST); err != nil {
		return nil, fmt.Errorf("rest catalog: %w", err)
	}

	return cat, nil
}

func (c *Catalog) addEntries(data []byte, protocol Protocol) error {
	if len(data) == 0 {
		return nil
	}

	var entries []catalogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse entries: %w", err)
	}

	for _, e := range entries {
		desc := e.ObjectDescriptor
		desc.Protocol = protocol
		switch protocol {
		case ProtocolSOAP:
			desc.Target = e.ObjectType
		case ProtocolREST:
			desc.Target = e.Endpoint
		}
		if desc.Name == "" || desc.Target == "" {
			return fmt.Errorf("entry %q is missing a name or target identifier", e.Name)
		}
		c.objects[strings.ToLower(desc.Name)] = &desc
	}

	return nil
}

// Resolve looks up a logical object name, case-insensitively.
func (c *Catalog) Resolve(logicalName string) (*ObjectDescriptor, error) {
	desc, ok := c.objects[strings.ToLower(logicalName)]
	if !ok {
		return nil, &UnknownObjectError{Name: logicalName}
	}
	return desc, nil
}

// Names returns every logical name in the catalog, useful for CLI help.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.objects))
	for _, d := range c.objects {
		names = append(names, d.Name)
	}
	return names
}
