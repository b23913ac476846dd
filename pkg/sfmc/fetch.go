package sfmc

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// FetchObject retrieves every record of a cataloged object over whichever
// protocol the catalog declares. id fills a {id} placeholder in REST
// endpoints (fetch-by-id entries); it is ignored for SOAP objects.
func (c *Client) FetchObject(ctx context.Context, logicalName, id string, morerow bool) (*Result, *ObjectDescriptor, error) {
	desc, err := c.catalog.Resolve(logicalName)
	if err != nil {
		return nil, nil, err
	}

	c.logger.Info("Fetching object",
		zap.String("object", desc.Name),
		zap.String("protocol", string(desc.Protocol)))

	switch desc.Protocol {
	case ProtocolSOAP:
		result, err := c.Retrieve(ctx, desc.Target, desc.Fields, nil, morerow)
		if err != nil {
			return nil, desc, err
		}
		return result, desc, nil
	default:
		result, err := c.Get(ctx, desc.EndpointFor(id), desc.QueryParams(""), morerow)
		if err != nil {
			return nil, desc, err
		}
		return result, desc, nil
	}
}

// EndpointFor substitutes an {id} placeholder in the descriptor's
// endpoint path.
func (d *ObjectDescriptor) EndpointFor(id string) string {
	if id == "" {
		return d.Target
	}
	return strings.ReplaceAll(d.Target, "{id}", id)
}

// QueryParams builds the default REST query for this descriptor:
// first-page pagination plus the catalog's fields, ordering and filter.
// folderID, when set, narrows the filter to records in that folder.
func (d *ObjectDescriptor) QueryParams(folderID string) map[string]string {
	params := map[string]string{
		"$page":     "1",
		"$pagesize": "50",
	}
	if len(d.Fields) > 0 {
		params["$fields"] = strings.Join(d.Fields, ",")
	}
	if d.OrderBy != "" {
		params["$orderBy"] = d.OrderBy
	}
	if folderID != "" {
		params["$filter"] = d.FolderKey + "=" + folderID
	} else if d.Filter != "" {
		params["$filter"] = d.Filter
	}
	return params
}
