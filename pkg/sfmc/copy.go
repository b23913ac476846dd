package sfmc

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// copyConcurrency bounds the per-record create calls of one copy batch.
const copyConcurrency = 5

// Fields that identify the source record server-side and must not be
// carried onto the clone.
var identityFields = []string{"ID", "ObjectID", "PartnerKey", "CreatedDate", "ModifiedDate", "id", "modifiedDate", "createdDate"}

// CopySummary reports the outcome of one copy batch. Per-record failures
// are collected, not fatal: the batch always runs to completion.
type CopySummary struct {
	Object    string
	Succeeded int
	Skipped   int
	Failed    []RecordFailure
	mu        sync.Mutex
}

func (s *CopySummary) addSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Succeeded++
}

func (s *CopySummary) addSkip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Skipped++
}

func (s *CopySummary) addFailure(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Failed = append(s.Failed, RecordFailure{Name: name, Err: err})
}

// Total returns the number of records the batch attempted or skipped.
func (s *CopySummary) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Succeeded + s.Skipped + len(s.Failed)
}

// Copy clones every record of a cataloged object from one folder into
// another, rewriting the folder-key field. Records whose name already
// exists in the destination are skipped. Per-record failures are
// collected into the summary and a PartialCopyError; only batch-level
// failures (auth, catalog miss, source fetch) abort the operation.
func (c *Client) Copy(ctx context.Context, logicalName, sourceFolder, destFolder string) (*CopySummary, error) {
	desc, err := c.catalog.Resolve(logicalName)
	if err != nil {
		return nil, err
	}
	if desc.FolderKey == "" {
		return nil, fmt.Errorf("object %q is not folder-scoped and cannot be copied between folders", desc.Name)
	}

	c.logger.Info("Copying records between folders",
		zap.String("object", desc.Name),
		zap.String("protocol", string(desc.Protocol)),
		zap.String("source_folder", sourceFolder),
		zap.String("dest_folder", destFolder))

	source, err := c.fetchFolder(ctx, desc, sourceFolder)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source folder %s: %w", sourceFolder, err)
	}
	if len(source) == 0 {
		return nil, fmt.Errorf("no %s records found in source folder %s", desc.Name, sourceFolder)
	}

	dest, err := c.fetchFolder(ctx, desc, destFolder)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch destination folder %s: %w", destFolder, err)
	}

	existing := make(map[string]bool, len(dest))
	for _, r := range dest {
		if name := r.Name(); name != "" {
			existing[name] = true
		}
	}

	summary := &CopySummary{Object: desc.Name}

	p := pool.New().WithMaxGoroutines(copyConcurrency)
	for _, record := range source {
		record := record
		p.Go(func() {
			name := record.Name()
			if existing[name] {
				c.logger.Debug("Skipping record already present in destination", zap.String("name", name))
				summary.addSkip()
				return
			}

			if err := c.copyRecord(ctx, desc, record, destFolder); err != nil {
				c.logger.Error("Failed to copy record",
					zap.String("object", desc.Name),
					zap.String("name", name),
					zap.Error(err))
				summary.addFailure(name, err)
				return
			}

			c.logger.Info("Copied record", zap.String("object", desc.Name), zap.String("name", name))
			summary.addSuccess()
		})
	}
	p.Wait()

	if len(summary.Failed) > 0 {
		return summary, &PartialCopyError{Failures: summary.Failed}
	}
	return summary, nil
}

// fetchFolder retrieves all records whose folder-key field equals folderID.
func (c *Client) fetchFolder(ctx context.Context, desc *ObjectDescriptor, folderID string) ([]Record, error) {
	switch desc.Protocol {
	case ProtocolSOAP:
		result, err := c.Retrieve(ctx, desc.Target, desc.Fields, FolderFilter(desc.FolderKey, folderID), true)
		if err != nil {
			return nil, err
		}
		return result.Records, nil
	default:
		result, err := c.Get(ctx, desc.Target, desc.QueryParams(folderID), true)
		if err != nil {
			return nil, err
		}
		return result.Records, nil
	}
}

// copyRecord clones one record into the destination folder.
func (c *Client) copyRecord(ctx context.Context, desc *ObjectDescriptor, record Record, destFolder string) error {
	switch desc.Protocol {
	case ProtocolSOAP:
		clone := cloneForCreate(record)
		// The platform requires a client-supplied key on create; the
		// source key stays with the source record.
		clone["CustomerKey"] = uuid.NewString()
		setPath(clone, desc.FolderKey, folderValue(destFolder))
		_, err := c.Create(ctx, desc.Target, clone)
		return err
	default:
		payload := restCopyPayload(record)
		payload["customerKey"] = uuid.NewString()
		setPath(payload, desc.FolderKey, folderValue(destFolder))
		_, err := c.Post(ctx, desc.Target, payload)
		return err
	}
}

// cloneForCreate copies a record without its server-assigned identity.
func cloneForCreate(record Record) Record {
	clone := make(Record, len(record))
	for k, v := range record {
		clone[k] = v
	}
	for _, f := range identityFields {
		delete(clone, f)
	}
	return clone
}

// restCopyPayload shapes the create body for a REST clone: name and
// assetType always, plus whichever content-bearing members the source
// carries (views/content/data/design/meta/slots vary by asset type).
func restCopyPayload(record Record) Record {
	payload := Record{}
	for _, k := range []string{"name", "assetType", "views", "content", "data", "design", "meta", "slots"} {
		if v, ok := record[k]; ok && v != nil {
			payload[k] = v
		}
	}
	return payload
}

// setPath writes a value at a dot-separated path, creating intermediate
// maps. This is the folder-key substitution: "category.id" becomes
// {"category": {"id": value}}.
func setPath(record Record, path string, value any) {
	parts := strings.Split(path, ".")
	cur := record
	for _, p := range parts[:len(parts)-1] {
		switch next := cur[p].(type) {
		case Record:
			cur = next
		case map[string]any:
			cur = Record(next)
		default:
			child := Record{}
			cur[p] = child
			cur = child
		}
	}
	cur[parts[len(parts)-1]] = value
}

// folderValue sends numeric folder ids as numbers, matching what the
// REST API returns for category ids.
func folderValue(folderID string) any {
	if n, err := strconv.Atoi(folderID); err == nil {
		return n
	}
	return folderID
}
