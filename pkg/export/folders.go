package export

import (
	"github.com/natserract/sfmc/pkg/sfmc"
)

// AddFolderPaths annotates DataFolder records with a FullPath field by
// walking each folder's parent chain, so the export shows where every
// folder lives in the tree. Records missing their parent are left with
// their own name as the path.
func AddFolderPaths(records []sfmc.Record) {
	byObjectID := make(map[string]sfmc.Record, len(records))
	for _, r := range records {
		if id := r.String("ObjectID"); id != "" {
			byObjectID[id] = r
		}
	}

	for _, r := range records {
		r["FullPath"] = folderPath(byObjectID, r, 0)
	}
}

// folderPath builds "/Root/Child/Leaf" for one folder. The depth guard
// stops runaway chains if the server ever reports a parent cycle.
func folderPath(byObjectID map[string]sfmc.Record, r sfmc.Record, depth int) string {
	const maxDepth = 64
	if depth > maxDepth {
		return r.String("Name")
	}

	name := r.String("Name")
	parentID := r.String("ParentFolder.ObjectID")
	if parentID == "" {
		return "/" + name
	}
	parent, ok := byObjectID[parentID]
	if !ok {
		return "/" + name
	}
	return folderPath(byObjectID, parent, depth+1) + "/" + name
}
