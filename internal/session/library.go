package session

import "iter"

// Library holds the assets of the active project and the selected asset.
//
// Every refresh takes a new epoch. A fetch result is applied only while its
// epoch is still the current one, so a late response for a project the user
// has already left can never overwrite the list.
type Library struct {
	projectID string
	assets    []Asset
	selected  string
	epoch     uint64
	loading   bool
	// inserted holds uploads that landed while a fetch was in flight.
	inserted map[string]bool
}

func NewLibrary() *Library {
	return &Library{}
}

func (l *Library) Epoch() uint64 { return l.epoch }
func (l *Library) Loading() bool { return l.loading }

// All returns a restartable sequence over the current assets.
func (l *Library) All() iter.Seq[Asset] {
	return func(yield func(Asset) bool) {
		for _, a := range l.assets {
			if !yield(a.clone()) {
				return
			}
		}
	}
}

// BeginRefresh invalidates the current list and returns the epoch the fetch
// for projectID must present to Apply.
func (l *Library) BeginRefresh(projectID string) uint64 {
	l.epoch++
	if projectID != l.projectID {
		l.assets = nil
		l.selected = ""
	}
	l.projectID = projectID
	l.loading = true
	l.inserted = make(map[string]bool)
	return l.epoch
}

// Apply installs a fetch result. It reports false, leaving the library
// untouched, when epoch is stale.
//
// Assets inserted while the fetch was in flight and missing from the result
// are kept at the head. The selection survives if the asset is still listed.
func (l *Library) Apply(epoch uint64, fetched []Asset) bool {
	if epoch != l.epoch {
		return false
	}

	listed := make(map[string]bool, len(fetched))
	for _, a := range fetched {
		listed[a.ID] = true
	}

	list := make([]Asset, 0, len(l.assets)+len(fetched))
	for _, a := range l.assets {
		if l.inserted[a.ID] && !listed[a.ID] {
			list = append(list, a)
			listed[a.ID] = true
		}
	}
	for _, a := range fetched {
		list = append(list, a)
	}
	l.assets = dedupeAssets(list)
	l.loading = false
	l.inserted = nil

	if l.selected != "" && !l.contains(l.selected) {
		l.selected = ""
	}
	return true
}

// Abandon ends the loading state of a failed fetch. Stale epochs are ignored.
func (l *Library) Abandon(epoch uint64) bool {
	if epoch != l.epoch {
		return false
	}
	l.loading = false
	l.inserted = nil
	return true
}

// Insert adds an uploaded asset at the head and selects it. It reports false
// when the library no longer belongs to the asset's project.
func (l *Library) Insert(a Asset) bool {
	if a.ProjectID != l.projectID {
		return false
	}
	list := make([]Asset, 0, len(l.assets)+1)
	list = append(list, a)
	for _, existing := range l.assets {
		if existing.ID != a.ID {
			list = append(list, existing)
		}
	}
	l.assets = list
	l.selected = a.ID
	if l.loading {
		l.inserted[a.ID] = true
	}
	return true
}

// Select makes id the selected asset.
func (l *Library) Select(id string) (Asset, error) {
	a, ok := l.find(id)
	if !ok {
		return Asset{}, &NotFoundError{Kind: "asset", ID: id}
	}
	l.selected = id
	return a, nil
}

// Selected returns the selected asset.
func (l *Library) Selected() (Asset, bool) {
	if l.selected == "" {
		return Asset{}, false
	}
	return l.find(l.selected)
}

// Clear empties the library and invalidates any fetch in flight.
func (l *Library) Clear() {
	l.epoch++
	l.projectID = ""
	l.assets = nil
	l.selected = ""
	l.loading = false
	l.inserted = nil
}

func (l *Library) contains(id string) bool {
	_, ok := l.find(id)
	return ok
}

func (l *Library) find(id string) (Asset, bool) {
	for _, a := range l.assets {
		if a.ID == id {
			return a.clone(), true
		}
	}
	return Asset{}, false
}

func dedupeAssets(list []Asset) []Asset {
	seen := make(map[string]bool, len(list))
	out := list[:0]
	for _, a := range list {
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		out = append(out, a)
	}
	return out
}
