package session

import (
	"fmt"
	"iter"
)

// Catalog holds the known projects, most recently created first, and the
// active one.
type Catalog struct {
	projects []Project
	active   string
	// created tracks projects created in this session, which survive a
	// reload that raced with their creation.
	created map[string]bool
}

func NewCatalog() *Catalog {
	return &Catalog{created: make(map[string]bool)}
}

// All returns a restartable sequence over the current projects.
func (c *Catalog) All() iter.Seq[Project] {
	return func(yield func(Project) bool) {
		for _, p := range c.projects {
			if !yield(p) {
				return
			}
		}
	}
}

func (c *Catalog) Len() int {
	return len(c.projects)
}

// DefaultTitle is the title given to a project created without one.
func (c *Catalog) DefaultTitle() string {
	return fmt.Sprintf("Project %d", c.Len()+1)
}

// Insert adds a newly created project at the head and makes it active.
func (c *Catalog) Insert(p Project) {
	list := make([]Project, 0, len(c.projects)+1)
	list = append(list, p)
	for _, existing := range c.projects {
		if existing.ID != p.ID {
			list = append(list, existing)
		}
	}
	c.projects = list
	c.created[p.ID] = true
	c.active = p.ID
}

// Replace installs a freshly loaded project list. Projects created in this
// session that the list does not contain are kept at the head. It reports
// whether the active project was dropped.
func (c *Catalog) Replace(loaded []Project) (activeDropped bool) {
	seen := make(map[string]bool, len(loaded))
	for _, p := range loaded {
		seen[p.ID] = true
	}

	list := make([]Project, 0, len(loaded)+len(c.created))
	for _, p := range c.projects {
		if c.created[p.ID] && !seen[p.ID] {
			list = append(list, p)
			seen[p.ID] = true
		}
	}
	for _, p := range loaded {
		list = append(list, p)
	}
	c.projects = dedupe(list)

	if c.active != "" && !c.contains(c.active) {
		c.active = ""
		return true
	}
	return false
}

// Select makes id the active project.
func (c *Catalog) Select(id string) (Project, error) {
	p, ok := c.find(id)
	if !ok {
		return Project{}, &NotFoundError{Kind: "project", ID: id}
	}
	c.active = id
	return p, nil
}

// Clear unsets the active project.
func (c *Catalog) Clear() {
	c.active = ""
}

// Active returns the active project.
func (c *Catalog) Active() (Project, bool) {
	if c.active == "" {
		return Project{}, false
	}
	return c.find(c.active)
}

func (c *Catalog) contains(id string) bool {
	_, ok := c.find(id)
	return ok
}

func (c *Catalog) find(id string) (Project, bool) {
	for _, p := range c.projects {
		if p.ID == id {
			return p, true
		}
	}
	return Project{}, false
}

func dedupe(list []Project) []Project {
	seen := make(map[string]bool, len(list))
	out := list[:0]
	for _, p := range list {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out
}
