package domain

import "time"

type Section struct {
	Name     string    `json:"name"`
	Products []Product `json:"products"`
}

type Catalog struct {
	Fingerprint string    `json:"fingerprint"`        // Opaque hash of the full catalog state
	Version     string    `json:"version,omitempty"`  // Server version tag, diagnostic only
	Sections    []Section `json:"sections,omitempty"` // Sections with their products
}

func (c *Catalog) HasSections() bool {
	return c != nil && len(c.Sections) > 0
}

func (c *Catalog) ProductCount() int {
	if c == nil {
		return 0
	}
	count := 0
	for _, section := range c.Sections {
		count += len(section.Products)
	}
	return count
}

// CatalogMeta is the persisted fingerprint/version state of a scope.
type CatalogMeta struct {
	Fingerprint  string
	Version      string
	LastModified time.Time
}

func (m CatalogMeta) IsZero() bool {
	return m.Fingerprint == "" && m.Version == "" && m.LastModified.IsZero()
}

// WithEvent returns the catalog that results from applying event to c. A
// full catalog in the event replaces c. The receiver is not modified.
func (c *Catalog) WithEvent(event MenuEvent) *Catalog {
	if event.HasCatalog() {
		next := *event.Catalog
		if event.Fingerprint != "" {
			next.Fingerprint = event.Fingerprint
		}
		return &next
	}

	next := &Catalog{}
	if c != nil {
		next.Fingerprint = c.Fingerprint
		next.Version = c.Version
		next.Sections = make([]Section, len(c.Sections))
		for i, section := range c.Sections {
			next.Sections[i] = Section{
				Name:     section.Name,
				Products: append([]Product(nil), section.Products...),
			}
		}
	}

	for _, change := range event.Changes {
		key := change.Product.Key()
		switch change.Op {
		case ChangeDelete:
			for i := range next.Sections {
				if change.Section != "" && next.Sections[i].Name != change.Section {
					continue
				}
				next.Sections[i].Products = removeProduct(next.Sections[i].Products, key)
			}
		case ChangeAdd, ChangeUpdate:
			idx := next.sectionIndex(change.Section)
			if idx < 0 {
				next.Sections = append(next.Sections, Section{Name: change.Section})
				idx = len(next.Sections) - 1
			}
			next.Sections[idx].Products = upsertProduct(next.Sections[idx].Products, change.Product)
		}
	}

	if event.Fingerprint != "" {
		next.Fingerprint = event.Fingerprint
	}
	if event.Version != "" {
		next.Version = event.Version
	}
	return next
}

func (c *Catalog) sectionIndex(name string) int {
	for i, section := range c.Sections {
		if section.Name == name {
			return i
		}
	}
	return -1
}

func removeProduct(products []Product, key ProductKey) []Product {
	kept := products[:0]
	for _, p := range products {
		if p.Key() != key {
			kept = append(kept, p)
		}
	}
	return kept
}

func upsertProduct(products []Product, product Product) []Product {
	key := product.Key()
	for i, p := range products {
		if p.Key() == key {
			products[i] = product
			return products
		}
	}
	return append(products, product)
}
