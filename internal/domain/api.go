package domain

import "time"

type RetrieveRequest struct {
	Scope       Scope
	Fingerprint string // Last observed fingerprint, lets the server answer "not modified"
	KeysOnly    bool
}

type RetrieveResponse struct {
	Fingerprint string   `json:"fingerprint"`
	Version     string   `json:"version,omitempty"`
	Catalog     *Catalog `json:"catalog,omitempty"`
	NotModified bool     `json:"-"`
}

func (r *RetrieveResponse) HasCatalog() bool {
	return r != nil && r.Catalog != nil
}

type ProductRequest struct {
	Scope Scope
	Key   ProductKey
	Fresh bool // Skip the local cache
}

type ProductResponse struct {
	Product   Product   `json:"product"`
	Modified  time.Time `json:"-"`
	FromCache bool      `json:"-"`
}

type FeaturedRequest struct {
	Scope Scope
	Limit int
}

type FeaturedResponse struct {
	Products []Product `json:"products"`
}

type StreamRequest struct {
	Scope       Scope
	Fingerprint string   // Fingerprint of BaseMenu
	BaseMenu    *Catalog // Locally cached copy, trusted if the server confirms Fingerprint
	KeysOnly    bool
}
