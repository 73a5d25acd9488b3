package domain

// Scope identifies the partner location a catalog belongs to.
type Scope struct {
	Partner  string `json:"partner"`
	Location string `json:"location"`
}

func (s Scope) String() string {
	return s.Partner + "/" + s.Location
}
