package task

type SectionTask struct {
	Scope        string `json:"scope"`         // partner/location
	Section      string `json:"section"`       // Section name
	ProductCount int    `json:"product_count"` // Products written for the section
}

func (t *SectionTask) TaskType() string {
	return "SectionTask"
}

func (t *SectionTask) TaskValue() ([]byte, error) {
	return DefaultTaskValue(t)
}
