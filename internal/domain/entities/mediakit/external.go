package mediakit

// ExternalComponent is generated content for one component as delivered by
// the external content source.
type ExternalComponent struct {
	Type  string
	Props Props
}
