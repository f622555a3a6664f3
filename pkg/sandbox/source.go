package sandbox

// Source gives read-only access to the agent's own source tree
type Source struct {
	*Root
}

// NewSource returns a Source rooted at dir. The directory is not created.
func NewSource(dir string) (*Source, error) {
	root, err := NewRoot(dir)
	if err != nil {
		return nil, err
	}
	return &Source{Root: root}, nil
}
