package driven

// Corpus is the read side of one index generation: the evidence store and
// both indexes, built together and never mutated afterwards. A Corpus is
// passed by reference to every retrieval operation and may be shared by
// concurrent case workers without locking.
type Corpus struct {
	// Generation identifies the bundle the indexes were loaded from.
	Generation string

	Store   EvidenceStore
	Lexical LexicalIndex

	// Vectors is nil when the generation was built without embeddings.
	Vectors VectorIndex
}

// Len returns the number of records, or 0 for a nil corpus.
func (c *Corpus) Len() int {
	if c == nil || c.Store == nil {
		return 0
	}
	return c.Store.Len()
}
