package manifest

// Kind identifies which variant a Node holds.
type Kind int

const (
	// KindScalar is a plain text value.
	KindScalar Kind = iota
	// KindMapping is an ordered list of key/value fields.
	KindMapping
	// KindSequence is a list of nodes.
	KindSequence
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindMapping:
		return "mapping"
	case KindSequence:
		return "sequence"
	default:
		return "unknown"
	}
}

// Node is a manifest value: a scalar, a mapping or a sequence.
// The zero Node is an empty scalar.
type Node struct {
	kind   Kind
	scalar string
	fields []Field
	items  []Node
}

// Field is one entry of a mapping.
type Field struct {
	Key   string
	Value Node
}

// Scalar returns a scalar node.
func Scalar(s string) Node {
	return Node{kind: KindScalar, scalar: s}
}

// Map returns a mapping node. Fields keep the order they are given in.
func Map(fields ...Field) Node {
	return Node{kind: KindMapping, fields: fields}
}

// Seq returns a sequence node.
func Seq(items ...Node) Node {
	return Node{kind: KindSequence, items: items}
}

// Scalars returns a sequence of scalar nodes.
func Scalars(values ...string) Node {
	items := make([]Node, len(values))
	for i, v := range values {
		items[i] = Scalar(v)
	}
	return Seq(items...)
}

// KV is shorthand for a Field.
func KV(key string, value Node) Field {
	return Field{Key: key, Value: value}
}

// Kind returns the variant held by n.
func (n Node) Kind() Kind { return n.kind }

// Value returns the text of a scalar node.
func (n Node) Value() string { return n.scalar }

// Fields returns the fields of a mapping node.
func (n Node) Fields() []Field { return n.fields }

// Items returns the items of a sequence node.
func (n Node) Items() []Node { return n.items }

// Get returns the value stored under key in a mapping node.
func (n Node) Get(key string) (Node, bool) {
	for _, f := range n.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Node{}, false
}
