package buffer

// Leased is what frames carry: an arena Lease or a PooledBuffer.
type Leased interface {
	Bytes() []byte
	Len() int
	Release()
	Freeze() []byte
}

var (
	_ Leased = (*Lease)(nil)
	_ Leased = (*PooledBuffer)(nil)
)

// Owned wraps a plain slice that has no recycling source.
type Owned []byte

func (o Owned) Bytes() []byte  { return o }
func (o Owned) Len() int       { return len(o) }
func (o Owned) Release()       {}
func (o Owned) Freeze() []byte { return o }
