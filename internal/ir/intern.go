package ir

// StringRef is a stable handle for an interned string. Equality between two
// StringRefs is equality between the strings they name, per spec section 3
// ("Strings used as names ... are interned by the graph; equality is pointer
// equality").
type StringRef int

const InvalidStringRef StringRef = -1

// interner owns the canonical copy of every interned string. It is released
// along with the Graph that owns it; references handed out to callers remain
// valid for the Graph's lifetime, including across GC compaction (strings are
// never moved or collected, only expressions are).
type interner struct {
	byString map[string]StringRef
	strings  []string
	capacity int // 0 means unlimited
}

func newInterner(capacity int) *interner {
	return &interner{
		byString: make(map[string]StringRef),
		capacity: capacity,
	}
}

// intern returns the canonical reference for s, allocating one if this is
// the first time s has been seen. Idempotent: intern(intern(s)) == intern(s)
// trivially, since the second call is a map hit returning the same ref.
func (in *interner) intern(s string) (StringRef, error) {
	if ref, ok := in.byString[s]; ok {
		return ref, nil
	}
	if in.capacity > 0 && len(in.strings) >= in.capacity {
		return InvalidStringRef, errOutOfMemory("string interner exhausted (capacity %d)", in.capacity)
	}
	ref := StringRef(len(in.strings))
	in.strings = append(in.strings, s)
	in.byString[s] = ref
	return ref, nil
}

func (in *interner) str(ref StringRef) string {
	if ref < 0 || int(ref) >= len(in.strings) {
		return ""
	}
	return in.strings[ref]
}
