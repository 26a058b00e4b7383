package badger

// Key prefixes for different data types
const (
	vectorPrefix = "embvec"
)

// makeVectorKey generates a key for a vector by embedding hash.
func makeVectorKey(hash string) []byte {
	buf := make([]byte, 0, len(vectorPrefix)+1+len(hash))
	buf = append(buf, vectorPrefix...)
	buf = append(buf, ':')
	return append(buf, hash...)
}
