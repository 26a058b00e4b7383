package vectorstore

// PointID converts a content hash to a Qdrant point id. Qdrant accepts only
// UUIDs or unsigned integers as ids, so the first 128 bits of the hex digest
// are formatted as a UUID. The full hash travels in the payload.
func PointID(hash string) string {
	if len(hash) < 32 {
		// Pad short ids; content hashes are always 64 hex chars, but test
		// fixtures may be shorter.
		padded := hash
		for len(padded) < 32 {
			padded += "0"
		}
		hash = padded
	}
	return hash[0:8] + "-" + hash[8:12] + "-" + hash[12:16] + "-" + hash[16:20] + "-" + hash[20:32]
}
