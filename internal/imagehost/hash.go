package imagehost

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// blobDomainKey separates blob hashes from any other BLAKE3 use of the same
// bytes. Changing it orphans every stored blob.
var blobDomainKey = [32]byte{
	'i', 'm', 'a', 'g', 'e', 't', 'o', 'l', 'i', 'n', 'k', '.', 'b', 'l', 'o', 'b',
}

// HashBlob returns the hex BLAKE3 keyed hash addressing data on disk.
func HashBlob(data []byte) string {
	hasher, err := blake3.NewKeyed(blobDomainKey[:])
	if err != nil {
		panic("imagehost: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil))
}
