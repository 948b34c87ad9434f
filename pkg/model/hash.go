// Package model defines the core data structures used throughout the application.
package model

import (
	"encoding/binary"
	"fmt"

	"github.com/minio/highwayhash"
)

// fingerprintKey is the fixed HighwayHash key used for all content
// fingerprints. Changing it invalidates every recorded cache file, so it is
// part of the on-disk format.
var fingerprintKey = [32]byte{
	0x70, 0x73, 0x6f, 0x2d, 0x70, 0x72, 0x65, 0x63,
	0x61, 0x63, 0x68, 0x65, 0x2d, 0x66, 0x70, 0x2d,
	0x6b, 0x65, 0x79, 0x2d, 0x76, 0x31, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01,
}

// Hash is the stable fingerprint of a PSO descriptor.
type Hash uint64

// String returns the hash in fixed-width hex form.
func (h Hash) String() string {
	return fmt.Sprintf("%016x", uint64(h))
}

// ShaderHash is the content fingerprint of a compiled shader bytecode blob.
type ShaderHash uint64

// String returns the hash in fixed-width hex form.
func (h ShaderHash) String() string {
	return fmt.Sprintf("%016x", uint64(h))
}

// FingerprintBytes computes the content fingerprint of a byte blob.
func FingerprintBytes(data []byte) uint64 {
	return highwayhash.Sum64(data, fingerprintKey[:])
}

// ShaderFingerprint computes the ShaderHash of shader bytecode.
func ShaderFingerprint(bytecode []byte) ShaderHash {
	return ShaderHash(FingerprintBytes(bytecode))
}

// CombineHashes folds a sequence of 64-bit values into a single fingerprint.
// Used to derive a PSO hash from its canonical descriptor encoding.
func CombineHashes(values ...uint64) uint64 {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], v)
	}
	return FingerprintBytes(buf)
}
