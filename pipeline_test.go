package vkpace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytesToBytecode(t *testing.T) {
	// SPIR-V blobs are little-endian on disk; the first word of any
	// valid module is the magic number 0x07230203.
	words := bytesToBytecode([]byte{
		0x03, 0x02, 0x23, 0x07,
		0x00, 0x00, 0x01, 0x00,
	})

	assert.Equal(t, []uint32{0x07230203, 0x00010000}, words)
}

func TestBytesToBytecodeDropsTrailingBytes(t *testing.T) {
	words := bytesToBytecode([]byte{0x01, 0x00, 0x00, 0x00, 0xff})

	assert.Equal(t, []uint32{1}, words)
}
