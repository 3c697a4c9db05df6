package wol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBuildMagicPacket mirrors scenario S6.
func TestBuildMagicPacket(t *testing.T) {
	packet, err := BuildMagicPacket("AA:BB:CC:DD:EE:FF")
	require.NoError(t, err)
	require.Len(t, packet, 102)

	for i := 0; i < 6; i++ {
		assert.Equal(t, byte(0xFF), packet[i])
	}
	mac := []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	for rep := 0; rep < 16; rep++ {
		offset := 6 + rep*6
		assert.Equal(t, mac, packet[offset:offset+6])
	}
}

func TestBuildMagicPacketAcceptsHyphenatedMAC(t *testing.T) {
	packet, err := BuildMagicPacket("AA-BB-CC-DD-EE-FF")
	require.NoError(t, err)
	assert.Len(t, packet, 102)
}

func TestBuildMagicPacketRejectsInvalidMAC(t *testing.T) {
	_, err := BuildMagicPacket("not-a-mac")
	assert.ErrorIs(t, err, ErrInvalidMAC)
}
