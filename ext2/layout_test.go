package ext2

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRawInodeIsRevision0Size(t *testing.T) {
	assert.Equal(t, rev0InodeSize, int(binary.Size(RawInode{})))
}

func TestRawGroupDescriptorIsFixedSize(t *testing.T) {
	assert.Equal(t, groupDescriptorSize, int(binary.Size(RawGroupDescriptor{})))
}

func TestHasFormat(t *testing.T) {
	assert.True(t, hasFormat(formatDirectory|0755, formatDirectory))
	assert.False(t, hasFormat(formatRegular|0644, formatDirectory))
}
