package errors_test

import (
	stderrors "errors"
	"testing"

	"github.com/go-ext2/ext2fs/errors"
	"github.com/stretchr/testify/assert"
)

func TestCodeWithMessage(t *testing.T) {
	err := errors.FSExists.WithMessage("/a")
	assert.Equal(t, "ext2: file exists: /a", err.Error())
	assert.ErrorIs(t, err, errors.FSExists)
}

func TestCodeWrap(t *testing.T) {
	original := stderrors.New("short write")
	err := errors.FSIo.Wrap(original)

	assert.Equal(t, "ext2: input/output error: short write", err.Error())
	assert.ErrorIs(t, err, original)
	assert.ErrorIs(t, err, errors.FSIo)
}

func TestWithMessageChaining(t *testing.T) {
	err := errors.FSNotFound.WithMessage("/a/b").WithMessage("resolving /a/b/c")
	assert.ErrorIs(t, err, errors.FSNotFound)
	assert.Contains(t, err.Error(), "resolving /a/b/c")
}
