package aegisfserr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reekid420/AegisFS/internal/aegisfserr"
)

func TestNewSetsKindAndMessage(t *testing.T) {
	err := aegisfserr.New(aegisfserr.KindNotFound, "inode %d", 42)

	assert.Equal(t, aegisfserr.KindNotFound, err.Kind)
	assert.Contains(t, err.Error(), "NotFound")
	assert.Contains(t, err.Error(), "inode 42")
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("short read")
	err := aegisfserr.Wrap(aegisfserr.KindInputOutput, cause, "reading block %d", 7)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "short read")
}

func TestKindOfUnwrapsWrappedErrors(t *testing.T) {
	base := aegisfserr.New(aegisfserr.KindNoFreeBlocks, "device full")
	wrapped := fmt.Errorf("allocate data block: %w", base)

	assert.Equal(t, aegisfserr.KindNoFreeBlocks, aegisfserr.KindOf(wrapped))
}

func TestKindOfReturnsUnknownForPlainErrors(t *testing.T) {
	assert.Equal(t, aegisfserr.KindUnknown, aegisfserr.KindOf(errors.New("plain")))
}
