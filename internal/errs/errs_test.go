package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Format(t *testing.T) {
	t.Parallel()

	err := New(UnknownFeature, "feature %q not registered", "foo")
	assert.Equal(t, `[UnknownFeature] feature "foo" not registered`, err.Error())

	wrapped := Wrap(errors.New("disk full"), IOError, "write %s", "out.ply")
	assert.Equal(t, "[IOError] write out.ply: disk full", wrapped.Error())
}

func TestError_IsMatchesByCode(t *testing.T) {
	t.Parallel()

	err := New(VolumeMismatch, "echo ratio needs a cylinder")
	assert.True(t, errors.Is(err, ErrVolumeMismatch))
	assert.False(t, errors.Is(err, ErrInvalidInput))

	outer := fmt.Errorf("chunk 3: %w", err)
	assert.True(t, errors.Is(outer, ErrVolumeMismatch))
}

func TestWrap_KeepsInnerCode(t *testing.T) {
	t.Parallel()

	inner := New(MissingAttribute, "no raw_classification")
	err := Wrap(inner, "", "extractor %s failed", "pulse_penetration")
	assert.Equal(t, MissingAttribute, CodeOf(err))
	assert.True(t, errors.Is(err, ErrMissingAttribute))

	recoded := Wrap(inner, IOError, "reading")
	assert.Equal(t, IOError, CodeOf(recoded))
	assert.True(t, Has(recoded, MissingAttribute))
}

func TestWrap_Nil(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Wrap(nil, IOError, "nothing"))
	assert.Equal(t, Code(""), CodeOf(nil))
}

func TestCodeOf_Uncoded(t *testing.T) {
	t.Parallel()
	assert.Equal(t, InvalidInput, CodeOf(errors.New("plain")))

	err := Wrap(context.Canceled, Cancelled, "stopped")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, errors.Is(err, ErrCancelled))
}
