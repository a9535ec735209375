package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mbianchi/photarc/pkg/vision"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"permanent wrapper", PermanentStageError("corrupt jpeg"), Permanent},
		{"wrapped permanent", fmt.Errorf("stage: %w", PermanentStageError("bad")), Permanent},
		{"unavailable wrapper", UnavailableStageError("no model"), Unavailable},
		{"vision disabled", vision.ErrDisabled, Unavailable},
		{"vision cooldown", fmt.Errorf("caption: %w", vision.ErrUnavailable), Unavailable},
		{"cancelled", context.Canceled, Cancelled},
		{"file vanished", fs.ErrNotExist, Transient},
		{"permission", fs.ErrPermission, Transient},
		{"deadline", context.DeadlineExceeded, Transient},
		{"unknown", errors.New("something"), Transient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestErrorKindString(t *testing.T) {
	assert.Equal(t, "transient", Transient.String())
	assert.Equal(t, "permanent", Permanent.String())
	assert.Equal(t, "unavailable", Unavailable.String())
	assert.Equal(t, "cancelled", Cancelled.String())
}

func TestFlowOrder(t *testing.T) {
	assert.Contains(t, Entry, StageExif, "exif starts from discovery")
	assert.Equal(t, []Stage{StageGeocode}, Downstream[StageExif], "geocoding consumes exif GPS")
	assert.Empty(t, Downstream[StageCaption], "caption is a graph leaf")

	for _, stage := range Flow {
		assert.Positive(t, Versions[stage], "every stage needs a version")
	}
}
