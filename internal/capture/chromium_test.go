package capture

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCaptureRejectsInvalidViewport(t *testing.T) {
	c := &Chromium{}
	out, err := c.Capture(context.Background(), []byte("<html></html>"), 0, 480)
	assert.Error(t, err)
	assert.Nil(t, out)
}
