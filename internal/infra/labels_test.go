package infra

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStaticLabelResolver_KnownApps(t *testing.T) {
	r := NewStaticLabelResolver()

	assert.Equal(t, "Chrome", r.Resolve("chrome"))
	assert.Equal(t, "Chrome", r.Resolve("Chrome"))
	assert.Equal(t, "VS Code", r.Resolve("code"))
	assert.Equal(t, "Zoom", r.Resolve("zoom.us"))
}

func TestStaticLabelResolver_FallsBackToRawID(t *testing.T) {
	r := NewStaticLabelResolver()

	assert.Equal(t, "some-unknown-tool", r.Resolve("some-unknown-tool"))
	assert.Equal(t, "", r.Resolve(""))
}
