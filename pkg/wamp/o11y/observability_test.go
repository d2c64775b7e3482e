package o11y

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLabels(t *testing.T) {
	assert.Equal(t, Label{Key: "procedure", Value: "com.example.add"}, ProcedureLabel("com.example.add"))
	assert.Equal(t, Label{Key: "topic", Value: "com.example.temp"}, TopicLabel("com.example.temp"))
	assert.Equal(t, "success", StatusLabel(nil).Value)
	assert.Equal(t, "error", StatusLabel(errors.New("boom")).Value)
}
