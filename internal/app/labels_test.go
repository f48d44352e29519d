package app

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLabels(t *testing.T) {
	labels, err := ParseLabels(strings.NewReader("0 1, 1\n# comment\n2 - _ 0 # trailing\n"))
	require.NoError(t, err)
	require.Len(t, labels, 7)

	var got []any
	for _, l := range labels {
		if l == nil {
			got = append(got, nil)
		} else {
			got = append(got, *l)
		}
	}
	assert.Equal(t, []any{0, 1, 1, 2, nil, nil, 0}, got)
}

func TestParseLabelsInvalid(t *testing.T) {
	_, err := ParseLabels(strings.NewReader("0 1\nx\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestParseLabelsEmpty(t *testing.T) {
	labels, err := ParseLabels(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, labels)
}
