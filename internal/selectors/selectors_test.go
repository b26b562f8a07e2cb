package selectors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	m := Default()
	require.NoError(t, m.Validate())
	assert.Equal(t, "div.adbl-library-content-row", m.Row)
	assert.Equal(t, "span.nextButton a", m.NextPageLink)
}

func TestValidateRejectsEmptyLocator(t *testing.T) {
	m := Default()
	m.Narrator = "  "

	err := m.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "narrator")
}
