package pdfutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractTextRejectsNonPDF(t *testing.T) {
	_, err := ExtractText([]byte("definitely not a pdf"))
	require.Error(t, err)
}

func TestJoin(t *testing.T) {
	require.Equal(t, "a\nb", Join([]string{"a", "b"}))
	require.Equal(t, "", Join(nil))
}
