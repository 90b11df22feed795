package s3

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyFromUrl(t *testing.T) {
	tests := map[string]string{
		"https://bucket.s3.ap-southeast-1.amazonaws.com/assessments/01J9.png": "assessments/01J9.png",
		"https://bucket.s3.amazonaws.com/assessments/a%20b.jpg":               "assessments/a b.jpg",
		"assessments/plain.png":                                               "assessments/plain.png",
	}

	for in, want := range tests {
		got, err := KeyFromUrl(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := KeyFromUrl("https://bucket.s3.amazonaws.com/%zz")
	assert.Error(t, err)
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "assessments/01J9.jpg", ObjectKey("assessments", "01J9", "Kitchen.JPG"))
	assert.Equal(t, "assessments/01J9.img", ObjectKey("assessments", "01J9", "upload"))
}

func TestNewRequiresBucket(t *testing.T) {
	t.Setenv("AWS_BUCKET_NAME", "")
	_, err := New()
	assert.Error(t, err)
}
