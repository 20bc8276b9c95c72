package streamscrub

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassThroughWithoutSecrets(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf)

	n, err := s.Write([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	assert.Equal(t, "hello world", buf.String(), "nothing is held back before a password is registered")
}

func TestRedactsPassword(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf)
	s.RegisterPassword("hunter2")

	_, err := s.Write([]byte("opening a.pdf with hunter2\n"))
	require.NoError(t, err)
	require.NoError(t, s.Flush())
	assert.Equal(t, "opening a.pdf with ***\n", buf.String())
}

func TestRedactsEncodings(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"hex", "<68756e74657232>"},
		{"upper hex", "<68756E74657232>"},
		{"utf16 hex", "<feff00680075006e0074006500720032>"},
		{"percent", "file:///x?pw=%68%75%6e%74%65%72%32"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			s := New(&buf)
			s.RegisterPassword("hunter2")
			_, _ = s.Write([]byte(tt.text))
			require.NoError(t, s.Flush())
			assert.Contains(t, buf.String(), Placeholder)
			assert.NotContains(t, buf.String(), "hunter2")
		})
	}
}

func TestRedactsLiteralEscapes(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf)
	s.RegisterPassword(`a(b)c\d`)
	_, _ = s.Write([]byte(`/O (a\(b\)c\\d)`))
	require.NoError(t, s.Flush())
	assert.Equal(t, "/O (***)", buf.String())
}

func TestSplitAcrossWrites(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf)
	s.RegisterPassword("correct-horse")

	for _, chunk := range []string{"pw=corr", "ect-h", "orse done"} {
		_, err := s.Write([]byte(chunk))
		require.NoError(t, err)
	}
	require.NoError(t, s.Flush())
	assert.Equal(t, "pw=*** done", buf.String())
}

func TestLongestFirst(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf)
	s.RegisterPassword("abc")
	s.RegisterPassword("abcdef")

	_, _ = s.Write([]byte("x abcdef y abc z"))
	require.NoError(t, s.Flush())
	assert.Equal(t, "x *** y *** z", buf.String())
}

func TestEmptyAndDuplicatePasswords(t *testing.T) {
	s := New(&bytes.Buffer{})
	s.RegisterPassword("")
	assert.Zero(t, s.SecretCount())

	s.RegisterPassword("pw")
	n := s.SecretCount()
	s.RegisterPassword("pw")
	assert.Equal(t, n, s.SecretCount())
}

func TestPasswordInsidePlaceholderIsSkipped(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf)
	s.RegisterPassword("*")
	for i := 0; i < 3; i++ {
		_, _ = s.Write([]byte("a b\n"))
	}
	require.NoError(t, s.Flush())
	assert.Equal(t, strings.Repeat("a b\n", 3), buf.String())
}

func TestCloseFlushesAndForgets(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf)
	s.RegisterPassword("secret")
	_, _ = s.Write([]byte("x secret"))
	require.NoError(t, s.Close())
	assert.Equal(t, "x ***", buf.String())
	assert.Zero(t, s.SecretCount())
}

func TestConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf)
	s.RegisterPassword("topsecret")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = s.Write([]byte("line topsecret\n"))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, s.Flush())
	assert.NotContains(t, buf.String(), "topsecret")
	assert.Equal(t, 400, strings.Count(buf.String(), "line ***\n"))
}
