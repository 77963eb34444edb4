package course

import (
	"bytes"
	"errors"
	"testing"

	"github.com/trezcool/edhub/core"
)

func TestReadUpload(t *testing.T) {
	const max = int64(uploadChunkSize + 17)

	tests := []struct {
		name     string
		size     int
		wantFail bool
	}{
		{name: "empty", size: 0},
		{name: "small", size: 42},
		{name: "one chunk", size: uploadChunkSize},
		{name: "exactly max", size: int(max)},
		{name: "one byte over", size: int(max) + 1, wantFail: true},
		{name: "way over", size: 4 * uploadChunkSize, wantFail: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := bytes.Repeat([]byte("a"), tt.size)
			got, err := readUpload(bytes.NewReader(content), max)
			if tt.wantFail {
				appErr, ok := core.IsError(err)
				if !ok || appErr.Kind != core.KindFileTooLarge {
					t.Fatalf("readUpload() error = %v; want %v", err, core.KindFileTooLarge)
				}
				return
			}
			if err != nil {
				t.Fatalf("readUpload() failed: %v", err)
			}
			if !bytes.Equal(got, content) {
				t.Errorf("readUpload() read %d bytes; want %d", len(got), len(content))
			}
		})
	}
}

func TestReadUpload_readerError(t *testing.T) {
	boom := errors.New("boom")
	_, err := readUpload(&failingReader{err: boom}, 1<<20)
	if !errors.Is(err, boom) {
		t.Errorf("readUpload() error = %v; want %v", err, boom)
	}
}

type failingReader struct {
	err error
}

func (r *failingReader) Read([]byte) (int, error) {
	return 0, r.err
}
