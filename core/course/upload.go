package course

import (
	"bytes"
	"io"

	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/edhub/core"
)

const uploadChunkSize = 64 << 10

// readUpload drains r in fixed-size chunks, failing as soon as the
// running total exceeds max. A file of exactly max bytes is accepted.
func readUpload(r io.Reader, max int64) ([]byte, error) {
	var buf bytes.Buffer
	chunk := make([]byte, uploadChunkSize)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			if int64(buf.Len())+int64(n) > max {
				return nil, core.ErrFileTooLarge(max)
			}
			buf.Write(chunk[:n])
		}
		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, pkgerrors.Wrap(err, "reading upload")
		}
	}
}
