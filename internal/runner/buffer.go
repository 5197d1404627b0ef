package runner

import "bytes"

// cappedBuffer stops retaining bytes past Limit but keeps accepting writes,
// so a chatty program cannot grow memory without bound while it runs.
type cappedBuffer struct {
	Limit     int
	Truncated bool
	buf       bytes.Buffer
}

func (w *cappedBuffer) Write(p []byte) (int, error) {
	if w.Limit <= 0 {
		return w.buf.Write(p)
	}
	remaining := w.Limit - w.buf.Len()
	if remaining <= 0 {
		w.Truncated = true
		return len(p), nil
	}
	if len(p) <= remaining {
		return w.buf.Write(p)
	}
	_, _ = w.buf.Write(p[:remaining])
	w.Truncated = true
	return len(p), nil
}

func (w *cappedBuffer) String() string {
	return string(bytes.ToValidUTF8(w.buf.Bytes(), []byte("�")))
}
