package transport

// RequestReader pulls the raw request bytes off a freshly accepted connection.
type RequestReader interface {
	ReadRequest(c Conn) ([]byte, error)
}

// SingleReadReader performs exactly one Read of at most MaxBytes. Requests
// longer than MaxBytes, or split across several TCP segments, are truncated
// to whatever the first read returned.
type SingleReadReader struct {
	MaxBytes int
}

// NewSingleReadReader returns a SingleReadReader with the given buffer size.
func NewSingleReadReader(maxBytes int) *SingleReadReader {
	return &SingleReadReader{MaxBytes: maxBytes}
}

// ReadRequest reads once and returns only the bytes actually received.
func (r *SingleReadReader) ReadRequest(c Conn) ([]byte, error) {
	buf := make([]byte, r.MaxBytes)
	n, err := c.Read(buf)
	if n > 0 {
		// Data that arrived together with an EOF is still a request.
		return buf[:n], nil
	}
	if err != nil {
		return nil, err
	}
	return nil, newError(OpRead, ErrEmptyRequest)
}
