package fetch

import "fmt"

// RetrievalError reports a transport failure or a non-2xx response.
type RetrievalError struct {
	URL        string
	StatusCode int // 0 for transport errors
	Err        error

	// permanent marks failures that no retry can fix, such as a malformed URL.
	permanent bool
}

func (e *RetrievalError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("retrieve %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("retrieve %s: %v", e.URL, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// transient reports whether retrying the request might succeed.
func (e *RetrievalError) transient() bool {
	switch {
	case e.permanent:
		return false
	case e.StatusCode == 0:
		return true
	case e.StatusCode == 429:
		return true
	case e.StatusCode >= 500:
		return true
	}
	return false
}

// DecodeError reports a response body that is not a decodable image.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode image %s: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
