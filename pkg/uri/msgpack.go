package uri

import "github.com/vmihailenco/msgpack/v5"

// MarshalMsgpack renders the Uri as its canonical string form so wire
// messages carry a plain string rather than a net/url.URL structure.
func (u Uri) MarshalMsgpack() ([]byte, error) {
	return msgpack.Marshal(u.String())
}

// UnmarshalMsgpack parses the canonical string form back into a Uri.
func (u *Uri) UnmarshalMsgpack(data []byte) error {
	var s string
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*u = Uri{}
		return nil
	}
	parsed, err := ParseUri(s)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// MarshalMsgpack renders the hash as raw bytes.
func (h Hash32) MarshalMsgpack() ([]byte, error) {
	return msgpack.Marshal(h[:])
}

// UnmarshalMsgpack reads the hash back from raw bytes.
func (h *Hash32) UnmarshalMsgpack(data []byte) error {
	var b []byte
	if err := msgpack.Unmarshal(data, &b); err != nil {
		return err
	}
	*h = NewHash32(b)
	return nil
}
