package state

import (
	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding: the same session always
// produces the same bytes.
var encMode cbor.EncMode

// decMode ignores unknown fields so older binaries read newer files.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("state: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("state: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes a session.
func Marshal(s Session) ([]byte, error) {
	return encMode.Marshal(s)
}

// Unmarshal decodes a session.
func Unmarshal(data []byte, s *Session) error {
	return decMode.Unmarshal(data, s)
}
