package port

import (
	"github.com/fxamacker/cbor/v2"
)

// Records are encoded with Core Deterministic Encoding so the same record
// always yields the same bytes. Unknown fields are ignored on decode so a
// newer writer does not break an older reader.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("port: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("port: CBOR decoder initialization failed: " + err.Error())
	}
}

// envelope wraps every published record.
type envelope struct {
	APIVersion string          `cbor:"apiVersion"`
	Kind       string          `cbor:"kind"`
	Payload    cbor.RawMessage `cbor:"payload"`
}

func encode(apiVersion string, rec Record) ([]byte, error) {
	payload, err := encMode.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return encMode.Marshal(envelope{
		APIVersion: apiVersion,
		Kind:       rec.RecordKind(),
		Payload:    payload,
	})
}
