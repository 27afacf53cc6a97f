package lemondb

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

var ErrDataClone = errors.New("value could not be cloned")

var (
	valueEncMode cbor.EncMode
	valueDecMode cbor.DecMode
)

func init() {
	var err error
	valueEncMode, err = cbor.EncOptions{
		Sort:    cbor.SortCanonical,
		Time:    cbor.TimeRFC3339Nano,
		TimeTag: cbor.EncTagRequired,
	}.EncMode()
	if err != nil {
		panic("could not build cbor encoding mode: " + err.Error())
	}

	valueDecMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
	}.DecMode()
	if err != nil {
		panic("could not build cbor decoding mode: " + err.Error())
	}
}

// cloneValue produces an independent copy of v in its plain form:
// objects become map[string]interface{}, times stay time.Time,
// byte slices stay []byte
func cloneValue(v interface{}) (interface{}, error) {
	b, err := encodeValue(v)
	if err != nil {
		return nil, err
	}

	return decodeValue(b)
}

func encodeValue(v interface{}) ([]byte, error) {
	b, err := valueEncMode.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(ErrDataClone, "%T: %v", v, err)
	}

	return b, nil
}

func decodeValue(b []byte) (interface{}, error) {
	var v interface{}
	if err := valueDecMode.Unmarshal(b, &v); err != nil {
		return nil, errors.Wrapf(ErrDataClone, "could not decode stored value: %v", err)
	}

	return v, nil
}
