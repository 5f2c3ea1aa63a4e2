package session

import (
	"encoding/binary"
	"errors"
	"math"
)

const recordFormatVersionCurrent = 1

// Field tags. Tags are append-only: a retired tag number is never reused.
const (
	tagUserID       byte = 1
	tagCreatedAt    byte = 2
	tagDeviceName   byte = 3
	tagDeviceType   byte = 4
	tagLocationName byte = 5
	tagLocationLat  byte = 6
	tagLocationLng  byte = 7
	tagAck          byte = 8
)

// MaxFieldLen is the largest payload, in bytes, of one record field.
const MaxFieldLen = 1024

var (
	errEmptyRecord      = errors.New("empty session record")
	errRecordVersion    = errors.New("unsupported session record version")
	errTruncatedRecord  = errors.New("truncated session record")
	errFieldTooLarge    = errors.New("session record field too large")
	errMalformedField   = errors.New("malformed session record field")
	errStringFieldLimit = errors.New("session record string too long")
)

// Encode serializes r as a version byte followed by tagged fields
// (tag, uvarint length, payload). Optional fields that are unset are omitted.
func Encode(r *Record) ([]byte, error) {
	if r == nil {
		return nil, errEmptyRecord
	}

	buf := make([]byte, 0, 64)
	buf = append(buf, recordFormatVersionCurrent)

	buf = appendField(buf, tagUserID, binary.AppendVarint(nil, r.UserID))
	buf = appendField(buf, tagCreatedAt, binary.AppendVarint(nil, r.CreatedAt))

	if r.Device != nil {
		if len(r.Device.Name) > MaxFieldLen {
			return nil, errStringFieldLimit
		}
		buf = appendField(buf, tagDeviceName, []byte(r.Device.Name))
		buf = appendField(buf, tagDeviceType, []byte{byte(r.Device.Type)})
	}

	if r.Location != nil {
		if len(r.Location.Name) > MaxFieldLen {
			return nil, errStringFieldLimit
		}
		buf = appendField(buf, tagLocationName, []byte(r.Location.Name))
		if r.Location.Lat != nil {
			buf = appendField(buf, tagLocationLat, binary.BigEndian.AppendUint64(nil, math.Float64bits(*r.Location.Lat)))
		}
		if r.Location.Lng != nil {
			buf = appendField(buf, tagLocationLng, binary.BigEndian.AppendUint64(nil, math.Float64bits(*r.Location.Lng)))
		}
	}

	if r.Ack {
		buf = appendField(buf, tagAck, []byte{1})
	}

	return buf, nil
}

func appendField(buf []byte, tag byte, payload []byte) []byte {
	buf = append(buf, tag)
	buf = binary.AppendUvarint(buf, uint64(len(payload)))
	return append(buf, payload...)
}

// Decode parses the output of [Encode]. Unknown tags are skipped and missing
// fields keep their zero value, so records written by newer or older
// releases still decode. Only structural damage is an error.
func Decode(data []byte) (*Record, error) {
	if len(data) == 0 {
		return nil, errEmptyRecord
	}
	if data[0] != recordFormatVersionCurrent {
		return nil, errRecordVersion
	}

	r := &Record{}
	rest := data[1:]

	for len(rest) > 0 {
		tag := rest[0]
		rest = rest[1:]

		size, n := binary.Uvarint(rest)
		if n <= 0 {
			return nil, errTruncatedRecord
		}
		rest = rest[n:]
		if size > MaxFieldLen {
			return nil, errFieldTooLarge
		}
		if uint64(len(rest)) < size {
			return nil, errTruncatedRecord
		}
		payload := rest[:size]
		rest = rest[size:]

		if err := decodeField(r, tag, payload); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func decodeField(r *Record, tag byte, payload []byte) error {
	switch tag {
	case tagUserID:
		v, err := readVarint(payload)
		if err != nil {
			return err
		}
		r.UserID = v
	case tagCreatedAt:
		v, err := readVarint(payload)
		if err != nil {
			return err
		}
		r.CreatedAt = v
	case tagDeviceName:
		device(r).Name = string(payload)
	case tagDeviceType:
		if len(payload) != 1 {
			return errMalformedField
		}
		t := DeviceType(payload[0])
		if t > DeviceBot {
			t = DeviceUnknown
		}
		device(r).Type = t
	case tagLocationName:
		location(r).Name = string(payload)
	case tagLocationLat:
		v, err := readFloat(payload)
		if err != nil {
			return err
		}
		location(r).Lat = &v
	case tagLocationLng:
		v, err := readFloat(payload)
		if err != nil {
			return err
		}
		location(r).Lng = &v
	case tagAck:
		if len(payload) != 1 {
			return errMalformedField
		}
		r.Ack = payload[0] != 0
	}
	return nil
}

func device(r *Record) *Device {
	if r.Device == nil {
		r.Device = &Device{}
	}
	return r.Device
}

func location(r *Record) *Location {
	if r.Location == nil {
		r.Location = &Location{}
	}
	return r.Location
}

func readVarint(payload []byte) (int64, error) {
	v, n := binary.Varint(payload)
	if n <= 0 || n != len(payload) {
		return 0, errMalformedField
	}
	return v, nil
}

func readFloat(payload []byte) (float64, error) {
	if len(payload) != 8 {
		return 0, errMalformedField
	}
	v := math.Float64frombits(binary.BigEndian.Uint64(payload))
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errMalformedField
	}
	return v, nil
}
