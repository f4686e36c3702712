package serum

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	RentSysvarSize = 17
	// accountStorageOverhead is charged on top of the data length when
	// computing rent, matching the runtime's constant.
	accountStorageOverhead = 128
)

type Rent struct {
	LamportsPerByteYear uint64  `json:"lamports_per_byte_year"`
	ExemptionThreshold  float64 `json:"exemption_threshold"`
	BurnPercent         uint8   `json:"burn_percent"`
}

func DecodeRent(data []byte) (Rent, error) {
	if len(data) != RentSysvarSize {
		return Rent{}, fmt.Errorf("%w: rent sysvar expects %d bytes, got %d", ErrInvalidAccount, RentSysvarSize, len(data))
	}
	r := newFieldReader(data)
	rent := Rent{
		LamportsPerByteYear: r.u64(),
		ExemptionThreshold:  math.Float64frombits(r.u64()),
		BurnPercent:         r.u8(),
	}
	if err := r.done("rent sysvar"); err != nil {
		return Rent{}, err
	}
	return rent, nil
}

func (r Rent) MinimumBalance(dataLen int) uint64 {
	bytes := uint64(accountStorageOverhead + dataLen)
	return uint64(float64(bytes*r.LamportsPerByteYear) * r.ExemptionThreshold)
}

func (r Rent) IsExempt(lamports uint64, dataLen int) bool {
	return lamports >= r.MinimumBalance(dataLen)
}

func (r Rent) Encode() []byte {
	out := make([]byte, 0, RentSysvarSize)
	out = binary.LittleEndian.AppendUint64(out, r.LamportsPerByteYear)
	out = binary.LittleEndian.AppendUint64(out, math.Float64bits(r.ExemptionThreshold))
	return append(out, r.BurnPercent)
}
