package nci

import (
	"bytes"
	"errors"
	"testing"
)

func TestDecodeStatus(t *testing.T) {
	tests := []struct {
		name        string
		in          []byte
		wantResult  StatusResult
		wantOffset  int
		wantVariant Variant
		wantBytes   [3]byte
		wantThird   bool
	}{
		{
			name:       "two valid bytes",
			in:         []byte{0x30, 0x30, CR, ETX},
			wantResult: StatusOK,
			wantBytes:  [3]byte{0x30, 0x30},
		},
		{
			name:        "scp-02 marker",
			in:          []byte{'S', 0x31, 0x30, CR, ETX},
			wantResult:  StatusOK,
			wantVariant: SCP02,
			wantBytes:   [3]byte{0x31, 0x30},
		},
		{
			name:       "continuation byte",
			in:         []byte{0x30, 0x70, 0x37, CR, ETX},
			wantResult: StatusOK,
			wantBytes:  [3]byte{0x30, 0x70, 0x37},
			wantThird:  true,
		},
		{
			name:       "parity bit is ignored",
			in:         []byte{0xB0, 0xB0, CR, ETX},
			wantResult: StatusOK,
			wantBytes:  [3]byte{0xB0, 0xB0},
		},
		{
			name:       "byte 1 sentinel violated",
			in:         []byte{0x20, 0x30, CR, ETX},
			wantResult: StatusByte1Invalid,
			wantOffset: 0,
			wantBytes:  [3]byte{0x20, 0x30},
		},
		{
			name:       "byte 2 sentinel violated",
			in:         []byte{0x30, 0x10, CR, ETX},
			wantResult: StatusByte2Invalid,
			wantOffset: 1,
			wantBytes:  [3]byte{0x30, 0x10},
		},
		{
			name:       "byte 3 sentinel violated",
			in:         []byte{0x30, 0x70, 0x40, CR, ETX},
			wantResult: StatusByte3Invalid,
			wantOffset: 2,
			wantBytes:  [3]byte{0x30, 0x70, 0x40},
			wantThird:  true,
		},
		{
			name:       "first failure wins",
			in:         []byte{0x00, 0x00, CR, ETX},
			wantResult: StatusByte1Invalid,
			wantOffset: 0,
		},
		{
			name:       "sentinel error not overwritten by terminator",
			in:         []byte{0x30, 0x00, 'X', 'Y'},
			wantResult: StatusByte2Invalid,
			wantOffset: 1,
		},
		{
			name:       "missing continuation byte",
			in:         []byte{0x30, 0x70, CR, ETX},
			wantResult: StatusFramingError,
			wantOffset: 2,
			wantBytes:  [3]byte{0x30, 0x70},
		},
		{
			name:       "truncated continuation byte",
			in:         []byte{0x30, 0x70},
			wantResult: StatusFramingError,
			wantOffset: 2,
			wantBytes:  [3]byte{0x30, 0x70},
		},
		{
			name:       "bad CR",
			in:         []byte{0x30, 0x30, LF, ETX},
			wantResult: StatusFramingError,
			wantOffset: 2,
			wantBytes:  [3]byte{0x30, 0x30},
		},
		{
			name:       "bad ETX",
			in:         []byte{0x30, 0x30, CR, LF},
			wantResult: StatusFramingError,
			wantOffset: 3,
			wantBytes:  [3]byte{0x30, 0x30},
		},
		{
			name:       "empty",
			in:         nil,
			wantResult: StatusFramingError,
			wantOffset: 0,
		},
		{
			name:        "scp-02 marker only",
			in:          []byte{'S'},
			wantResult:  StatusFramingError,
			wantOffset:  1,
			wantVariant: SCP02,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := append([]byte(nil), tt.in...)
			st := DecodeStatus(in)

			if !bytes.Equal(in, tt.in) {
				t.Fatalf("input buffer was modified: %v", in)
			}
			if st.Result != tt.wantResult {
				t.Fatalf("Result = %d, want %d (%s)", st.Result, tt.wantResult, st.Reason)
			}
			if tt.wantResult != StatusOK && st.Offset != tt.wantOffset {
				t.Errorf("Offset = %d, want %d", st.Offset, tt.wantOffset)
			}
			if st.Variant != tt.wantVariant {
				t.Errorf("Variant = %v, want %v", st.Variant, tt.wantVariant)
			}
			if tt.wantBytes != [3]byte{} {
				if got := [3]byte{st.Primary, st.Secondary, st.Tertiary}; got != tt.wantBytes {
					t.Errorf("status bytes = % X, want % X", got, tt.wantBytes)
				}
			}
			if st.HasTertiary != tt.wantThird {
				t.Errorf("HasTertiary = %v, want %v", st.HasTertiary, tt.wantThird)
			}
		})
	}
}

func TestDecodeStatusVariantsEquivalent(t *testing.T) {
	bodies := [][]byte{
		{0x30, 0x30, CR, ETX},
		{0x33, 0x3F, CR, ETX},
		{0x30, 0x70, 0x37, CR, ETX},
		{0x20, 0x30, CR, ETX},
		{0x30, 0x70, CR, ETX},
	}

	for _, body := range bodies {
		scp01 := DecodeStatus(body)
		scp02 := DecodeStatus(append([]byte{SCP02Marker}, body...))

		if scp01.Variant != SCP01 || scp02.Variant != SCP02 {
			t.Fatalf("unexpected variants %v / %v", scp01.Variant, scp02.Variant)
		}
		if scp01.Primary != scp02.Primary || scp01.Secondary != scp02.Secondary ||
			scp01.Tertiary != scp02.Tertiary || scp01.HasTertiary != scp02.HasTertiary ||
			scp01.Result != scp02.Result {
			t.Errorf("decoding of % X differs between variants: %+v vs. %+v", body, scp01, scp02)
		}
		if scp01.Result != StatusOK && scp02.Offset != scp01.Offset+1 {
			t.Errorf("offset of % X not shifted by marker: %d vs. %d", body, scp01.Offset, scp02.Offset)
		}
	}
}

func TestStatusErr(t *testing.T) {
	if err := DecodeStatus([]byte{0x30, 0x30, CR, ETX}).Err(); err != nil {
		t.Fatalf("unexpected error for valid status: %s", err)
	}

	err := DecodeStatus([]byte{0x30, 0x70, 0x00, CR, ETX}).Err()
	var se *StatusByteError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusByteError, got %v", err)
	}
	if se.Byte != 3 || se.Offset != 2 {
		t.Errorf("unexpected status byte error: %+v", se)
	}

	err = DecodeStatus([]byte{0x30, 0x30, CR}).Err()
	var fe *FramingError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FramingError, got %v", err)
	}
	if fe.Offset != 3 {
		t.Errorf("unexpected framing error offset: %d", fe.Offset)
	}
}

func TestStatusFlags(t *testing.T) {
	st := DecodeStatus([]byte{0x3B, 0x7E, 0x3F, CR, ETX})
	if !st.Valid() {
		t.Fatalf("unexpected decode failure: %s", st.Reason)
	}

	checks := []struct {
		name string
		got  bool
		want bool
	}{
		{"InMotion", st.InMotion(), true},
		{"AtZero", st.AtZero(), true},
		{"RAMError", st.RAMError(), false},
		{"EEPROMError", st.EEPROMError(), true},
		{"UnderCapacity", st.UnderCapacity(), false},
		{"OverCapacity", st.OverCapacity(), true},
		{"ROMError", st.ROMError(), true},
		{"FaultyCalibration", st.FaultyCalibration(), true},
		{"NetWeight", st.NetWeight(), true},
		{"InitialZeroError", st.InitialZeroError(), true},
		{"Faulted", st.Faulted(), true},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if st.Range() != RangeHigh {
		t.Errorf("Range = %v, want high", st.Range())
	}

	ranges := map[byte]Range{0x30: RangeLow, 0x31: RangeUndefined, 0x32: RangeUndefined, 0x33: RangeHigh}
	for third, want := range ranges {
		if got := DecodeStatus([]byte{0x30, 0x70, third, CR, ETX}).Range(); got != want {
			t.Errorf("Range(0x%02X) = %v, want %v", third, got, want)
		}
	}
	if got := DecodeStatus([]byte{0x30, 0x30, CR, ETX}).Range(); got != RangeUnknown {
		t.Errorf("Range without third byte = %v, want unknown", got)
	}
}

func TestStatusDecoded(t *testing.T) {
	for in, want := range map[string]bool{
		"\x30\x30\r\x03":  true,
		"S\x30\x30\r\x03": true,
		"\x20\x30\r\x03":  true,
		"\x30\x30\r":      true,
		"\x30\x70\r\x03":  true,
		"\x30\r\x03":      false,
		"S":               false,
		"":                false,
	} {
		if got := DecodeStatus([]byte(in)).Decoded(); got != want {
			t.Errorf("DecodeStatus(%q).Decoded() = %v, want %v", in, got, want)
		}
	}
}
