package utils

import (
	"encoding/hex"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var ErrShortBuffer = errors.New("buffer too short for structure")

// 100ns intervals between 1601-01-01 and 1970-01-01
const windowsEpochDelta = 116444736000000000

type WindowsTime struct {
	Stamp uint64
}

func (winTime WindowsTime) Time() time.Time {
	if winTime.Stamp == 0 {
		return time.Time{}
	}
	ticks := int64(winTime.Stamp - windowsEpochDelta)
	return time.Unix(ticks/10000000, (ticks%10000000)*100).UTC()
}

func (winTime WindowsTime) ConvertToIsoTime() string {
	if winTime.Stamp == 0 {
		return "-"
	}
	return winTime.Time().Format(time.RFC3339)
}

func Hexify(barray []byte) string {
	return hex.EncodeToString(barray)
}

// ReadEndianUInt reads an unsigned little endian integer of up to 8 bytes.
func ReadEndianUInt(barray []byte) uint64 {
	var sum uint64
	for index, val := range barray {
		sum |= uint64(val) << uint(index*8)
	}
	return sum
}

// ReadEndianInt reads a two's complement little endian integer of up to 8 bytes.
func ReadEndianInt(barray []byte) int64 {
	if len(barray) == 0 {
		return 0
	}
	sum := ReadEndianUInt(barray)
	if len(barray) < 8 && barray[len(barray)-1]&0x80 != 0 {
		sum |= ^uint64(0) << uint(len(barray)*8)
	}
	return int64(sum)
}

func DecodeUTF16(b []byte) string {
	decoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}
	decoded, err := decoder.Bytes(b)
	if err != nil {
		return ""
	}
	return string(decoded)
}

// StringifyGUID renders a mixed endian on-disk GUID (GPT, NTFS object ids).
func StringifyGUID(barray []byte) string {
	if len(barray) != 16 {
		return Hexify(barray)
	}
	canonical := make([]byte, 16)
	copy(canonical, barray)
	canonical[0], canonical[1], canonical[2], canonical[3] = barray[3], barray[2], barray[1], barray[0]
	canonical[4], canonical[5] = barray[5], barray[4]
	canonical[6], canonical[7] = barray[7], barray[6]
	guid, err := uuid.FromBytes(canonical)
	if err != nil {
		return Hexify(barray)
	}
	return guid.String()
}

var printer = message.NewPrinter(language.English)

// FormatNumber groups digits, used for offsets and counts in progress messages.
func FormatNumber(val int64) string {
	return printer.Sprintf("%d", val)
}

func HumanSize(size uint64) string {
	value := float64(size)
	for _, unit := range []string{"B", "KiB", "MiB", "GiB", "TiB"} {
		if value < 1024 {
			if unit == "B" {
				return fmt.Sprintf("%d %s", size, unit)
			}
			return fmt.Sprintf("%.1f %s", value, unit)
		}
		value /= 1024
	}
	return fmt.Sprintf("%.1f PiB", value)
}

func Filter[T any](s []T, f func(T) bool) []T {
	var r []T
	for _, v := range s {
		if f(v) {
			r = append(r, v)
		}
	}
	return r
}

func GetEntries(entries string) []string {
	var result []string
	for _, entry := range strings.Split(entries, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			result = append(result, entry)
		}
	}
	return result
}

// Unmarshal decodes little endian data into the settable fields of the struct v,
// in declaration order. Supported kinds are fixed size integers, byte arrays,
// WindowsTime and strings. The `bin` tag sets the width in bytes of an integer
// or string field, `bin:"-"` leaves a field untouched.
func Unmarshal(data []byte, v interface{}) error {
	structValPtr := reflect.ValueOf(v)
	if structValPtr.Kind() != reflect.Ptr || structValPtr.Elem().Kind() != reflect.Struct {
		return errors.New("must be a pointer to struct")
	}
	structVal := structValPtr.Elem()
	structType := structVal.Type()

	idx := 0
	for i := 0; i < structVal.NumField(); i++ {
		field := structVal.Field(i)
		fieldType := structType.Field(i)
		tag := fieldType.Tag.Get("bin")
		if tag == "-" || !field.CanSet() {
			continue
		}

		width := 0
		if tag != "" {
			w, err := strconv.Atoi(tag)
			if err != nil {
				return fmt.Errorf("field %s: bad bin tag %q", fieldType.Name, tag)
			}
			width = w
		}

		switch field.Kind() {
		case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if width == 0 {
				width = int(field.Type().Size())
			}
			if idx+width > len(data) {
				return fmt.Errorf("field %s: %w", fieldType.Name, ErrShortBuffer)
			}
			field.SetUint(ReadEndianUInt(data[idx : idx+width]))
		case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if width == 0 {
				width = int(field.Type().Size())
			}
			if idx+width > len(data) {
				return fmt.Errorf("field %s: %w", fieldType.Name, ErrShortBuffer)
			}
			field.SetInt(ReadEndianInt(data[idx : idx+width]))
		case reflect.Array:
			if field.Type().Elem().Kind() != reflect.Uint8 {
				continue
			}
			width = field.Len()
			if idx+width > len(data) {
				return fmt.Errorf("field %s: %w", fieldType.Name, ErrShortBuffer)
			}
			reflect.Copy(field, reflect.ValueOf(data[idx:idx+width]))
		case reflect.String:
			if width == 0 {
				return fmt.Errorf("field %s: string needs a bin width", fieldType.Name)
			}
			if idx+width > len(data) {
				return fmt.Errorf("field %s: %w", fieldType.Name, ErrShortBuffer)
			}
			field.SetString(string(data[idx : idx+width]))
		case reflect.Struct:
			if field.Type() != reflect.TypeOf(WindowsTime{}) {
				continue
			}
			width = 8
			if idx+width > len(data) {
				return fmt.Errorf("field %s: %w", fieldType.Name, ErrShortBuffer)
			}
			field.Set(reflect.ValueOf(WindowsTime{Stamp: ReadEndianUInt(data[idx : idx+width])}))
		default:
			continue
		}
		idx += width
	}
	return nil
}
