package gameicons

import (
	"fmt"
	"strconv"
	"strings"
)

// TitleID identifies a title, for example 0005000010101C00.
type TitleID uint64

// ParseTitleID parses a hex title id. The "0x" prefix is optional.
func ParseTitleID(s string) (TitleID, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" || len(s) > 16 {
		return 0, fmt.Errorf("invalid title id %q: must be 1-16 hex digits", s)
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid title id %q: %w", s, err)
	}
	return TitleID(v), nil
}

func (id TitleID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

func (id TitleID) MarshalText() (text []byte, err error) {
	return []byte(id.String()), nil
}

func (id *TitleID) UnmarshalText(text []byte) error {
	v, err := ParseTitleID(string(text))
	if err != nil {
		return err
	}
	*id = v
	return nil
}
