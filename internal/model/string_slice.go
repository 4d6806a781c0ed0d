package model

import (
	"database/sql/driver"
	"fmt"
	"slices"
	"strings"
)

// StringSlice is stored as a single comma-joined column.
type StringSlice []string

// Value implements the driver.Valuer interface.
// Due to commas being the separator no element may include a comma
func (s StringSlice) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "", nil
	}

	for _, v := range s {
		if strings.Contains(v, ",") {
			return "", fmt.Errorf("unsafe string, %s", v)
		}
	}

	return strings.Join(s, ","), nil
}

// Scan implements the sql.Scanner interface.
func (s *StringSlice) Scan(value any) error {
	if value == nil {
		*s = StringSlice{}
		return nil
	}

	str, ok := value.(string)
	if !ok {
		b, ok := value.([]byte)
		if !ok {
			return fmt.Errorf("failed to scan StringSlice, %v", value)
		}

		str = string(b)
	}

	if str == "" {
		*s = StringSlice{}
	} else {
		*s = strings.Split(str, ",")
	}

	return nil
}

func (s StringSlice) Contains(v string) bool {
	return slices.Contains(s, v)
}

// Append adds v unless it is already present. It reports whether s changed.
func (s *StringSlice) Append(v string) bool {
	if s.Contains(v) {
		return false
	}

	*s = append(*s, v)
	return true
}

// Remove drops every occurrence of v. It reports whether s changed.
func (s *StringSlice) Remove(v string) bool {
	n := len(*s)
	*s = slices.DeleteFunc(*s, func(e string) bool { return e == v })
	return len(*s) != n
}
