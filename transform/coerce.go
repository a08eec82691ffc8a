//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GoIngest.
//
// GoIngest is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GoIngest is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GoIngest. If not, see https://www.gnu.org/licenses/.

// Package transform provides the value coercions used by the validation rules:
// integer, real, boolean and text conversion plus kind-aware comparison helpers.
package transform

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrNull is returned when a null value is asked to coerce. Null never coerces.
var ErrNull = errors.New("null value")

// IsNull reports whether v is nil or a NaN float.
func IsNull(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	case float32:
		return math.IsNaN(float64(x))
	default:
		return false
	}
}

// IsInteger reports whether v holds a Go integer kind.
func IsInteger(v interface{}) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	default:
		return false
	}
}

// IsFloat reports whether v holds a Go float kind.
func IsFloat(v interface{}) bool {
	switch v.(type) {
	case float32, float64:
		return true
	default:
		return false
	}
}

// IsNumber reports whether v holds an integer or float kind. Booleans are not numbers.
func IsNumber(v interface{}) bool {
	return IsInteger(v) || IsFloat(v)
}

// KindName returns the short runtime kind name used in coercion messages.
func KindName(v interface{}) string {
	switch {
	case v == nil:
		return "null"
	case IsInteger(v):
		return "int"
	case IsFloat(v):
		return "float"
	}
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "bool"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// ToInt converts v to int64. Floats truncate toward zero, strings must hold an integer
// literal and booleans map to 0 and 1.
func ToInt(v interface{}) (int64, error) {
	if v == nil {
		return 0, ErrNull
	}
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", x)
		}
		return int64(x), nil
	case float32:
		return floatToInt(float64(x))
	case float64:
		return floatToInt(x)
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid literal for int: %q", x)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to int", v)
	}
}

func floatToInt(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("cannot convert float %v to int", f)
	}
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("%v overflows int64", f)
	}
	return int64(f), nil
}

// ToFloat converts v to float64.
func ToFloat(v interface{}) (float64, error) {
	if v == nil {
		return 0, ErrNull
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("could not convert string to float: %q", x)
		}
		return f, nil
	}
	if IsInteger(v) {
		n, err := ToInt(v)
		if err != nil {
			return 0, err
		}
		return float64(n), nil
	}
	return 0, fmt.Errorf("cannot convert %T to float", v)
}

// ToBool converts v to bool. Strings follow strconv.ParseBool and numbers are true
// when non-zero.
func ToBool(v interface{}) (bool, error) {
	if IsNull(v) {
		return false, ErrNull
	}
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return false, fmt.Errorf("invalid literal for bool: %q", x)
		}
		return b, nil
	}
	if IsNumber(v) {
		f, err := ToFloat(v)
		if err != nil {
			return false, err
		}
		return f != 0, nil
	}
	return false, fmt.Errorf("cannot convert %T to bool", v)
}

// ToString converts any non-null value to its text form.
func ToString(v interface{}) (string, error) {
	if v == nil {
		return "", ErrNull
	}
	return Stringify(v), nil
}

// Stringify renders v as text. Nil renders as the empty string.
func Stringify(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// Equal compares two values with numeric awareness: 1 equals 1.0, but the string
// "1" does not equal the number 1.
func Equal(a, b interface{}) bool {
	if IsNumber(a) && IsNumber(b) {
		if IsInteger(a) && IsInteger(b) {
			x, errA := ToInt(a)
			y, errB := ToInt(b)
			if errA == nil && errB == nil {
				return x == y
			}
		}
		x, _ := ToFloat(a)
		y, _ := ToFloat(b)
		return x == y
	}
	switch x := a.(type) {
	case nil:
		return b == nil
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	default:
		return fmt.Sprintf("%T:%v", a, a) == fmt.Sprintf("%T:%v", b, b)
	}
}
