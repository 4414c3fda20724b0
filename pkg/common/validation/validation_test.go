package validation

import (
	"testing"
	"time"

	"github.com/vnykmshr/sinkflow/pkg/common/errors"
)

func TestValidatePositive(t *testing.T) {
	tests := []struct {
		name      string
		module    string
		field     string
		value     int
		wantError bool
	}{
		{"positive value", "test", "count", 10, false},
		{"positive value 1", "test", "count", 1, false},
		{"zero value", "test", "count", 0, true},
		{"negative value", "test", "count", -1, true},
		{"large positive", "test", "count", 1000000, false},
		{"large negative", "test", "count", -1000000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePositive(tt.module, tt.field, tt.value)

			if tt.wantError {
				if err == nil {
					t.Error("expected error, got nil")
				}
				if !errors.IsValidationError(err) {
					t.Errorf("expected ValidationError, got %T", err)
				}
			} else {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
			}
		})
	}
}

func TestValidateNonNegative(t *testing.T) {
	tests := []struct {
		name      string
		value     int
		wantError bool
	}{
		{"positive value", 10, false},
		{"zero value", 0, false},
		{"negative value", -1, true},
		{"large negative", -99999, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNonNegative("test", "high_water_mark", tt.value)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidateNonNegative(%d) error = %v, wantError %v", tt.value, err, tt.wantError)
			}
		})
	}
}

func TestValidatePositiveDuration(t *testing.T) {
	tests := []struct {
		name      string
		value     time.Duration
		wantError bool
	}{
		{"one second", time.Second, false},
		{"one nanosecond", time.Nanosecond, false},
		{"zero", 0, true},
		{"negative", -time.Millisecond, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePositiveDuration("test", "poll_interval", tt.value)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidatePositiveDuration(%v) error = %v, wantError %v", tt.value, err, tt.wantError)
			}
		})
	}
}

func TestValidateNotNil(t *testing.T) {
	tests := []struct {
		name      string
		value     interface{}
		wantError bool
	}{
		{"non-nil int", 123, false},
		{"non-nil struct", struct{}{}, false},
		{"non-nil pointer", new(int), false},
		{"nil value", nil, true},
		{"nil pointer", (*int)(nil), false}, // typed nil is not nil interface
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNotNil("test", "sink", tt.value)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidateNotNil() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestValidateNotEmpty(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		wantError bool
	}{
		{"non-empty string", "value", false},
		{"whitespace", " ", false}, // Whitespace is not empty
		{"empty string", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNotEmpty("test", "stream", tt.value)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidateNotEmpty(%q) error = %v, wantError %v", tt.value, err, tt.wantError)
			}
		})
	}
}

func TestValidateOneOf(t *testing.T) {
	if err := ValidateOneOf("codec", "length_field_bytes", 4, 1, 2, 4, 8); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	err := ValidateOneOf("codec", "length_field_bytes", 3, 1, 2, 4, 8)
	if err == nil {
		t.Fatal("expected error")
	}
	want := "codec: invalid length_field_bytes=3 (unsupported value) - use one of 1, 2, 4, 8"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestValidationErrorDetails(t *testing.T) {
	err := ValidatePositive("channel", "buffer_size", -5)
	if err == nil {
		t.Fatal("expected error")
	}

	valErr, ok := err.(*errors.ValidationError)
	if !ok {
		t.Fatal("could not cast to ValidationError")
	}

	if valErr.Module != "channel" {
		t.Errorf("Module = %q, want %q", valErr.Module, "channel")
	}
	if valErr.Field != "buffer_size" {
		t.Errorf("Field = %q, want %q", valErr.Field, "buffer_size")
	}
	if valErr.Value != -5 {
		t.Errorf("Value = %v, want %v", valErr.Value, -5)
	}
	if valErr.Hint != "value must be greater than 0" {
		t.Errorf("Hint = %q, want %q", valErr.Hint, "value must be greater than 0")
	}
}

func TestValidationErrorWrapping(t *testing.T) {
	testCases := []struct {
		name string
		err  error
	}{
		{"ValidatePositive", ValidatePositive("test", "field", -1)},
		{"ValidateNonNegative", ValidateNonNegative("test", "field", -1)},
		{"ValidatePositiveDuration", ValidatePositiveDuration("test", "field", 0)},
		{"ValidateNotNil", ValidateNotNil("test", "field", nil)},
		{"ValidateNotEmpty", ValidateNotEmpty("test", "field", "")},
		{"ValidateOneOf", ValidateOneOf("test", "field", "x", "a", "b")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err == nil {
				t.Fatal("expected error")
			}
			if !errors.IsValidationError(tc.err) {
				t.Error("error should be a ValidationError")
			}
			if e, ok := tc.err.(*errors.ValidationError); ok {
				if wrapped := e.Unwrap(); wrapped != errors.ErrInvalidConfiguration {
					t.Errorf("should unwrap to ErrInvalidConfiguration, got %v", wrapped)
				}
			}
		})
	}
}
