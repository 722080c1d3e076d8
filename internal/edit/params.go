// Package edit holds the user-editable render parameters.
//
// Every setter takes the raw text a user typed. Input is validated before it
// is accepted; a rejected value leaves the previous one in place.
package edit

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	FieldTrimStart = "trim_start"
	FieldTrimEnd   = "trim_end"
	FieldSpeed     = "speed"
	FieldVolume    = "volume"
	FieldRotation  = "rotation"
	FieldWidth     = "width"
	FieldHeight    = "height"
)

// Rotation is a clockwise rotation in degrees.
type Rotation int

const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

func (r Rotation) Valid() bool {
	switch r {
	case Rotate0, Rotate90, Rotate180, Rotate270:
		return true
	}
	return false
}

// Params is a value copy of the parameter set. Nil optional fields mean
// "unset / auto" and are never the same as zero.
type Params struct {
	TrimStart float64  `json:"trim_start"`
	TrimEnd   *float64 `json:"trim_end"`
	Speed     float64  `json:"speed"`
	Volume    float64  `json:"volume"`
	Rotation  Rotation `json:"rotation"`
	Width     *int     `json:"width"`
	Height    *int     `json:"height"`
}

// Defaults returns the parameters of a fresh session.
func Defaults() Params {
	return Params{Speed: 1, Volume: 1, Rotation: Rotate0}
}

// Clone returns a deep copy of p.
func (p Params) Clone() Params {
	c := p
	if p.TrimEnd != nil {
		v := *p.TrimEnd
		c.TrimEnd = &v
	}
	if p.Width != nil {
		v := *p.Width
		c.Width = &v
	}
	if p.Height != nil {
		v := *p.Height
		c.Height = &v
	}
	return c
}

// ValidationError reports rejected user input.
type ValidationError struct {
	Field  string
	Input  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Input == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Input, e.Reason)
}

// Set is the live parameter set. It is not safe for concurrent use; the
// session controller owns it.
type Set struct {
	p Params
}

func NewSet() *Set {
	return &Set{p: Defaults()}
}

// Params returns a snapshot of the current values.
func (s *Set) Params() Params {
	return s.p.Clone()
}

// Reset restores the defaults.
func (s *Set) Reset() {
	s.p = Defaults()
}

func (s *Set) SetTrimStart(input string) error {
	v, err := parseFloat(FieldTrimStart, input, false)
	if err != nil {
		return err
	}
	if *v < 0 {
		return invalid(FieldTrimStart, input, "must be zero or greater")
	}
	if s.p.TrimEnd != nil && *v >= *s.p.TrimEnd {
		return invalid(FieldTrimStart, input, fmt.Sprintf("must be less than trim end %s", formatFloat(*s.p.TrimEnd)))
	}
	s.p.TrimStart = *v
	return nil
}

func (s *Set) SetTrimEnd(input string) error {
	v, err := parseFloat(FieldTrimEnd, input, true)
	if err != nil {
		return err
	}
	if v != nil && *v <= s.p.TrimStart {
		return invalid(FieldTrimEnd, input, fmt.Sprintf("must be greater than trim start %s", formatFloat(s.p.TrimStart)))
	}
	s.p.TrimEnd = v
	return nil
}

func (s *Set) SetSpeed(input string) error {
	v, err := parseFloat(FieldSpeed, input, false)
	if err != nil {
		return err
	}
	if *v <= 0 {
		return invalid(FieldSpeed, input, "must be greater than zero")
	}
	s.p.Speed = *v
	return nil
}

func (s *Set) SetVolume(input string) error {
	v, err := parseFloat(FieldVolume, input, false)
	if err != nil {
		return err
	}
	if *v < 0 {
		return invalid(FieldVolume, input, "must be zero or greater")
	}
	s.p.Volume = *v
	return nil
}

func (s *Set) SetRotation(input string) error {
	trimmed := strings.TrimSpace(input)
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return invalid(FieldRotation, input, "must be one of 0, 90, 180, 270")
	}
	r := Rotation(n)
	if !r.Valid() {
		return invalid(FieldRotation, input, "must be one of 0, 90, 180, 270")
	}
	s.p.Rotation = r
	return nil
}

func (s *Set) SetWidth(input string) error {
	v, err := parseDimension(FieldWidth, input)
	if err != nil {
		return err
	}
	s.p.Width = v
	return nil
}

func (s *Set) SetHeight(input string) error {
	v, err := parseDimension(FieldHeight, input)
	if err != nil {
		return err
	}
	s.p.Height = v
	return nil
}

// Update carries optional raw inputs; nil fields are left untouched.
type Update struct {
	TrimStart *string `json:"trim_start,omitempty"`
	TrimEnd   *string `json:"trim_end,omitempty"`
	Speed     *string `json:"speed,omitempty"`
	Volume    *string `json:"volume,omitempty"`
	Rotation  *string `json:"rotation,omitempty"`
	Width     *string `json:"width,omitempty"`
	Height    *string `json:"height,omitempty"`
}

// Apply runs each present field through its setter. Accepted fields stay
// applied even when others are rejected; the rejections are joined.
//
// When both trim fields move and the new start lies at or past the current
// end, trim_end is applied first so the range can shift in one update.
func (s *Set) Apply(u Update) error {
	type step struct {
		input *string
		set   func(string) error
	}
	steps := []step{
		{u.TrimStart, s.SetTrimStart},
		{u.TrimEnd, s.SetTrimEnd},
		{u.Speed, s.SetSpeed},
		{u.Volume, s.SetVolume},
		{u.Rotation, s.SetRotation},
		{u.Width, s.SetWidth},
		{u.Height, s.SetHeight},
	}
	if u.TrimStart != nil && u.TrimEnd != nil && s.p.TrimEnd != nil {
		if start, err := strconv.ParseFloat(strings.TrimSpace(*u.TrimStart), 64); err == nil && start >= *s.p.TrimEnd {
			steps[0], steps[1] = steps[1], steps[0]
		}
	}

	var errs []error
	for _, st := range steps {
		if st.input == nil {
			continue
		}
		if err := st.set(*st.input); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func parseFloat(field, input string, optional bool) (*float64, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		if optional {
			return nil, nil
		}
		return nil, invalid(field, input, "value is required")
	}
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, invalid(field, input, "must be a number")
	}
	return &v, nil
}

func parseDimension(field, input string) (*int, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return nil, invalid(field, input, "must be a whole number of pixels")
	}
	if n <= 0 {
		return nil, invalid(field, input, "must be greater than zero")
	}
	return &n, nil
}

func invalid(field, input, reason string) *ValidationError {
	return &ValidationError{Field: field, Input: input, Reason: reason}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
