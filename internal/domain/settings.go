// Package domain settings.go turns untyped bridge call options into
// validated acquisition settings.
package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ResultType selects the shape of the returned image.
type ResultType int

const (
	ResultBase64 ResultType = iota + 1
	ResultURI
)

// Source selects the acquisition path.
type Source int

const (
	SourcePrompt Source = iota + 1
	SourceCamera
	SourcePhotos
)

// Accepted spellings. Anything not listed here is rejected; there is no
// case folding beyond the explicit lower-case entries.
var (
	resultTypes = map[string]ResultType{
		"BASE64": ResultBase64, "base64": ResultBase64,
		"URI": ResultURI, "uri": ResultURI,
	}
	sources = map[string]Source{
		"PROMPT": SourcePrompt, "prompt": SourcePrompt,
		"CAMERA": SourceCamera, "camera": SourceCamera,
		"PHOTOLIBRARY": SourcePhotos, "photolibrary": SourcePhotos,
		"PHOTOS": SourcePhotos, "photos": SourcePhotos,
	}
)

// ParseResultType maps a bridge option value to a ResultType.
func ParseResultType(s string) (ResultType, error) {
	if rt, ok := resultTypes[s]; ok {
		return rt, nil
	}
	return 0, fmt.Errorf("%w: resultType %q", ErrInvalidOption, s)
}

// ParseSource maps a bridge option value to a Source.
func ParseSource(s string) (Source, error) {
	if src, ok := sources[s]; ok {
		return src, nil
	}
	return 0, fmt.Errorf("%w: source %q", ErrInvalidOption, s)
}

func (r ResultType) String() string {
	switch r {
	case ResultBase64:
		return "BASE64"
	case ResultURI:
		return "URI"
	}
	return "UNKNOWN"
}

func (s Source) String() string {
	switch s {
	case SourcePrompt:
		return "PROMPT"
	case SourceCamera:
		return "CAMERA"
	case SourcePhotos:
		return "PHOTOLIBRARY"
	}
	return "UNKNOWN"
}

// Options is the raw option bag of a getPhoto bridge call. Nil fields take
// their defaults.
type Options struct {
	ResultType         *string `json:"resultType"`
	Source             *string `json:"source"`
	SaveToGallery      *bool   `json:"saveToGallery"`
	Width              *int    `json:"width" validate:"omitempty,gte=0,lte=16384"`
	Height             *int    `json:"height" validate:"omitempty,gte=0,lte=16384"`
	CorrectOrientation *bool   `json:"correctOrientation"`
}

// Settings is the validated, immutable form of Options for one call.
type Settings struct {
	ResultType         ResultType
	Source             Source
	SaveToGallery      bool
	Width              int // 0 = no width bound
	Height             int // 0 = no height bound
	CorrectOrientation bool
}

// DefaultSettings mirrors the plugin defaults: base64 result, prompt for the
// source, save camera shots to the gallery, correct orientation.
func DefaultSettings() Settings {
	return Settings{
		ResultType:         ResultBase64,
		Source:             SourcePrompt,
		SaveToGallery:      true,
		CorrectOrientation: true,
	}
}

var optionValidator = newOptionValidator()

func newOptionValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	return v
}

// NewSettings validates opts and applies defaults. Errors wrap ErrInvalidOption.
func NewSettings(opts Options) (Settings, error) {
	if err := optionValidator.Struct(opts); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return Settings{}, fmt.Errorf("%w: %s fails %s=%s", ErrInvalidOption, fe.Field(), fe.Tag(), fe.Param())
		}
		return Settings{}, fmt.Errorf("%w: %v", ErrInvalidOption, err)
	}
	s := DefaultSettings()
	if opts.ResultType != nil {
		rt, err := ParseResultType(*opts.ResultType)
		if err != nil {
			return Settings{}, err
		}
		s.ResultType = rt
	}
	if opts.Source != nil {
		src, err := ParseSource(*opts.Source)
		if err != nil {
			return Settings{}, err
		}
		s.Source = src
	}
	if opts.SaveToGallery != nil {
		s.SaveToGallery = *opts.SaveToGallery
	}
	if opts.Width != nil {
		s.Width = *opts.Width
	}
	if opts.Height != nil {
		s.Height = *opts.Height
	}
	if opts.CorrectOrientation != nil {
		s.CorrectOrientation = *opts.CorrectOrientation
	}
	return s, nil
}

// WithSource returns a copy of s with the source replaced; used once a
// prompt has been answered.
func (s Settings) WithSource(src Source) Settings {
	s.Source = src
	return s
}
