package discord

import (
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

var ErrInvalidOptions = errors.New("invalid command options")

// PlayOptions are the /play options.
type PlayOptions struct {
	Query string `mapstructure:"query" validate:"required"`
}

// SeekOptions are the /seek options. Discord sends integers as float64.
type SeekOptions struct {
	Seconds int64 `mapstructure:"seconds" validate:"gte=0"`
}

var validate = validator.New()

// decodeOptions decodes raw interaction options into out and validates it.
func decodeOptions(options map[string]any, out any) error {
	if err := mapstructure.Decode(options, out); err != nil {
		return errors.Mark(errors.Wrap(err, "failed to decode options"), ErrInvalidOptions)
	}
	if err := validate.Struct(out); err != nil {
		return errors.Mark(errors.Wrap(err, "validation failed"), ErrInvalidOptions)
	}
	return nil
}
