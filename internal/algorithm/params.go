package algorithm

import (
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/rxtech-lab/argo-fund/pkg/errors"
)

// DecodeParams decodes raw request parameters into target, which must be a
// pointer to a struct already holding the defaults. Unknown keys are rejected.
func DecodeParams(params map[string]any, target any) error {
	if len(params) > 0 {
		if err := decode(params, target); err != nil {
			return err
		}
	}

	validate := validator.New()
	if err := validate.Struct(target); err != nil {
		return errors.Wrap(errors.ErrCodeAlgorithmConfigError, "invalid algorithm parameters", err)
	}

	return nil
}

func decode(params map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeAlgorithmConfigError, "failed to create parameter decoder", err)
	}

	if err := decoder.Decode(params); err != nil {
		return errors.Wrap(errors.ErrCodeAlgorithmConfigError, "invalid algorithm parameters", err)
	}

	return nil
}
