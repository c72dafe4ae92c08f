package handlers

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/types"
)

// parseFormOptions overlays the option form fields of a request on defaults
func parseFormOptions(c *fiber.Ctx, defaults types.ProcessingOptions) (types.ProcessingOptions, error) {
	opts := defaults
	opts.Temperatures = slices.Clone(defaults.Temperatures)

	strs := map[string]*string{
		"model_size":  &opts.ModelSize,
		"language":    &opts.Language,
		"left_label":  &opts.LeftLabel,
		"right_label": &opts.RightLabel,
	}
	for key, dst := range strs {
		if v := strings.TrimSpace(c.FormValue(key)); v != "" {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"normalize":                  &opts.Normalize,
		"split_channels":             &opts.SplitChannels,
		"vad":                        &opts.VAD,
		"condition_on_previous_text": &opts.ConditionOnPreviousText,
		"parallel_channels":          &opts.ParallelChannels,
	}
	for key, dst := range bools {
		if v := c.FormValue(key); v != "" {
			b, err := formBool(v)
			if err != nil {
				return opts, fmt.Errorf("%w: %s: %v", types.ErrInvalidOption, key, err)
			}
			*dst = b
		}
	}

	ints := map[string]*int{
		"vad_min_silence_ms": &opts.VADMinSilenceMs,
		"vad_speech_pad_ms":  &opts.VADSpeechPadMs,
		"beam_size":          &opts.BeamSize,
		"best_of":            &opts.BestOf,
	}
	for key, dst := range ints {
		if v := strings.TrimSpace(c.FormValue(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return opts, fmt.Errorf("%w: %s: %v", types.ErrInvalidOption, key, err)
			}
			*dst = n
		}
	}

	floats := map[string]*float64{
		"compression_ratio_threshold": &opts.CompressionRatioThreshold,
		"log_prob_threshold":          &opts.LogProbThreshold,
		"no_speech_threshold":         &opts.NoSpeechThreshold,
	}
	for key, dst := range floats {
		if v := strings.TrimSpace(c.FormValue(key)); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return opts, fmt.Errorf("%w: %s: %v", types.ErrInvalidOption, key, err)
			}
			*dst = f
		}
	}

	if v := strings.TrimSpace(c.FormValue("temperatures")); v != "" {
		temps, err := parseTemperatures(v)
		if err != nil {
			return opts, err
		}
		opts.Temperatures = temps
	}

	return opts, opts.Validate()
}

// parseTemperatures reads a comma separated schedule such as "0,0.2,0.4"
func parseTemperatures(s string) ([]float64, error) {
	var temps []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		f, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: temperatures: %v", types.ErrInvalidOption, err)
		}
		temps = append(temps, f)
	}
	return temps, nil
}

// formBool accepts strconv booleans plus the "on"/"off" sent by HTML checkboxes
func formBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "yes":
		return true, nil
	case "off", "no":
		return false, nil
	}
	return strconv.ParseBool(v)
}
