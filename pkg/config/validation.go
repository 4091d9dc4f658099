package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration against the struct validation tags
// and the cross-field rules the tags cannot express.
func Validate(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.Struct(cfg); err != nil {
		var errs validator.ValidationErrors
		if ok := asValidationErrors(err, &errs); ok {
			return fmt.Errorf("invalid configuration: %s", formatValidationErrors(errs))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Critical prefixes must be rooted paths; a prefix like "api/sos"
	// would never match and silently disable the queue fallback.
	for _, prefix := range cfg.Gateway.CriticalPrefixes {
		if !strings.HasPrefix(prefix, "/") {
			return fmt.Errorf("invalid configuration: gateway.critical_prefixes entry %q must start with /", prefix)
		}
	}
	for _, asset := range cfg.Gateway.StaticAssets {
		if !strings.HasPrefix(asset, "/") {
			return fmt.Errorf("invalid configuration: gateway.static_assets entry %q must start with /", asset)
		}
	}

	if cfg.Sync.Interval < 0 {
		return fmt.Errorf("invalid configuration: sync.interval must not be negative")
	}

	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	errs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = errs
	}
	return ok
}

// formatValidationErrors renders validator errors as a readable list of
// field/rule pairs.
func formatValidationErrors(errs validator.ValidationErrors) string {
	parts := make([]string, 0, len(errs))
	for _, fieldErr := range errs {
		parts = append(parts, fmt.Sprintf("%s failed %q validation", fieldErr.Namespace(), fieldErr.Tag()))
	}
	return strings.Join(parts, "; ")
}
